package zaps

import "time"

// --- Run Status ---

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusStarted   RunStatus = "started"
	RunStatusRetrying  RunStatus = "retrying"
	RunStatusPaused    RunStatus = "paused"
	RunStatusStopped   RunStatus = "stopped"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// transitions lists the statuses reachable from each status. Staying in the
// same status is not a transition and is handled by CanTransition.
var transitions = map[RunStatus][]RunStatus{
	RunStatusStarted:   {RunStatusRetrying, RunStatusPaused, RunStatusStopped, RunStatusSucceeded, RunStatusFailed},
	RunStatusRetrying:  {RunStatusStarted, RunStatusPaused, RunStatusStopped, RunStatusSucceeded, RunStatusFailed},
	RunStatusPaused:    {RunStatusStarted, RunStatusStopped, RunStatusFailed},
	RunStatusSucceeded: {RunStatusStopped},
	RunStatusFailed:    {RunStatusStopped},
	RunStatusStopped:   nil,
}

// Valid reports whether s is one of the known statuses.
func (s RunStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether a run in status s may move to next.
// Re-asserting the current status is allowed for every status except
// STOPPED, which is final.
func (s RunStatus) CanTransition(next RunStatus) bool {
	if s == next {
		return s != RunStatusStopped && s.Valid()
	}
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the status ends an execution attempt.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusStopped:
		return true
	}
	return false
}

// Halted reports whether the engine must stop making progress on the run:
// either it was stopped or it is waiting to be resumed.
func (s RunStatus) Halted() bool {
	return s == RunStatusStopped || s == RunStatusPaused
}

// --- Trigger ---

// TriggerType identifies how a workflow execution was initiated.
type TriggerType string

const (
	TriggerManual TriggerType = "manual"
	TriggerCron   TriggerType = "cron"
)

// DefaultMaxRetries is the per-run retry budget used when a trigger does
// not supply one.
const DefaultMaxRetries = 3

// RunRecord is the persisted state of one workflow execution.
type RunRecord struct {
	ID             string         `json:"id"`
	WorkflowName   string         `json:"workflow_name"`
	Status         RunStatus      `json:"status"`
	TriggerType    TriggerType    `json:"trigger_type"`
	TriggerPayload map[string]any `json:"trigger_payload,omitempty"`
	Logs           []string       `json:"logs"`
	RetryCount     int            `json:"retry_count"`
	MaxRetries     int            `json:"max_retries"`
	CurrentStep    int            `json:"current_step"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewRunRecord returns a record in the initial STARTED state.
func NewRunRecord(workflowName string, payload map[string]any, maxRetries int, trigger TriggerType) *RunRecord {
	now := time.Now().UTC()
	if payload == nil {
		payload = map[string]any{}
	}
	return &RunRecord{
		ID:             GenerateID("run"),
		WorkflowName:   workflowName,
		Status:         RunStatusStarted,
		TriggerType:    trigger,
		TriggerPayload: payload,
		Logs:           []string{},
		MaxRetries:     maxRetries,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Clone returns a copy that shares no slices with r. The trigger payload map
// is shared; it is never mutated after creation.
func (r *RunRecord) Clone() *RunRecord {
	cp := *r
	cp.Logs = append([]string(nil), r.Logs...)
	return &cp
}

// RunSummary is the list view of a run.
type RunSummary struct {
	ID           string      `json:"id"`
	WorkflowName string      `json:"workflow_name"`
	Status       RunStatus   `json:"status"`
	TriggerType  TriggerType `json:"trigger_type"`
	RetryCount   int         `json:"retry_count"`
	MaxRetries   int         `json:"max_retries"`
	CurrentStep  int         `json:"current_step"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Summary converts the record into its list view.
func (r *RunRecord) Summary() RunSummary {
	return RunSummary{
		ID:           r.ID,
		WorkflowName: r.WorkflowName,
		Status:       r.Status,
		TriggerType:  r.TriggerType,
		RetryCount:   r.RetryCount,
		MaxRetries:   r.MaxRetries,
		CurrentStep:  r.CurrentStep,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

// ActiveRun is the process-local bookkeeping entry for a run whose loop is
// currently executing. It is informational; the RunRecord is authoritative.
type ActiveRun struct {
	RunID        string    `json:"run_id"`
	WorkflowName string    `json:"workflow_name"`
	Status       string    `json:"status"`
	CurrentStep  int       `json:"current_step"`
	StartedAt    time.Time `json:"started_at"`
}
