package zaps

import (
	"fmt"
	"maps"
)

// Keys seeded into every execution context.
const (
	ContextKeyTrigger      = "trigger"
	ContextKeyRunID        = "run_id"
	ContextKeyWorkflowName = "workflow_name"
)

// ExecutionContext is the run-scoped map of trigger data and prior step
// results. It holds heterogeneous, dynamically keyed entries and lives only
// in memory for the lifetime of one run.
type ExecutionContext map[string]any

// NewExecutionContext seeds a context with the trigger payload and run
// metadata.
func NewExecutionContext(runID, workflowName string, payload map[string]any) ExecutionContext {
	if payload == nil {
		payload = map[string]any{}
	}
	return ExecutionContext{
		ContextKeyTrigger:      payload,
		ContextKeyRunID:        runID,
		ContextKeyWorkflowName: workflowName,
	}
}

// StepKey returns the context key holding the result of the step at the
// given zero-based index. Keys are 1-based: the first step is "step_1".
func StepKey(index int) string {
	return fmt.Sprintf("step_%d", index+1)
}

// SetStepResult records a successful step's result data.
func (c ExecutionContext) SetStepResult(index int, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	c[StepKey(index)] = data
}

// StepResult returns the recorded result of the step at index.
func (c ExecutionContext) StepResult(index int) (map[string]any, bool) {
	v, ok := c[StepKey(index)].(map[string]any)
	return v, ok
}

// Snapshot returns a shallow copy safe to hand to a connector.
func (c ExecutionContext) Snapshot() ExecutionContext {
	return maps.Clone(c)
}

// ConnectorResult is what a connector produces for one invocation.
type ConnectorResult struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(message string, data map[string]any) ConnectorResult {
	if data == nil {
		data = map[string]any{}
	}
	return ConnectorResult{Success: true, Message: message, Data: data}
}

// Failed builds a failed result.
func Failed(message string) ConnectorResult {
	return ConnectorResult{Success: false, Message: message, Data: map[string]any{}}
}
