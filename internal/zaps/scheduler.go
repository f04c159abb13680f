package zaps

import "time"

// --- Retry ---

// RetryPolicy defines the backoff between retry attempts of a failed step.
// The wait before attempt k is InitialDelay * BackoffFactor^k, capped at
// MaxDelay.
type RetryPolicy struct {
	InitialDelay  time.Duration `json:"initial_delay"  yaml:"initial_delay"`
	MaxDelay      time.Duration `json:"max_delay"      yaml:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor" yaml:"backoff_factor"`
}

// DefaultRetryPolicy waits 2^k seconds before attempt k.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialDelay:  time.Second,
		MaxDelay:      5 * time.Minute,
		BackoffFactor: 2.0,
	}
}

// --- Concurrency ---

// ConcurrencyLimits controls how many runs can execute simultaneously.
type ConcurrencyLimits struct {
	GlobalMax   int `json:"global_max"   yaml:"global_max"`
	PerWorkflow int `json:"per_workflow" yaml:"per_workflow"`
}

// DefaultConcurrencyLimits returns sensible defaults.
func DefaultConcurrencyLimits() ConcurrencyLimits {
	return ConcurrencyLimits{
		GlobalMax:   10,
		PerWorkflow: 3,
	}
}

// --- Schedule ---

// Schedule defines a cron-based recurring workflow trigger.
type Schedule struct {
	Name         string         `json:"name"          yaml:"name"`
	WorkflowName string         `json:"workflow_name" yaml:"workflow"`
	CronExpr     string         `json:"cron_expr"     yaml:"cron"`
	Payload      map[string]any `json:"payload,omitempty"     yaml:"payload,omitempty"`
	MaxRetries   *int           `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	Disabled     bool           `json:"disabled"      yaml:"disabled"`
	NextRunAt    *time.Time     `json:"next_run_at,omitempty" yaml:"-"`
	LastRunAt    *time.Time     `json:"last_run_at,omitempty" yaml:"-"`
	LastRunID    string         `json:"last_run_id,omitempty" yaml:"-"`
}
