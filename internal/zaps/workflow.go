package zaps

import (
	"errors"
	"fmt"
	"strings"
)

// WorkflowDefinition is the static, named description of an ordered list of
// steps. It is loaded fresh for every run and never mutated afterwards.
type WorkflowDefinition struct {
	Name              string         `json:"name" yaml:"name"`
	Description       string         `json:"description,omitempty" yaml:"description,omitempty"`
	Steps             []Step         `json:"steps" yaml:"steps"`
	GlobalRetryPolicy map[string]any `json:"global_retry_policy,omitempty" yaml:"global_retry_policy,omitempty"`
}

// Step is one unit of configured work, bound to a connector type.
type Step struct {
	Type           string         `json:"type" yaml:"type"`
	Config         map[string]any `json:"config" yaml:"config"`
	RetryOnFailure *bool          `json:"retry_on_failure,omitempty" yaml:"retry_on_failure,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	// When is an optional boolean expression over the execution context.
	// The step is skipped when it evaluates to false.
	When string `json:"when,omitempty" yaml:"when,omitempty"`
}

// ShouldRetry reports whether a failure of this step may be retried.
// Steps retry by default.
func (s Step) ShouldRetry() bool {
	return s.RetryOnFailure == nil || *s.RetryOnFailure
}

// Validate checks the structural rules of a definition. It does not check
// that step types are registered; an unknown type fails the run when the
// step is reached.
func (w *WorkflowDefinition) Validate() error {
	if strings.TrimSpace(w.Name) == "" {
		return errors.New("workflow name required")
	}
	for i, step := range w.Steps {
		if strings.TrimSpace(step.Type) == "" {
			return fmt.Errorf("step %d: type required", i+1)
		}
		if step.TimeoutSeconds < 0 {
			return fmt.Errorf("step %d: timeout_seconds must be >= 0", i+1)
		}
	}
	return nil
}
