package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/soochol/minizaps/internal/zaps"
	"github.com/soochol/minizaps/internal/zaps/ports"
)

var (
	// ErrInvalidTransition is returned when a control action is not allowed
	// from the run's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownAction is returned for control actions other than
	// pause, stop and resume.
	ErrUnknownAction = errors.New("unknown control action")
)

// Control actions accepted by StatusController.Apply.
const (
	ActionPause  = "pause"
	ActionStop   = "stop"
	ActionResume = "resume"
)

// ControlResult is the outcome of a control request.
type ControlResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StatusController applies externally requested pause, stop and resume
// transitions to run records and wakes the affected run loop.
type StatusController struct {
	store   ports.RunStore
	signals *RunSignals
}

func NewStatusController(store ports.RunStore, signals *RunSignals) *StatusController {
	if signals == nil {
		signals = NewRunSignals()
	}
	return &StatusController{store: store, signals: signals}
}

// Pause moves a STARTED or RETRYING run to PAUSED.
func (c *StatusController) Pause(ctx context.Context, runID string) (*zaps.RunRecord, error) {
	return c.transition(ctx, runID, ActionPause, zaps.RunStatusPaused,
		zaps.RunStatusStarted, zaps.RunStatusRetrying)
}

// Stop moves any run that is not already STOPPED to STOPPED. It cannot be
// undone.
func (c *StatusController) Stop(ctx context.Context, runID string) (*zaps.RunRecord, error) {
	return c.transition(ctx, runID, ActionStop, zaps.RunStatusStopped,
		zaps.RunStatusStarted, zaps.RunStatusRetrying, zaps.RunStatusPaused,
		zaps.RunStatusSucceeded, zaps.RunStatusFailed)
}

// Resume moves a PAUSED run back to STARTED. The run loop continues from
// the step it paused at.
func (c *StatusController) Resume(ctx context.Context, runID string) (*zaps.RunRecord, error) {
	return c.transition(ctx, runID, ActionResume, zaps.RunStatusStarted,
		zaps.RunStatusPaused)
}

// Apply dispatches a named action and reports the outcome the way the
// control endpoint presents it. Errors wrap ErrUnknownAction,
// ErrInvalidTransition or the store's not-found error.
func (c *StatusController) Apply(ctx context.Context, runID, action string) (ControlResult, error) {
	var err error
	var okMsg, failMsg string
	switch strings.ToLower(strings.TrimSpace(action)) {
	case ActionPause:
		_, err = c.Pause(ctx, runID)
		okMsg, failMsg = "Workflow paused", "Could not pause workflow"
	case ActionStop:
		_, err = c.Stop(ctx, runID)
		okMsg, failMsg = "Workflow stopped", "Could not stop workflow"
	case ActionResume:
		_, err = c.Resume(ctx, runID)
		okMsg, failMsg = "Workflow resumed (will continue from current step)", "Could not resume workflow"
	default:
		return ControlResult{Message: "Invalid action. Use 'pause', 'stop', or 'resume'"},
			fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if err != nil {
		return ControlResult{Message: failMsg}, err
	}
	return ControlResult{Success: true, Message: okMsg}, nil
}

func (c *StatusController) transition(ctx context.Context, runID, action string, to zaps.RunStatus, from ...zaps.RunStatus) (*zaps.RunRecord, error) {
	rec, err := c.store.Update(ctx, runID, func(r *zaps.RunRecord) error {
		if !slices.Contains(from, r.Status) || !r.Status.CanTransition(to) {
			return fmt.Errorf("%w: cannot %s a %s run", ErrInvalidTransition, action, r.Status)
		}
		r.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("run: status changed", "run_id", runID, "action", action, "status", to)
	c.signals.Notify(runID)
	return rec, nil
}
