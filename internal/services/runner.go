package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/soochol/minizaps/internal/connectors"
	"github.com/soochol/minizaps/internal/definition"
	"github.com/soochol/minizaps/internal/zaps"
	"github.com/soochol/minizaps/internal/zaps/ports"
)

// DefaultPausePollInterval bounds how long a paused run takes to notice a
// resume or stop when no signal arrives.
const DefaultPausePollInterval = time.Second

// Runner owns the step loop of a run: it walks the definition's steps,
// threads results through the execution context, reacts to pause and stop,
// dispatches retries and resolves the final status.
type Runner struct {
	store        ports.RunStore
	loader       ports.DefinitionLoader
	registry     *connectors.Registry
	active       ports.ActiveRegistry
	signals      *RunSignals
	executor     *StepExecutor
	retry        *RetryCoordinator
	limiter      *ConcurrencyLimiter
	pollInterval time.Duration
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

func WithActiveRegistry(a ports.ActiveRegistry) RunnerOption {
	return func(r *Runner) { r.active = a }
}

func WithSignals(s *RunSignals) RunnerOption {
	return func(r *Runner) { r.signals = s }
}

func WithRetryPolicy(p zaps.RetryPolicy) RunnerOption {
	return func(r *Runner) { r.retry.policy = p }
}

// WithSleep replaces the backoff wait, mainly for tests.
func WithSleep(fn SleepFunc) RunnerOption {
	return func(r *Runner) { r.retry.sleep = fn }
}

func WithPausePollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

func WithConcurrencyLimiter(l *ConcurrencyLimiter) RunnerOption {
	return func(r *Runner) { r.limiter = l }
}

func NewRunner(store ports.RunStore, loader ports.DefinitionLoader, registry *connectors.Registry, opts ...RunnerOption) *Runner {
	executor := NewStepExecutor()
	r := &Runner{
		store:        store,
		loader:       loader,
		registry:     registry,
		active:       NewActiveRegistry(),
		signals:      NewRunSignals(),
		executor:     executor,
		retry:        NewRetryCoordinator(executor, zaps.DefaultRetryPolicy()),
		pollInterval: DefaultPausePollInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Active returns the registry of runs executing in this process.
func (r *Runner) Active() ports.ActiveRegistry { return r.active }

// Signals returns the per-run wake-up channels shared with the
// StatusController.
func (r *Runner) Signals() *RunSignals { return r.signals }

// Execute runs the loop for an existing run record until it reaches a
// terminal status, rests in PAUSED at the end, or ctx is cancelled.
// Failures inside the run are recorded on the run, not returned.
func (r *Runner) Execute(ctx context.Context, runID string) error {
	rec, err := r.store.Get(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}

	slot := r.limiter.Slot(rec.WorkflowName)
	if err := slot.Acquire(ctx); err != nil {
		slog.Warn("run: not started", "run_id", runID, "err", err)
		return err
	}
	defer slot.Release()

	r.active.Register(zaps.ActiveRun{
		RunID:        runID,
		WorkflowName: rec.WorkflowName,
		StartedAt:    time.Now().UTC(),
	})
	defer r.active.Unregister(runID)
	defer r.signals.Forget(runID)

	j := &runJournal{store: r.store, id: runID}
	slog.Info("run: started", "run_id", runID, "workflow", rec.WorkflowName)

	err = r.runSafely(ctx, j, slot, rec)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		// Shutdown; the record is left as-is and cleaned up on next start.
		slog.Warn("run: interrupted", "run_id", runID, "err", err)
		return nil
	default:
		r.failUnexpected(ctx, j, err)
	}

	if final, getErr := r.store.Get(writeCtx(ctx), runID); getErr == nil {
		slog.Info("run: finished", "run_id", runID, "status", final.Status)
	}
	return nil
}

// runSafely turns a panic in the loop into an error.
func (r *Runner) runSafely(ctx context.Context, j *runJournal, slot *Slot, rec *zaps.RunRecord) (err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("run: panic", "run_id", j.id, "panic", p)
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.run(ctx, j, slot, rec)
}

func (r *Runner) run(ctx context.Context, j *runJournal, slot *Slot, rec *zaps.RunRecord) error {
	if err := j.log(ctx, "Starting workflow: "+rec.WorkflowName); err != nil {
		return err
	}

	wf, err := r.loader.Load(rec.WorkflowName)
	if err != nil {
		return err
	}

	ectx := zaps.NewExecutionContext(rec.ID, rec.WorkflowName, rec.TriggerPayload)

	for i, step := range wf.Steps {
		n := i + 1

		halt, err := r.checkpoint(ctx, j, slot, i)
		if err != nil {
			return err
		}
		if halt {
			break
		}

		r.active.SetStep(j.id, i)
		if _, err := j.update(ctx, func(cur *zaps.RunRecord) {
			advance(cur, i)
			cur.Logs = append(cur.Logs, fmt.Sprintf("Executing step %d: %s", n, step.Type))
		}); err != nil {
			return err
		}

		conn, err := r.registry.Lookup(step.Type)
		if err != nil {
			return r.failAt(ctx, j, i, false, "Workflow failed with error: "+err.Error())
		}

		ok, err := definition.EvaluateCondition(step.When, ectx)
		if err != nil {
			return r.failAt(ctx, j, i, false, "Workflow failed with error: "+err.Error())
		}
		if !ok {
			if err := j.log(ctx, fmt.Sprintf("Step %d skipped: condition not met", n)); err != nil {
				return err
			}
			continue
		}

		res := r.executor.Execute(ctx, conn, step, ectx)
		if err := ctx.Err(); err != nil {
			return err
		}
		if res.Success {
			if err := j.log(ctx, fmt.Sprintf("Step %d succeeded: %s", n, res.Message)); err != nil {
				return err
			}
			ectx.SetStepResult(i, res.Data)
			continue
		}

		if err := j.log(ctx, fmt.Sprintf("Step %d failed: %s", n, res.Message)); err != nil {
			return err
		}

		if step.ShouldRetry() && rec.MaxRetries > 0 {
			if err := j.log(ctx, fmt.Sprintf("Attempting to retry step %d...", n)); err != nil {
				return err
			}
			retried, outcome, err := r.retry.Retry(ctx, j, i, step, conn, ectx, rec.MaxRetries)
			if err != nil {
				return err
			}
			if outcome == RetrySucceeded {
				ectx.SetStepResult(i, retried.Data)
				if _, err := j.update(ctx, func(cur *zaps.RunRecord) {
					if cur.Status == zaps.RunStatusRetrying {
						cur.Status = zaps.RunStatusStarted
					}
				}); err != nil {
					return err
				}
				continue
			}
		}

		// A step that failed for good ends the run as FAILED, even when a
		// pause or stop arrived while it was running or retrying.
		return r.failAt(ctx, j, i, true)
	}

	_, err = j.update(ctx, func(cur *zaps.RunRecord) {
		switch cur.Status {
		case zaps.RunStatusStopped:
			cur.Logs = append(cur.Logs, "Workflow was stopped")
		case zaps.RunStatusPaused:
			cur.Logs = append(cur.Logs, "Workflow ended in paused state")
		default:
			cur.Logs = append(cur.Logs, "Workflow completed successfully")
			setStatus(cur, zaps.RunStatusSucceeded)
		}
	})
	return err
}

// checkpoint runs the status check at the start of step i. It reports
// whether the loop must halt; a paused run blocks here until resumed or
// stopped, holding no concurrency slot while it waits.
func (r *Runner) checkpoint(ctx context.Context, j *runJournal, slot *Slot, i int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	n := i + 1

	status, err := j.status(ctx)
	if err != nil {
		return false, err
	}
	switch status {
	case zaps.RunStatusStopped:
		return true, j.log(ctx, fmt.Sprintf("Workflow stopped at step %d", n))
	case zaps.RunStatusPaused:
	default:
		return false, nil
	}

	if _, err := j.update(ctx, func(rec *zaps.RunRecord) {
		rec.Logs = append(rec.Logs, fmt.Sprintf("Workflow paused at step %d", n))
		if rec.Status == zaps.RunStatusPaused {
			advance(rec, i)
		}
	}); err != nil {
		return false, err
	}
	slog.Info("run: paused", "run_id", j.id, "step", n)

	slot.Release()
	status, err = r.waitWhilePaused(ctx, j)
	if err != nil {
		return false, err
	}
	if status == zaps.RunStatusStopped {
		return true, j.log(ctx, fmt.Sprintf("Workflow stopped during pause at step %d", n))
	}
	if err := slot.Acquire(ctx); err != nil {
		return false, err
	}
	slog.Info("run: resumed", "run_id", j.id, "step", n)
	return false, j.log(ctx, fmt.Sprintf("Workflow resumed at step %d", n))
}

// waitWhilePaused blocks until the run leaves PAUSED. It wakes on the run's
// signal and, as a fallback, every poll interval.
func (r *Runner) waitWhilePaused(ctx context.Context, j *runJournal) (zaps.RunStatus, error) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		wake := r.signals.Subscribe(j.id)
		status, err := j.status(ctx)
		if err != nil {
			return "", err
		}
		if status != zaps.RunStatusPaused {
			return status, nil
		}
		select {
		case <-wake:
		case <-ticker.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// failAt ends the run as FAILED at step i. With force the status is written
// even when the state machine would refuse it.
func (r *Runner) failAt(ctx context.Context, j *runJournal, i int, force bool, lines ...string) error {
	_, err := j.update(ctx, func(rec *zaps.RunRecord) {
		rec.Logs = append(rec.Logs, lines...)
		advance(rec, i)
		if force {
			rec.Status = zaps.RunStatusFailed
			return
		}
		setStatus(rec, zaps.RunStatusFailed)
	})
	return err
}

// failUnexpected records a fault that escaped the loop. A stopped run stays
// stopped.
func (r *Runner) failUnexpected(ctx context.Context, j *runJournal, cause error) {
	slog.Error("run: failed", "run_id", j.id, "err", cause)
	_, err := j.update(ctx, func(rec *zaps.RunRecord) {
		rec.Logs = append(rec.Logs, "Workflow failed with error: "+cause.Error())
		setStatus(rec, zaps.RunStatusFailed)
	})
	if err != nil {
		slog.Error("run: could not record failure", "run_id", j.id, "err", err)
	}
}
