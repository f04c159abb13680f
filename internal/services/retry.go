package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/soochol/minizaps/internal/connectors"
	"github.com/soochol/minizaps/internal/zaps"
)

// RetryOutcome reports how a retry sequence ended.
type RetryOutcome int

const (
	RetrySucceeded RetryOutcome = iota
	RetryExhausted
	// RetryCancelled means a pause or stop was observed at an attempt
	// boundary.
	RetryCancelled
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration)

// RetryCoordinator re-invokes a failed step with exponential backoff. It
// re-checks the run's status before every wait and after it, so a pause or
// stop takes effect at the next attempt boundary. A backoff wait itself is
// never interrupted by pause or stop.
type RetryCoordinator struct {
	executor *StepExecutor
	policy   zaps.RetryPolicy
	sleep    SleepFunc
}

func NewRetryCoordinator(executor *StepExecutor, policy zaps.RetryPolicy) *RetryCoordinator {
	if executor == nil {
		executor = NewStepExecutor()
	}
	return &RetryCoordinator{executor: executor, policy: policy, sleep: sleepContext}
}

// Retry runs up to maxRetries further attempts of the step at index. It
// returns the first successful result, or nil with RetryExhausted or
// RetryCancelled. A non-nil error means the run record could not be
// read or written.
func (c *RetryCoordinator) Retry(
	ctx context.Context,
	j *runJournal,
	index int,
	step zaps.Step,
	conn connectors.Connector,
	ectx zaps.ExecutionContext,
	maxRetries int,
) (*zaps.ConnectorResult, RetryOutcome, error) {
	n := index + 1
	for k := 1; k <= maxRetries; k++ {
		if cancelled, err := c.cancelled(ctx, j, n); err != nil || cancelled {
			return nil, RetryCancelled, err
		}

		delay := calculateBackoff(c.policy, k)
		if _, err := j.update(ctx, func(r *zaps.RunRecord) {
			r.Logs = append(r.Logs, fmt.Sprintf("Step %d retry %d/%d in %ss...", n, k, maxRetries, formatSeconds(delay)))
			setStatus(r, zaps.RunStatusRetrying)
			advance(r, index)
		}); err != nil {
			return nil, RetryExhausted, err
		}

		slog.Info("retry: backing off", "run_id", j.id, "step", n, "attempt", k, "delay", delay)
		c.sleep(ctx, delay)
		if err := ctx.Err(); err != nil {
			return nil, RetryCancelled, err
		}

		if cancelled, err := c.cancelled(ctx, j, n); err != nil || cancelled {
			return nil, RetryCancelled, err
		}

		if _, err := j.update(ctx, func(r *zaps.RunRecord) { r.RetryCount++ }); err != nil {
			return nil, RetryExhausted, err
		}

		res := c.executor.Execute(ctx, conn, step, ectx)
		if res.Success {
			if err := j.log(ctx, fmt.Sprintf("Step %d succeeded on retry %d", n, k)); err != nil {
				return nil, RetryExhausted, err
			}
			return &res, RetrySucceeded, nil
		}
		if err := j.log(ctx, fmt.Sprintf("Step %d retry %d failed: %s", n, k, res.Message)); err != nil {
			return nil, RetryExhausted, err
		}
	}
	return nil, RetryExhausted, nil
}

// cancelled reports whether the run was paused or stopped, logging the
// cancellation if so.
func (c *RetryCoordinator) cancelled(ctx context.Context, j *runJournal, n int) (bool, error) {
	status, err := j.status(ctx)
	if err != nil {
		return false, err
	}
	if !status.Halted() {
		return false, nil
	}
	return true, j.log(ctx, fmt.Sprintf("Step %d retry cancelled due to workflow %s", n, status))
}

// sleepContext waits for d, returning early only when ctx is done.
func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// calculateBackoff computes the delay for a given attempt using exponential backoff.
func calculateBackoff(policy zaps.RetryPolicy, attempt int) time.Duration {
	delay := float64(policy.InitialDelay) * math.Pow(policy.BackoffFactor, float64(attempt))
	if policy.MaxDelay > 0 && delay > float64(policy.MaxDelay) {
		return policy.MaxDelay
	}
	return time.Duration(delay)
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
