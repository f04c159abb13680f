package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/soochol/minizaps/internal/connectors"
	"github.com/soochol/minizaps/internal/zaps"
)

// StepExecutor invokes one connector for one step. It bounds the call by the
// step's timeout and turns timeouts and panics into failed results, so the
// caller only ever sees a ConnectorResult.
type StepExecutor struct{}

func NewStepExecutor() *StepExecutor { return &StepExecutor{} }

// Execute runs the connector. The connector sees a snapshot of ectx.
// On timeout the connector's context is cancelled and its eventual result
// is discarded.
func (e *StepExecutor) Execute(ctx context.Context, c connectors.Connector, step zaps.Step, ectx zaps.ExecutionContext) zaps.ConnectorResult {
	runCtx := ctx
	if step.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(step.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	done := make(chan zaps.ConnectorResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				slog.Error("connector panicked", "type", c.Type(), "panic", p)
				done <- zaps.Failed(fmt.Sprintf("%s connector panicked: %v", c.Type(), p))
			}
		}()
		done <- c.Execute(runCtx, step.Config, ectx.Snapshot())
	}()

	select {
	case res := <-done:
		if res.Data == nil {
			res.Data = map[string]any{}
		}
		// A connector that noticed the deadline first still reports a timeout.
		if !res.Success && step.TimeoutSeconds > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return timedOut(step)
		}
		return res
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return zaps.Failed(fmt.Sprintf("Step cancelled: %v", ctx.Err()))
		}
		return timedOut(step)
	}
}

func timedOut(step zaps.Step) zaps.ConnectorResult {
	return zaps.Failed(fmt.Sprintf("Step timed out after %ds", step.TimeoutSeconds))
}
