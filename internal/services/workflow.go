package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/soochol/minizaps/internal/definition"
	"github.com/soochol/minizaps/internal/zaps"
	"github.com/soochol/minizaps/internal/zaps/ports"
)

// ErrInvalidTrigger is returned for trigger requests that cannot start a run.
var ErrInvalidTrigger = errors.New("invalid trigger request")

// TriggerRequest asks for a new run of a workflow.
type TriggerRequest struct {
	WorkflowName string
	Payload      map[string]any
	// MaxRetries overrides the default retry budget when non-nil.
	MaxRetries  *int
	TriggerType zaps.TriggerType
}

// WorkflowService creates run records and schedules their execution.
type WorkflowService struct {
	store             ports.RunStore
	loader            ports.DefinitionLoader
	runner            *Runner
	defaultMaxRetries int

	// Runs outlive the request that triggered them; they stop only when
	// baseCtx is cancelled.
	baseCtx context.Context
	wg      sync.WaitGroup
}

// NewWorkflowService creates a WorkflowService. baseCtx bounds the lifetime
// of every run it starts.
func NewWorkflowService(baseCtx context.Context, store ports.RunStore, loader ports.DefinitionLoader, runner *Runner, defaultMaxRetries int) *WorkflowService {
	if defaultMaxRetries < 0 {
		defaultMaxRetries = zaps.DefaultMaxRetries
	}
	return &WorkflowService{
		store:             store,
		loader:            loader,
		runner:            runner,
		defaultMaxRetries: defaultMaxRetries,
		baseCtx:           baseCtx,
	}
}

// Trigger creates a STARTED run record, starts its loop in the background
// and returns the initial snapshot. A missing definition is reported as
// definition.ErrNotFound before any record is created.
func (s *WorkflowService) Trigger(ctx context.Context, req TriggerRequest) (*zaps.RunRecord, error) {
	rec, err := s.create(ctx, req)
	if err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.runner.Execute(s.baseCtx, rec.ID); err != nil {
			slog.Error("run: execution error", "run_id", rec.ID, "err", err)
		}
	}()
	return rec, nil
}

// Run creates a run and executes it in the calling goroutine, returning the
// final record.
func (s *WorkflowService) Run(ctx context.Context, req TriggerRequest) (*zaps.RunRecord, error) {
	rec, err := s.create(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.runner.Execute(ctx, rec.ID); err != nil {
		return nil, err
	}
	return s.store.Get(writeCtx(ctx), rec.ID)
}

// Wait blocks until every run started by Trigger has returned.
func (s *WorkflowService) Wait() {
	s.wg.Wait()
}

func (s *WorkflowService) create(ctx context.Context, req TriggerRequest) (*zaps.RunRecord, error) {
	name := strings.TrimSpace(req.WorkflowName)
	if name == "" {
		return nil, fmt.Errorf("%w: workflow_name is required", ErrInvalidTrigger)
	}
	maxRetries := s.defaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}
	if maxRetries < 0 {
		return nil, fmt.Errorf("%w: max_retries must be >= 0", ErrInvalidTrigger)
	}
	trigger := req.TriggerType
	if trigger == "" {
		trigger = zaps.TriggerManual
	}

	// Only a missing definition is refused here; a malformed one fails the
	// run with a log line.
	if _, err := s.loader.Load(name); errors.Is(err, definition.ErrNotFound) {
		return nil, err
	}

	rec := zaps.NewRunRecord(name, req.Payload, maxRetries, trigger)
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	slog.Info("run: triggered", "run_id", rec.ID, "workflow", name, "trigger", trigger)
	return rec.Clone(), nil
}
