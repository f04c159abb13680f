package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soochol/minizaps/internal/connectors"
	"github.com/soochol/minizaps/internal/definition"
	"github.com/soochol/minizaps/internal/repository"
	"github.com/soochol/minizaps/internal/zaps"
)

// staticLoader serves definitions from memory.
type staticLoader map[string]*zaps.WorkflowDefinition

func (l staticLoader) Load(name string) (*zaps.WorkflowDefinition, error) {
	wf, ok := l[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", definition.ErrNotFound, name)
	}
	return wf, nil
}

func (l staticLoader) List() ([]string, error) {
	names := make([]string, 0, len(l))
	for n := range l {
		names = append(names, n)
	}
	slices.Sort(names)
	return names, nil
}

// fakeConnector counts invocations and delegates to fn.
type fakeConnector struct {
	typ   string
	calls atomic.Int32
	fn    func(ctx context.Context, call int, ectx zaps.ExecutionContext) zaps.ConnectorResult
}

func (f *fakeConnector) Type() string           { return f.typ }
func (f *fakeConnector) Schema() map[string]any { return map[string]any{"type": "object"} }
func (f *fakeConnector) Execute(ctx context.Context, _ map[string]any, ectx zaps.ExecutionContext) zaps.ConnectorResult {
	call := int(f.calls.Add(1))
	return f.fn(ctx, call, ectx)
}

func alwaysFail(typ string) *fakeConnector {
	return &fakeConnector{typ: typ, fn: func(context.Context, int, zaps.ExecutionContext) zaps.ConnectorResult {
		return zaps.Failed("boom")
	}}
}

// failTimes fails the first n calls and succeeds afterwards.
func failTimes(typ string, n int) *fakeConnector {
	return &fakeConnector{typ: typ, fn: func(_ context.Context, call int, _ zaps.ExecutionContext) zaps.ConnectorResult {
		if call <= n {
			return zaps.Failed(fmt.Sprintf("attempt %d failed", call))
		}
		return zaps.Succeeded("ok", map[string]any{"call": call})
	}}
}

// checkingStore records every status change that breaks the state machine
// and every decrease of current_step.
type checkingStore struct {
	*repository.MemoryRunRepository
	mu         sync.Mutex
	violations []string
	statuses   []zaps.RunStatus
}

func newCheckingStore() *checkingStore {
	return &checkingStore{MemoryRunRepository: repository.NewMemoryRunRepository()}
}

func (s *checkingStore) Update(ctx context.Context, id string, mutate func(*zaps.RunRecord) error) (*zaps.RunRecord, error) {
	var before zaps.RunRecord
	rec, err := s.MemoryRunRepository.Update(ctx, id, func(r *zaps.RunRecord) error {
		before = *r
		return mutate(r)
	})
	if err != nil {
		return rec, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if before.Status != rec.Status {
		s.statuses = append(s.statuses, rec.Status)
		if !before.Status.CanTransition(rec.Status) {
			s.violations = append(s.violations, fmt.Sprintf("%s -> %s", before.Status, rec.Status))
		}
	}
	if rec.CurrentStep < before.CurrentStep {
		s.violations = append(s.violations, fmt.Sprintf("current_step %d -> %d", before.CurrentStep, rec.CurrentStep))
	}
	return rec, nil
}

func (s *checkingStore) Violations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.violations...)
}

// sleepRecorder replaces the backoff wait. It records the requested delays
// and the run's status at the time of each wait.
type sleepRecorder struct {
	mu       sync.Mutex
	delays   []time.Duration
	statuses []zaps.RunStatus
	store    *checkingStore
	runID    string
	onSleep  func(attempt int)
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	attempt := len(s.delays)
	if s.store != nil && s.runID != "" {
		if rec, err := s.store.Get(ctx, s.runID); err == nil {
			s.statuses = append(s.statuses, rec.Status)
		}
	}
	s.mu.Unlock()
	if s.onSleep != nil {
		s.onSleep(attempt)
	}
}

type harness struct {
	store    *checkingStore
	registry *connectors.Registry
	signals  *RunSignals
	active   *ActiveRegistry
	runner   *Runner
	status   *StatusController
	sleeper  *sleepRecorder
	defs     staticLoader
}

func newHarness(t *testing.T, defs staticLoader, conns ...connectors.Connector) *harness {
	t.Helper()
	h := &harness{
		store:    newCheckingStore(),
		registry: connectors.NewDefaultRegistry(time.Second),
		signals:  NewRunSignals(),
		active:   NewActiveRegistry(),
		defs:     defs,
	}
	for _, c := range conns {
		h.registry.Register(c)
	}
	h.sleeper = &sleepRecorder{store: h.store}
	h.runner = NewRunner(h.store, defs, h.registry,
		WithSignals(h.signals),
		WithActiveRegistry(h.active),
		WithSleep(h.sleeper.sleep),
		WithPausePollInterval(10*time.Millisecond),
	)
	h.status = NewStatusController(h.store, h.signals)
	return h
}

// newRun creates a STARTED record for workflow name.
func (h *harness) newRun(t *testing.T, name string, maxRetries int, payload map[string]any) *zaps.RunRecord {
	t.Helper()
	rec := zaps.NewRunRecord(name, payload, maxRetries, zaps.TriggerManual)
	require.NoError(t, h.store.Create(context.Background(), rec))
	h.sleeper.runID = rec.ID
	return rec
}

// execute runs the loop synchronously and returns the final record.
func (h *harness) execute(t *testing.T, runID string) *zaps.RunRecord {
	t.Helper()
	require.NoError(t, h.runner.Execute(context.Background(), runID))
	rec, err := h.store.Get(context.Background(), runID)
	require.NoError(t, err)
	return rec
}

// start runs the loop in the background; the returned channel closes when
// it exits.
func (h *harness) start(runID string) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.runner.Execute(context.Background(), runID)
	}()
	return done
}

func (h *harness) get(t *testing.T, runID string) *zaps.RunRecord {
	t.Helper()
	rec, err := h.store.Get(context.Background(), runID)
	require.NoError(t, err)
	return rec
}

func (h *harness) waitForLog(t *testing.T, runID, line string) {
	t.Helper()
	require.Eventually(t, func() bool {
		rec, err := h.store.Get(context.Background(), runID)
		return err == nil && slices.Contains(rec.Logs, line)
	}, 2*time.Second, 5*time.Millisecond, "log line %q never appeared", line)
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("run loop did not exit")
	}
}

func containsPrefix(lines []string, prefix string) bool {
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}

func boolPtr(b bool) *bool { return &b }

func wf(name string, steps ...zaps.Step) *zaps.WorkflowDefinition {
	return &zaps.WorkflowDefinition{Name: name, Steps: steps}
}
