package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soochol/minizaps/internal/repository"
	"github.com/soochol/minizaps/internal/zaps"
)

func newTestRun(name string) *zaps.RunRecord {
	return zaps.NewRunRecord(name, map[string]any{}, 3, zaps.TriggerManual)
}

func TestMemoryRunRepository_CreateGetIsolated(t *testing.T) {
	repo := repository.NewMemoryRunRepository()
	ctx := context.Background()
	rec := newTestRun("wf")
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Logs = append(got.Logs, "not persisted")
	got.Status = zaps.RunStatusFailed

	again, _ := repo.Get(ctx, rec.ID)
	if len(again.Logs) != 0 || again.Status != zaps.RunStatusStarted {
		t.Fatalf("mutating a returned copy changed the store: %+v", again)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRunRepository_Update(t *testing.T) {
	repo := repository.NewMemoryRunRepository()
	ctx := context.Background()
	rec := newTestRun("wf")
	_ = repo.Create(ctx, rec)

	updated, err := repo.Update(ctx, rec.ID, func(r *zaps.RunRecord) error {
		r.Status = zaps.RunStatusPaused
		r.Logs = append(r.Logs, "paused")
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != zaps.RunStatusPaused || len(updated.Logs) != 1 {
		t.Fatalf("unexpected updated record: %+v", updated)
	}
	if updated.UpdatedAt.Before(rec.UpdatedAt) {
		t.Fatal("updated_at must not move backwards")
	}

	errVeto := errors.New("veto")
	_, err = repo.Update(ctx, rec.ID, func(r *zaps.RunRecord) error {
		r.Status = zaps.RunStatusStopped
		return errVeto
	})
	if !errors.Is(err, errVeto) {
		t.Fatalf("expected mutate error, got %v", err)
	}
	got, _ := repo.Get(ctx, rec.ID)
	if got.Status != zaps.RunStatusPaused {
		t.Fatalf("rejected mutation was persisted: %s", got.Status)
	}

	if _, err := repo.Update(ctx, "missing", func(*zaps.RunRecord) error { return nil }); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRunRepository_ConcurrentUpdatesDoNotLoseLogs(t *testing.T) {
	repo := repository.NewMemoryRunRepository()
	ctx := context.Background()
	rec := newTestRun("wf")
	_ = repo.Create(ctx, rec)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.Update(ctx, rec.ID, func(r *zaps.RunRecord) error {
				r.Logs = append(r.Logs, "line")
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := repo.Get(ctx, rec.ID)
	if len(got.Logs) != 50 {
		t.Fatalf("expected 50 log lines, got %d", len(got.Logs))
	}
}

func TestMemoryRunRepository_ListNewestFirst(t *testing.T) {
	repo := repository.NewMemoryRunRepository()
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 5; i++ {
		rec := newTestRun("wf")
		rec.CreatedAt = base.Add(time.Duration(i) * time.Second)
		_ = repo.Create(ctx, rec)
	}

	list, err := repo.List(ctx, 3)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i].CreatedAt.After(list[i-1].CreatedAt) {
			t.Fatal("runs not sorted newest first")
		}
	}
}

func TestMemoryRunRepository_EvictsFinishedRunsFirst(t *testing.T) {
	repo := repository.NewMemoryRunRepositoryWithCapacity(2)
	ctx := context.Background()

	running := newTestRun("running")
	finished := newTestRun("finished")
	finished.Status = zaps.RunStatusSucceeded
	_ = repo.Create(ctx, running)
	_ = repo.Create(ctx, finished)
	_ = repo.Create(ctx, newTestRun("third"))

	if _, err := repo.Get(ctx, running.ID); err != nil {
		t.Fatalf("running record was evicted: %v", err)
	}
	if _, err := repo.Get(ctx, finished.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected finished record to be evicted, got %v", err)
	}
}

func TestMemoryRunRepository_KeepsUnfinishedRunsPastCapacity(t *testing.T) {
	repo := repository.NewMemoryRunRepositoryWithCapacity(2)
	ctx := context.Background()

	runs := []*zaps.RunRecord{newTestRun("a"), newTestRun("b"), newTestRun("c")}
	runs[1].Status = zaps.RunStatusPaused
	for _, r := range runs {
		_ = repo.Create(ctx, r)
	}
	for _, r := range runs {
		if _, err := repo.Get(ctx, r.ID); err != nil {
			t.Fatalf("unfinished run %s was evicted: %v", r.WorkflowName, err)
		}
	}

	// Once runs finish, the store shrinks back to capacity on the next insert.
	for _, r := range runs[:2] {
		if _, err := repo.Update(ctx, r.ID, func(rec *zaps.RunRecord) error {
			rec.Status = zaps.RunStatusSucceeded
			return nil
		}); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}
	latest := newTestRun("d")
	_ = repo.Create(ctx, latest)

	all, _ := repo.List(ctx, 0)
	if len(all) != 2 {
		t.Fatalf("expected 2 records after eviction, got %d", len(all))
	}
	for _, r := range []*zaps.RunRecord{runs[2], latest} {
		if _, err := repo.Get(ctx, r.ID); err != nil {
			t.Fatalf("run %s should be kept: %v", r.WorkflowName, err)
		}
	}
}

func TestMemoryRunRepository_MarkOrphanedRunsFailed(t *testing.T) {
	repo := repository.NewMemoryRunRepository()
	ctx := context.Background()

	started := newTestRun("a")
	retrying := newTestRun("b")
	retrying.Status = zaps.RunStatusRetrying
	paused := newTestRun("c")
	paused.Status = zaps.RunStatusPaused
	for _, r := range []*zaps.RunRecord{started, retrying, paused} {
		_ = repo.Create(ctx, r)
	}

	n, err := repo.MarkOrphanedRunsFailed(ctx, "orphaned")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 orphaned runs, got %d (%v)", n, err)
	}
	got, _ := repo.Get(ctx, started.ID)
	if got.Status != zaps.RunStatusFailed || got.Logs[len(got.Logs)-1] != "orphaned" {
		t.Fatalf("unexpected orphan state: %+v", got)
	}
	got, _ = repo.Get(ctx, paused.ID)
	if got.Status != zaps.RunStatusPaused {
		t.Fatalf("paused run must be left alone, got %s", got.Status)
	}
}
