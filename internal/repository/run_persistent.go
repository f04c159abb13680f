package repository

import (
	"context"
	"errors"
	"log/slog"

	"github.com/soochol/minizaps/internal/zaps"
)

// RunDB defines the DB-layer methods needed by the persistent run repo.
// *db.DB satisfies this interface.
type RunDB interface {
	CreateRun(ctx context.Context, r *zaps.RunRecord) error
	GetRun(ctx context.Context, id string) (*zaps.RunRecord, error)
	UpdateRun(ctx context.Context, r *zaps.RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]*zaps.RunRecord, error)
	MarkOrphanedRunsFailed(ctx context.Context, message string) (int64, error)
	Ping(ctx context.Context) error
}

// PersistentRunRepository wraps a MemoryRunRepository with a PostgreSQL backend.
// The memory copy serializes updates within the process; every successful
// write is mirrored to the database (DB failure is logged but non-fatal).
// Reads try memory first, falling back to the database.
type PersistentRunRepository struct {
	mem *MemoryRunRepository
	db  RunDB
}

func NewPersistentRunRepository(mem *MemoryRunRepository, database RunDB) *PersistentRunRepository {
	return &PersistentRunRepository{mem: mem, db: database}
}

func (r *PersistentRunRepository) Create(ctx context.Context, record *zaps.RunRecord) error {
	_ = r.mem.Create(ctx, record)
	if err := r.db.CreateRun(ctx, record); err != nil {
		slog.Warn("db create run failed, in-memory only", "run_id", record.ID, "err", err)
	}
	return nil
}

func (r *PersistentRunRepository) Get(ctx context.Context, id string) (*zaps.RunRecord, error) {
	rec, err := r.mem.Get(ctx, id)
	if err == nil {
		return rec, nil
	}

	dbRec, dbErr := r.db.GetRun(ctx, id)
	if dbErr != nil {
		return nil, err // return original ErrNotFound
	}

	_ = r.mem.Create(ctx, dbRec)
	return dbRec.Clone(), nil
}

func (r *PersistentRunRepository) Update(ctx context.Context, id string, mutate func(*zaps.RunRecord) error) (*zaps.RunRecord, error) {
	updated, err := r.mem.Update(ctx, id, mutate)
	if errors.Is(err, ErrNotFound) {
		// Evicted from memory or written by an earlier process.
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return nil, err
		}
		updated, err = r.mem.Update(ctx, id, mutate)
	}
	if err != nil {
		return nil, err
	}
	if err := r.db.UpdateRun(ctx, updated); err != nil {
		slog.Warn("db update run failed, in-memory only", "run_id", id, "err", err)
	}
	return updated, nil
}

func (r *PersistentRunRepository) List(ctx context.Context, limit int) ([]*zaps.RunRecord, error) {
	runs, err := r.db.ListRuns(ctx, limit)
	if err == nil {
		return runs, nil
	}
	slog.Warn("db list runs failed, falling back to in-memory", "err", err)
	return r.mem.List(ctx, limit)
}

// MarkOrphanedRunsFailed fails runs a previous process left unfinished.
func (r *PersistentRunRepository) MarkOrphanedRunsFailed(ctx context.Context, message string) (int64, error) {
	_, _ = r.mem.MarkOrphanedRunsFailed(ctx, message)
	return r.db.MarkOrphanedRunsFailed(ctx, message)
}

func (r *PersistentRunRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}
