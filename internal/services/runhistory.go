package services

import (
	"context"
	"log/slog"

	"github.com/soochol/minizaps/internal/zaps"
	"github.com/soochol/minizaps/internal/zaps/ports"
)

const (
	DefaultRunListLimit = 100
	MaxRunListLimit     = 1000
)

// orphanedRunMessage is appended to runs a previous process left unfinished.
const orphanedRunMessage = "Workflow failed with error: interrupted by server restart"

// RunHistoryService answers run queries and cleans up after restarts.
type RunHistoryService struct {
	runRepo ports.RunStore
}

func NewRunHistoryService(runRepo ports.RunStore) *RunHistoryService {
	return &RunHistoryService{runRepo: runRepo}
}

// GetRun retrieves a single run record by ID.
func (s *RunHistoryService) GetRun(ctx context.Context, id string) (*zaps.RunRecord, error) {
	return s.runRepo.Get(ctx, id)
}

// ListRuns returns the most recent runs, newest first. limit is clamped to
// [1, MaxRunListLimit]; zero or less selects DefaultRunListLimit.
func (s *RunHistoryService) ListRuns(ctx context.Context, limit int) ([]zaps.RunSummary, error) {
	if limit <= 0 {
		limit = DefaultRunListLimit
	}
	if limit > MaxRunListLimit {
		limit = MaxRunListLimit
	}
	runs, err := s.runRepo.List(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]zaps.RunSummary, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.Summary())
	}
	return out, nil
}

// CleanupOrphanedRuns marks all started/retrying runs as failed.
// Should be called once at server startup, before any run is triggered.
func (s *RunHistoryService) CleanupOrphanedRuns(ctx context.Context) {
	type orphanCleaner interface {
		MarkOrphanedRunsFailed(ctx context.Context, message string) (int64, error)
	}
	if c, ok := s.runRepo.(orphanCleaner); ok {
		n, err := c.MarkOrphanedRunsFailed(ctx, orphanedRunMessage)
		if err != nil {
			slog.Warn("failed to clean up orphaned runs", "err", err)
			return
		}
		if n > 0 {
			slog.Info("marked orphaned runs as failed", "count", n)
		}
	}
}
