package services

import (
	"github.com/soochol/minizaps/internal/repository/memory"
	"github.com/soochol/minizaps/internal/zaps"
	"github.com/soochol/minizaps/internal/zaps/ports"
)

var _ ports.ActiveRegistry = (*ActiveRegistry)(nil)

// ActiveRegistry is the in-process ports.ActiveRegistry. Each run owns its
// own entry; readers get an eventually consistent snapshot.
type ActiveRegistry struct {
	runs *memory.Store[zaps.ActiveRun]
}

func NewActiveRegistry() *ActiveRegistry {
	return &ActiveRegistry{
		runs: memory.New(func(r zaps.ActiveRun) string { return r.RunID }),
	}
}

func (a *ActiveRegistry) Register(run zaps.ActiveRun) {
	if run.Status == "" {
		run.Status = "running"
	}
	a.runs.Set(run)
}

func (a *ActiveRegistry) SetStep(runID string, step int) {
	_ = a.runs.Mutate(runID, func(r *zaps.ActiveRun) { r.CurrentStep = step })
}

func (a *ActiveRegistry) Unregister(runID string) {
	a.runs.Delete(runID)
}

func (a *ActiveRegistry) Snapshot() map[string]zaps.ActiveRun {
	return a.runs.Snapshot()
}
