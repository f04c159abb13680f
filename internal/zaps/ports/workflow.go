package ports

import "github.com/soochol/minizaps/internal/zaps"

// DefinitionLoader resolves workflow definitions by name.
type DefinitionLoader interface {
	Load(name string) (*zaps.WorkflowDefinition, error)
	List() ([]string, error)
}

// ActiveRegistry tracks runs whose loop is executing in this process.
// Entries are informational; the run store stays authoritative.
type ActiveRegistry interface {
	Register(run zaps.ActiveRun)
	SetStep(runID string, step int)
	Unregister(runID string)
	Snapshot() map[string]zaps.ActiveRun
}
