package ports

import (
	"context"

	"github.com/soochol/minizaps/internal/zaps"
)

// RunStore persists run records. Services depend on this interface rather
// than on a concrete repository.
//
// Get and List return copies; callers may not mutate stored state through
// them. Update applies mutate to the current record under the store's lock
// and persists the result only when mutate returns nil, so concurrent
// read-modify-write cycles on one record never interleave.
type RunStore interface {
	Create(ctx context.Context, record *zaps.RunRecord) error
	Get(ctx context.Context, id string) (*zaps.RunRecord, error)
	Update(ctx context.Context, id string, mutate func(*zaps.RunRecord) error) (*zaps.RunRecord, error)
	// List returns up to limit records, newest first.
	List(ctx context.Context, limit int) ([]*zaps.RunRecord, error)
	Ping(ctx context.Context) error
}
