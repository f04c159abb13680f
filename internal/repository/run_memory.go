package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/soochol/minizaps/internal/zaps"
)

// DefaultMaxRunRecords bounds the number of runs kept in memory.
const DefaultMaxRunRecords = 1000

// MemoryRunRepository stores run records in memory with FIFO eviction.
// Only finished runs are evicted; while every record is unfinished the
// store grows past its capacity rather than drop a live run.
type MemoryRunRepository struct {
	mu       sync.RWMutex
	records  map[string]*zaps.RunRecord
	order    []string // insertion order for FIFO eviction
	capacity int
}

func NewMemoryRunRepository() *MemoryRunRepository {
	return NewMemoryRunRepositoryWithCapacity(DefaultMaxRunRecords)
}

func NewMemoryRunRepositoryWithCapacity(capacity int) *MemoryRunRepository {
	if capacity <= 0 {
		capacity = DefaultMaxRunRecords
	}
	return &MemoryRunRepository{
		records:  make(map[string]*zaps.RunRecord),
		capacity: capacity,
	}
}

func (r *MemoryRunRepository) Create(_ context.Context, record *zaps.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(record.Clone())
	return nil
}

// put inserts or replaces a record. Caller holds the write lock.
func (r *MemoryRunRepository) put(record *zaps.RunRecord) {
	if _, exists := r.records[record.ID]; exists {
		r.records[record.ID] = record
		return
	}
	r.evict(len(r.order) + 1 - r.capacity)
	r.records[record.ID] = record
	r.order = append(r.order, record.ID)
}

// evict drops up to n finished records, oldest first. Caller holds the
// write lock.
func (r *MemoryRunRepository) evict(n int) {
	if n <= 0 {
		return
	}
	kept := r.order[:0]
	for _, id := range r.order {
		if n > 0 && r.records[id].Status.Terminal() {
			delete(r.records, id)
			n--
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
}

func (r *MemoryRunRepository) Get(_ context.Context, id string) (*zaps.RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

func (r *MemoryRunRepository) Update(_ context.Context, id string, mutate func(*zaps.RunRecord) error) (*zaps.RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := rec.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.ID = rec.ID
	next.UpdatedAt = time.Now().UTC()
	r.records[id] = next
	return next.Clone(), nil
}

func (r *MemoryRunRepository) List(_ context.Context, limit int) ([]*zaps.RunRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*zaps.RunRecord, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		all = append(all, r.records[r.order[i]].Clone())
	}

	// Newest first; ties keep reverse insertion order.
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// MarkOrphanedRunsFailed fails every run left STARTED or RETRYING, appending
// message to its logs. It returns the number of runs changed.
func (r *MemoryRunRepository) MarkOrphanedRunsFailed(_ context.Context, message string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	now := time.Now().UTC()
	for id, rec := range r.records {
		if rec.Status != zaps.RunStatusStarted && rec.Status != zaps.RunStatusRetrying {
			continue
		}
		next := rec.Clone()
		next.Status = zaps.RunStatusFailed
		next.Logs = append(next.Logs, message)
		next.UpdatedAt = now
		r.records[id] = next
		n++
	}
	return n, nil
}

func (r *MemoryRunRepository) Ping(context.Context) error { return nil }
