package services

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/soochol/minizaps/internal/zaps"
)

// ConcurrencyLimiter bounds how many runs execute simultaneously, globally
// and per workflow. A run waiting for a slot keeps its STARTED status; a
// paused run gives its slot back until it resumes.
type ConcurrencyLimiter struct {
	limits zaps.ConcurrencyLimits
	global chan struct{}

	mu         sync.Mutex
	byWorkflow map[string]chan struct{}

	active  atomic.Int64
	waiting atomic.Int64
}

// NewConcurrencyLimiter creates a limiter; non-positive limits fall back to
// the defaults.
func NewConcurrencyLimiter(limits zaps.ConcurrencyLimits) *ConcurrencyLimiter {
	def := zaps.DefaultConcurrencyLimits()
	if limits.GlobalMax <= 0 {
		limits.GlobalMax = def.GlobalMax
	}
	if limits.PerWorkflow <= 0 {
		limits.PerWorkflow = def.PerWorkflow
	}
	return &ConcurrencyLimiter{
		limits:     limits,
		global:     make(chan struct{}, limits.GlobalMax),
		byWorkflow: make(map[string]chan struct{}),
	}
}

// Acquire blocks until a global and a per-workflow slot are both held, or
// ctx ends. On error nothing is held.
func (c *ConcurrencyLimiter) Acquire(ctx context.Context, workflowName string) error {
	c.waiting.Add(1)
	defer c.waiting.Add(-1)

	if err := take(ctx, c.global); err != nil {
		return err
	}
	if err := take(ctx, c.workflowSlots(workflowName)); err != nil {
		<-c.global
		return err
	}
	c.active.Add(1)
	return nil
}

// Release returns the slots taken by a successful Acquire.
func (c *ConcurrencyLimiter) Release(workflowName string) {
	c.active.Add(-1)
	drain(c.workflowSlots(workflowName))
	drain(c.global)
}

// Slot returns an unheld claim for one run of workflowName. A nil limiter
// yields a slot whose methods do nothing.
func (c *ConcurrencyLimiter) Slot(workflowName string) *Slot {
	return &Slot{limiter: c, workflow: workflowName}
}

// Slot is one run's claim on the limiter. It is owned by a single run loop
// and is not safe for concurrent use. Acquire and Release are idempotent.
type Slot struct {
	limiter  *ConcurrencyLimiter
	workflow string
	held     bool
}

// Acquire takes the slot unless it is already held.
func (s *Slot) Acquire(ctx context.Context) error {
	if s.limiter == nil || s.held {
		return nil
	}
	if err := s.limiter.Acquire(ctx, s.workflow); err != nil {
		return err
	}
	s.held = true
	return nil
}

// Release gives the slot back if it is held.
func (s *Slot) Release() {
	if s.limiter == nil || !s.held {
		return
	}
	s.limiter.Release(s.workflow)
	s.held = false
}

// Held reports whether the slot is currently taken.
func (s *Slot) Held() bool { return s.held }

// ConcurrencyStats reports current usage.
type ConcurrencyStats struct {
	ActiveRuns  int `json:"active_runs"`
	WaitingRuns int `json:"waiting_runs"`
	GlobalMax   int `json:"global_max"`
	PerWorkflow int `json:"per_workflow"`
}

// Stats returns the current concurrency statistics.
func (c *ConcurrencyLimiter) Stats() ConcurrencyStats {
	return ConcurrencyStats{
		ActiveRuns:  int(c.active.Load()),
		WaitingRuns: int(c.waiting.Load()),
		GlobalMax:   c.limits.GlobalMax,
		PerWorkflow: c.limits.PerWorkflow,
	}
}

func (c *ConcurrencyLimiter) workflowSlots(name string) chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch, ok := c.byWorkflow[name]
	if !ok {
		ch = make(chan struct{}, c.limits.PerWorkflow)
		c.byWorkflow[name] = ch
	}
	return ch
}

func take(ctx context.Context, slots chan struct{}) error {
	select {
	case slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func drain(slots chan struct{}) {
	select {
	case <-slots:
	default:
	}
}
