package services

import "sync"

// RunSignals wakes goroutines waiting on a run's status. Each run has one
// notification channel that is closed and replaced whenever Notify is
// called, so any number of waiters can share it.
type RunSignals struct {
	mu   sync.Mutex
	subs map[string]chan struct{}
}

func NewRunSignals() *RunSignals {
	return &RunSignals{subs: make(map[string]chan struct{})}
}

// Subscribe returns a channel that is closed on the next Notify for runID.
// Subscribe before reading the status being waited on, otherwise a change
// between the read and the subscription is missed.
func (s *RunSignals) Subscribe(runID string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.subs[runID]
	if !ok {
		ch = make(chan struct{})
		s.subs[runID] = ch
	}
	return ch
}

// Notify wakes every current subscriber of runID.
func (s *RunSignals) Notify(runID string) {
	s.mu.Lock()
	ch, ok := s.subs[runID]
	delete(s.subs, runID)
	s.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Forget drops the run's channel once its loop has exited.
func (s *RunSignals) Forget(runID string) {
	s.Notify(runID)
}
