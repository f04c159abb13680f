package services

import (
	"context"
	"errors"

	"github.com/soochol/minizaps/internal/repository"
	"github.com/soochol/minizaps/internal/zaps"
	"github.com/soochol/minizaps/internal/zaps/ports"
)

// runJournal is the run loop's view of one run record. Every write is a
// single atomic store update, so status changes from the control endpoint
// and the loop's own writes never overwrite each other's logs.
type runJournal struct {
	store ports.RunStore
	id    string
}

// writeCtx detaches writes from cancellation so a run that is being torn
// down can still record how it ended.
func writeCtx(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func (j *runJournal) update(ctx context.Context, fn func(r *zaps.RunRecord)) (*zaps.RunRecord, error) {
	return j.store.Update(writeCtx(ctx), j.id, func(r *zaps.RunRecord) error {
		fn(r)
		return nil
	})
}

// log appends lines to the run's logs.
func (j *runJournal) log(ctx context.Context, lines ...string) error {
	_, err := j.update(ctx, func(r *zaps.RunRecord) {
		r.Logs = append(r.Logs, lines...)
	})
	return err
}

// status reads the current status. A record that no longer exists reads as
// STOPPED so the loop halts.
func (j *runJournal) status(ctx context.Context) (zaps.RunStatus, error) {
	rec, err := j.store.Get(writeCtx(ctx), j.id)
	if errors.Is(err, repository.ErrNotFound) {
		return zaps.RunStatusStopped, nil
	}
	if err != nil {
		return "", err
	}
	return rec.Status, nil
}

// advance records step as the current step. current_step never decreases.
func advance(r *zaps.RunRecord, step int) {
	if step > r.CurrentStep {
		r.CurrentStep = step
	}
}

// setStatus moves the record to status when the state machine allows it and
// reports whether it did.
func setStatus(r *zaps.RunRecord, status zaps.RunStatus) bool {
	if !r.Status.CanTransition(status) {
		return false
	}
	r.Status = status
	return true
}
