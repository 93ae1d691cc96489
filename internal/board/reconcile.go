package board

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"tasklink/internal/api"
	"tasklink/internal/domain"
)

// TaskUpdater persists full-record task updates to the remote store.
type TaskUpdater interface {
	UpdateTask(ctx context.Context, id int64, u api.TaskUpdate) (domain.Task, error)
}

// Update is one pending remote write produced by planning.
type Update struct {
	TaskID     int64
	Payload    api.TaskUpdate
	Generation uint64
}

// Plan walks a column by current index and emits an update for every task
// with server identity whose stored order or status no longer matches its
// position. It then re-derives the dense 0..n-1 order on the local tasks, so
// planning the same unchanged column again emits nothing. Drafts are
// renumbered locally but never persisted.
func Plan(col []*domain.Task, status domain.Status, generation uint64) []Update {
	var updates []Update
	for idx, t := range col {
		changed := t.Order != idx || domain.NormalizeStatus(t.Status) != status
		if changed && t.Saved() {
			updates = append(updates, Update{
				TaskID: t.ID,
				Payload: api.TaskUpdate{
					Title:       t.Title,
					Description: t.Description,
					Status:      string(status),
					Order:       idx,
				},
				Generation: generation,
			})
		}
		t.Order = idx
		t.Status = string(status)
	}
	return updates
}

// Reconciler pushes planned updates to the remote store. Each update is an
// independent request: no batching, no ordering between them, no rollback. A
// failed update is logged and swallowed; the optimistic local state stands
// until the next full reload. Updates stamped with a stale generation are
// dropped before they reach the wire.
type Reconciler struct {
	Updater TaskUpdater
	Log     *log.Logger

	wg sync.WaitGroup
}

func NewReconciler(updater TaskUpdater, logger *log.Logger) *Reconciler {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Reconciler{Updater: updater, Log: logger}
}

// Apply plans every column touched by the change and dispatches the updates.
// The calling gesture does not wait on completions.
func (r *Reconciler) Apply(ctx context.Context, e *Engine, change Change) {
	for _, s := range change.Columns {
		updates := Plan(e.Column(s), s, change.Generation)
		r.dispatch(ctx, e, updates)
	}
}

func (r *Reconciler) dispatch(ctx context.Context, e *Engine, updates []Update) {
	for _, u := range updates {
		u := u
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if e.Generation() != u.Generation {
				r.Log.WithFields(log.Fields{"task": u.TaskID, "generation": u.Generation}).
					Debug("dropping stale order update")
				return
			}
			if _, err := r.Updater.UpdateTask(ctx, u.TaskID, u.Payload); err != nil {
				r.Log.WithFields(log.Fields{
					"task":   u.TaskID,
					"status": u.Payload.Status,
					"order":  u.Payload.Order,
				}).WithError(err).Warn("order update failed; local state kept")
			}
		}()
	}
}

// Wait blocks until every dispatched update has completed. One-shot processes
// call this before exiting so persistence is not cut off mid-flight.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}
