package board

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"

	"tasklink/internal/api"
	"tasklink/internal/domain"
)

type fakeUpdater struct {
	mu      sync.Mutex
	calls   []Update
	failAll bool
}

func (f *fakeUpdater) UpdateTask(_ context.Context, id int64, u api.TaskUpdate) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Update{TaskID: id, Payload: u})
	if f.failAll {
		return domain.Task{}, errors.New("boom")
	}
	return domain.Task{ID: id, Title: u.Title, Status: u.Status, Order: u.Order}, nil
}

func (f *fakeUpdater) recorded() []Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Update, len(f.calls))
	copy(out, f.calls)
	return out
}

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func TestPlanEmitsOnlyChangedSavedTasks(t *testing.T) {
	e := loadedEngine(t,
		task(1, "a", "OPEN", 0),
		task(2, "b", "OPEN", 1),
		task(3, "c", "OPEN", 2),
	)
	change, err := e.Move(domain.StatusOpen, 0, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	updates := Plan(e.Column(domain.StatusOpen), domain.StatusOpen, change.Generation)
	// every task shifted position, so all three are stale
	if len(updates) != 3 {
		t.Fatalf("got %d updates, want 3", len(updates))
	}
	for _, u := range updates {
		if u.Payload.Title == "" || u.Payload.Status != "OPEN" {
			t.Fatalf("update must carry the full record: %+v", u.Payload)
		}
	}
	// planning the unchanged column again emits nothing
	if again := Plan(e.Column(domain.StatusOpen), domain.StatusOpen, change.Generation); len(again) != 0 {
		t.Fatalf("re-plan emitted %d updates", len(again))
	}
}

func TestPlanSkipsDrafts(t *testing.T) {
	e := loadedEngine(t, task(1, "a", "OPEN", 0))
	e.CreateDraft(domain.StatusOpen, "draft")
	if _, err := e.Move(domain.StatusOpen, 1, 0, nil); err != nil {
		t.Fatal(err)
	}
	updates := Plan(e.Column(domain.StatusOpen), domain.StatusOpen, e.Generation())
	if len(updates) != 1 || updates[0].TaskID != 1 {
		t.Fatalf("updates = %+v", updates)
	}
}

func TestPlanEmitsMovedTaskAfterTransfer(t *testing.T) {
	e := loadedEngine(t,
		task(1, "a", "OPEN", 0),
		task(2, "b", "IN_PROGRESS", 0),
	)
	change, err := e.Transfer(domain.StatusOpen, 0, domain.StatusInProgress, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	updates := Plan(e.Column(domain.StatusInProgress), domain.StatusInProgress, change.Generation)
	// the moved task lands at the index it already had; the status change
	// alone must make it stale
	if len(updates) != 2 {
		t.Fatalf("got %d updates, want 2: %+v", len(updates), updates)
	}
	if updates[0].TaskID != 1 || updates[0].Payload.Status != "IN_PROGRESS" || updates[0].Payload.Order != 0 {
		t.Fatalf("moved task update = %+v", updates[0])
	}
}

func TestReconcilerPushesUpdates(t *testing.T) {
	e := loadedEngine(t,
		task(1, "a", "OPEN", 0),
		task(2, "b", "OPEN", 1),
	)
	change, err := e.Move(domain.StatusOpen, 0, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	up := &fakeUpdater{}
	r := NewReconciler(up, quietLogger())
	r.Apply(context.Background(), e, change)
	r.Wait()
	calls := up.recorded()
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
	assertDenseOrder(t, e)
}

func TestReconcilerSwallowsFailures(t *testing.T) {
	e := loadedEngine(t,
		task(1, "a", "OPEN", 0),
		task(2, "b", "OPEN", 1),
	)
	change, err := e.Move(domain.StatusOpen, 0, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	up := &fakeUpdater{failAll: true}
	r := NewReconciler(up, quietLogger())
	r.Apply(context.Background(), e, change)
	r.Wait()
	// local optimistic state stands
	if got := titles(e.Column(domain.StatusOpen)); got[0] != "b" || got[1] != "a" {
		t.Fatalf("local order reverted: %v", got)
	}
	assertDenseOrder(t, e)
}

func TestReconcilerDropsStaleGeneration(t *testing.T) {
	e := loadedEngine(t,
		task(1, "a", "OPEN", 0),
		task(2, "b", "OPEN", 1),
	)
	change, err := e.Move(domain.StatusOpen, 0, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	updates := Plan(e.Column(domain.StatusOpen), domain.StatusOpen, change.Generation)
	// a reload lands before the updates go out
	e.Load([]domain.Task{task(1, "a", "OPEN", 0), task(2, "b", "OPEN", 1)})

	up := &fakeUpdater{}
	r := NewReconciler(up, quietLogger())
	r.dispatch(context.Background(), e, updates)
	r.Wait()
	if calls := up.recorded(); len(calls) != 0 {
		t.Fatalf("stale updates reached the wire: %+v", calls)
	}
}
