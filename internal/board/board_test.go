package board

import (
	"strings"
	"testing"

	"tasklink/internal/domain"
)

func task(id int64, title, status string, order int) domain.Task {
	return domain.Task{ID: id, Title: title, Status: status, Order: order}
}

func loadedEngine(t *testing.T, tasks ...domain.Task) *Engine {
	t.Helper()
	e := NewEngine()
	e.Load(tasks)
	return e
}

func titles(col []*domain.Task) []string {
	out := make([]string, len(col))
	for i, t := range col {
		out[i] = t.Title
	}
	return out
}

func assertDenseOrder(t *testing.T, e *Engine) {
	t.Helper()
	for _, s := range domain.Statuses() {
		for idx, tk := range e.Column(s) {
			if tk.Order != idx {
				t.Fatalf("column %s index %d has order %d", s, idx, tk.Order)
			}
			if domain.NormalizeStatus(tk.Status) != s {
				t.Fatalf("column %s holds task with status %q", s, tk.Status)
			}
		}
	}
}

func TestLoadPartitionsAndSorts(t *testing.T) {
	e := loadedEngine(t,
		task(1, "b", "OPEN", 1),
		task(2, "a", " in_progress ", 0),
		task(3, "c", "WONTFIX", 0),
		task(4, "d", "done", 2),
		task(5, "e", "OPEN", 0),
	)
	open := titles(e.Column(domain.StatusOpen))
	if strings.Join(open, ",") != "c,e,b" {
		t.Fatalf("open column = %v", open)
	}
	if got := titles(e.Column(domain.StatusInProgress)); len(got) != 1 || got[0] != "a" {
		t.Fatalf("in progress column = %v", got)
	}
	if got := titles(e.Column(domain.StatusDone)); len(got) != 1 || got[0] != "d" {
		t.Fatalf("done column = %v", got)
	}
}

func TestLoadMissingOrderKeepsArrivalSequence(t *testing.T) {
	e := loadedEngine(t,
		task(1, "first", "OPEN", 0),
		task(2, "second", "OPEN", 0),
		task(3, "third", "OPEN", 0),
	)
	if got := titles(e.Column(domain.StatusOpen)); strings.Join(got, ",") != "first,second,third" {
		t.Fatalf("tie order not stable: %v", got)
	}
}

func TestMoveWithinColumn(t *testing.T) {
	e := loadedEngine(t,
		task(1, "a", "OPEN", 0),
		task(2, "b", "OPEN", 1),
		task(3, "c", "OPEN", 2),
	)
	if _, err := e.Move(domain.StatusOpen, 0, 2, nil); err != nil {
		t.Fatal(err)
	}
	if got := titles(e.Column(domain.StatusOpen)); strings.Join(got, ",") != "b,c,a" {
		t.Fatalf("after move: %v", got)
	}
	Plan(e.Column(domain.StatusOpen), domain.StatusOpen, e.Generation())
	assertDenseOrder(t, e)
}

func TestMoveOutOfRange(t *testing.T) {
	e := loadedEngine(t, task(1, "a", "OPEN", 0))
	if _, err := e.Move(domain.StatusOpen, 3, 0, nil); err == nil {
		t.Fatal("expected range error")
	}
}

func TestTransferAcrossColumns(t *testing.T) {
	e := loadedEngine(t,
		task(1, "a", "OPEN", 0),
		task(2, "b", "OPEN", 1),
		task(3, "c", "IN_PROGRESS", 0),
	)
	change, err := e.Transfer(domain.StatusOpen, 1, domain.StatusInProgress, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(change.Columns) != 2 {
		t.Fatalf("expected both columns touched, got %v", change.Columns)
	}
	if got := titles(e.Column(domain.StatusOpen)); strings.Join(got, ",") != "a" {
		t.Fatalf("source column: %v", got)
	}
	if got := titles(e.Column(domain.StatusInProgress)); strings.Join(got, ",") != "b,c" {
		t.Fatalf("destination column: %v", got)
	}
	if _, s, ok := e.Find(2); !ok || s != domain.StatusInProgress {
		t.Fatalf("task 2 in column %s, ok=%v", s, ok)
	}
	// a task lives in exactly one column
	total := 0
	for _, st := range domain.Statuses() {
		for _, tk := range e.Column(st) {
			if tk.ID == 2 {
				total++
			}
		}
	}
	if total != 1 {
		t.Fatalf("task 2 appears in %d columns", total)
	}
	for _, st := range change.Columns {
		Plan(e.Column(st), st, change.Generation)
	}
	assertDenseOrder(t, e)
}

func TestTransferDraftIsLocalOnly(t *testing.T) {
	e := loadedEngine(t, task(1, "a", "OPEN", 0))
	if _, ok := e.CreateDraft(domain.StatusOpen, "draft"); !ok {
		t.Fatal("draft rejected")
	}
	change, err := e.Transfer(domain.StatusOpen, 1, domain.StatusDone, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(change.Columns) != 0 {
		t.Fatalf("draft transfer must not persist, got %v", change.Columns)
	}
	if got := titles(e.Column(domain.StatusDone)); len(got) != 1 || got[0] != "draft" {
		t.Fatalf("done column: %v", got)
	}
}

func TestFilteredMoveKeepsHiddenTasks(t *testing.T) {
	e := loadedEngine(t,
		task(1, "alpha one", "OPEN", 0),
		task(2, "hidden", "OPEN", 1),
		task(3, "alpha two", "OPEN", 2),
		task(4, "alpha three", "OPEN", 3),
	)
	f := TextFilter("alpha")
	// visible: [alpha one, alpha two, alpha three]; move first to last
	if _, err := e.Move(domain.StatusOpen, 0, 2, f); err != nil {
		t.Fatal(err)
	}
	got := titles(e.Column(domain.StatusOpen))
	if strings.Join(got, ",") != "hidden,alpha two,alpha three,alpha one" {
		t.Fatalf("after filtered move: %v", got)
	}
}

func TestFilteredTransferInsertsBeforeVisibleTarget(t *testing.T) {
	e := loadedEngine(t,
		task(1, "alpha src", "OPEN", 0),
		task(2, "hidden dst", "IN_PROGRESS", 0),
		task(3, "alpha dst", "IN_PROGRESS", 1),
	)
	f := TextFilter("alpha")
	if _, err := e.Transfer(domain.StatusOpen, 0, domain.StatusInProgress, 0, f); err != nil {
		t.Fatal(err)
	}
	got := titles(e.Column(domain.StatusInProgress))
	if strings.Join(got, ",") != "hidden dst,alpha src,alpha dst" {
		t.Fatalf("after filtered transfer: %v", got)
	}
}

func TestCreateDraftRejectsBlankTitle(t *testing.T) {
	e := loadedEngine(t, task(1, "a", "OPEN", 0))
	for _, title := range []string{"", "   ", "\t\n"} {
		if _, ok := e.CreateDraft(domain.StatusOpen, title); ok {
			t.Fatalf("blank title %q accepted", title)
		}
	}
	if got := len(e.Column(domain.StatusOpen)); got != 1 {
		t.Fatalf("column mutated on rejected create: %d tasks", got)
	}
}

func TestCreateAndConfirmDraft(t *testing.T) {
	e := loadedEngine(t, task(1, "a", "DONE", 0))
	draft, ok := e.CreateDraft(domain.StatusDone, "  new work  ")
	if !ok {
		t.Fatal("draft rejected")
	}
	if draft.Title != "new work" || draft.Order != 1 || draft.LocalID == "" {
		t.Fatalf("draft = %+v", draft)
	}
	created := task(9, "new work", "DONE", 1)
	created.Assignee = &domain.Assignee{ID: 4, Email: "dev@x.com"}
	if !e.Confirm(draft.LocalID, created) {
		t.Fatal("confirm failed")
	}
	col := e.Column(domain.StatusDone)
	if col[1].ID != 9 || col[1].AssigneeName != "dev@x.com" {
		t.Fatalf("confirmed task = %+v", col[1])
	}
}

func TestConfirmAfterReloadIsNoop(t *testing.T) {
	e := loadedEngine(t)
	draft, _ := e.CreateDraft(domain.StatusOpen, "ephemeral")
	e.Load([]domain.Task{task(1, "a", "OPEN", 0)})
	if e.Confirm(draft.LocalID, task(9, "ephemeral", "OPEN", 1)) {
		t.Fatal("confirm must not apply after a reload dropped the draft")
	}
}

func TestLoadBumpsGeneration(t *testing.T) {
	e := NewEngine()
	g0 := e.Generation()
	e.Load(nil)
	if e.Generation() != g0+1 {
		t.Fatalf("generation %d after load, want %d", e.Generation(), g0+1)
	}
}
