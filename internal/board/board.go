package board

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"

	"tasklink/internal/domain"
)

// Filter decides which tasks are visible in a column. A nil filter shows
// everything. Move and Transfer take indices into the visible subset and map
// them back to absolute positions before mutating, so reordering a filtered
// view never corrupts hidden tasks.
type Filter func(domain.Task) bool

// TextFilter matches key, title, description, or assignee name, case-insensitively.
func TextFilter(query string) Filter {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	return func(t domain.Task) bool {
		for _, v := range []string{t.Key, t.Title, t.Description, t.AssigneeName} {
			if strings.Contains(strings.ToLower(v), q) {
				return true
			}
		}
		return false
	}
}

// Change records which columns a mutation touched, stamped with the board
// generation the mutation was applied under.
type Change struct {
	Generation uint64
	Columns    []domain.Status
}

// Engine holds the three-status partition of a project's tasks and the
// mutation operations that keep per-column order dense. All mutations are
// synchronous and optimistic; persistence is the reconciler's business.
type Engine struct {
	columns    map[domain.Status][]*domain.Task
	generation atomic.Uint64

	// NewDraftID is injectable for tests.
	NewDraftID func() string
}

func NewEngine() *Engine {
	e := &Engine{
		columns:    emptyColumns(),
		NewDraftID: uuid.NewString,
	}
	return e
}

func emptyColumns() map[domain.Status][]*domain.Task {
	cols := make(map[domain.Status][]*domain.Task, 3)
	for _, s := range domain.Statuses() {
		cols[s] = nil
	}
	return cols
}

// Load replaces the whole partition from a flat, unordered task list.
// Statuses are normalized (unrecognized values land in OPEN), columns are
// sorted ascending by stored order with ties keeping arrival sequence, and
// every task is decorated. Bumps the board generation so reconciliation
// results from before the reload are rejected.
func (e *Engine) Load(tasks []domain.Task) {
	cols := emptyColumns()
	for i := range tasks {
		t := domain.Decorate(tasks[i])
		s := domain.NormalizeStatus(t.Status)
		cols[s] = append(cols[s], &t)
	}
	for _, s := range domain.Statuses() {
		col := cols[s]
		sort.SliceStable(col, func(i, j int) bool { return col[i].Order < col[j].Order })
	}
	e.columns = cols
	e.generation.Add(1)
}

// Generation returns the current load generation. Safe to read from
// reconciler goroutines.
func (e *Engine) Generation() uint64 { return e.generation.Load() }

// Column returns the column's task sequence. The engine keeps ownership of
// the tasks; callers must not reorder the returned slice.
func (e *Engine) Column(s domain.Status) []*domain.Task {
	col := e.columns[s]
	out := make([]*domain.Task, len(col))
	copy(out, col)
	return out
}

// Visible returns the column's tasks passing the filter.
func (e *Engine) Visible(s domain.Status, f Filter) []*domain.Task {
	var out []*domain.Task
	for _, t := range e.columns[s] {
		if f == nil || f(*t) {
			out = append(out, t)
		}
	}
	return out
}

// visibleIndexes maps visible positions to absolute column indices.
func (e *Engine) visibleIndexes(s domain.Status, f Filter) []int {
	var idx []int
	for i, t := range e.columns[s] {
		if f == nil || f(*t) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Find locates a saved task by id.
func (e *Engine) Find(id int64) (*domain.Task, domain.Status, bool) {
	for _, s := range domain.Statuses() {
		for _, t := range e.columns[s] {
			if t.ID == id && id != 0 {
				return t, s, true
			}
		}
	}
	return nil, "", false
}

// Move reorders a task inside one column. Indices address the visible subset
// under the filter. Standard list-move semantics: remove, then reinsert.
func (e *Engine) Move(s domain.Status, fromVisible, toVisible int, f Filter) (Change, error) {
	vis := e.visibleIndexes(s, f)
	if fromVisible < 0 || fromVisible >= len(vis) {
		return Change{}, fmt.Errorf("move: from index %d out of range", fromVisible)
	}
	if toVisible < 0 {
		return Change{}, fmt.Errorf("move: to index %d out of range", toVisible)
	}
	col := e.columns[s]
	absFrom := vis[fromVisible]
	moved := col[absFrom]
	col = append(col[:absFrom], col[absFrom+1:]...)
	e.columns[s] = col

	absTo := e.insertionIndex(s, toVisible, f)
	e.columns[s] = insertTask(col, absTo, moved)

	return Change{Generation: e.Generation(), Columns: []domain.Status{s}}, nil
}

// Transfer moves a task across columns: atomic from the caller's view, the
// task leaves the source array and lands in the destination. Column
// membership carries the new status; the task's own Status and Order fields
// keep the last-persisted values until planning re-derives them, which is how
// planning knows the task moved. A draft with no server identity still moves
// locally, but the change carries no columns to persist.
func (e *Engine) Transfer(from domain.Status, fromVisible int, to domain.Status, toVisible int, f Filter) (Change, error) {
	if from == to {
		return e.Move(from, fromVisible, toVisible, f)
	}
	vis := e.visibleIndexes(from, f)
	if fromVisible < 0 || fromVisible >= len(vis) {
		return Change{}, fmt.Errorf("transfer: from index %d out of range", fromVisible)
	}
	if toVisible < 0 {
		return Change{}, fmt.Errorf("transfer: to index %d out of range", toVisible)
	}
	absFrom := vis[fromVisible]
	moved := e.columns[from][absFrom]
	e.columns[from] = append(e.columns[from][:absFrom], e.columns[from][absFrom+1:]...)

	absTo := e.insertionIndex(to, toVisible, f)
	e.columns[to] = insertTask(e.columns[to], absTo, moved)

	if !moved.Saved() {
		moved.Status = string(to)
		moved.Order = absTo
		return Change{Generation: e.Generation()}, nil
	}
	return Change{Generation: e.Generation(), Columns: []domain.Status{to, from}}, nil
}

// insertionIndex maps a visible insertion position to an absolute one.
// Positions past the last visible task append to the column end.
func (e *Engine) insertionIndex(s domain.Status, toVisible int, f Filter) int {
	vis := e.visibleIndexes(s, f)
	if toVisible < len(vis) {
		return vis[toVisible]
	}
	return len(e.columns[s])
}

// CreateDraft appends a draft task to a column. Blank or whitespace-only
// titles are a no-op: no column mutation, nothing to persist.
func (e *Engine) CreateDraft(s domain.Status, title string) (*domain.Task, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, false
	}
	t := &domain.Task{
		LocalID:     e.NewDraftID(),
		Title:       title,
		Description: "",
		Status:      string(s),
		Order:       len(e.columns[s]),
	}
	e.columns[s] = append(e.columns[s], t)
	return t, true
}

// Confirm swaps a draft for the server-confirmed task, keeping its position.
// Returns false if the draft is gone (e.g. a reload replaced the board).
func (e *Engine) Confirm(localID string, created domain.Task) bool {
	if localID == "" {
		return false
	}
	for _, s := range domain.Statuses() {
		for i, t := range e.columns[s] {
			if t.LocalID == localID {
				confirmed := domain.Decorate(created)
				e.columns[s][i] = &confirmed
				return true
			}
		}
	}
	return false
}

func insertTask(col []*domain.Task, at int, t *domain.Task) []*domain.Task {
	if at < 0 {
		at = 0
	}
	if at > len(col) {
		at = len(col)
	}
	col = append(col, nil)
	copy(col[at+1:], col[at:])
	col[at] = t
	return col
}
