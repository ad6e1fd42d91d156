package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/alfredjeanlab/newsdigest/internal/model"
)

// WorkingSet is the in-run view of canonical records. It is loaded once per
// run and kept in step with every write the run makes, so a record created
// or merged early in a run is visible to comparisons made later in the same
// run. All mutation goes through Edit, which serializes callers.
type WorkingSet struct {
	store EventStore

	mu      sync.Mutex
	records []*model.EventRecord
	index   map[string]int
}

// LoadWorkingSet reads the records matching filter into memory.
func LoadWorkingSet(ctx context.Context, s EventStore, filter model.EventFilter) (*WorkingSet, error) {
	recs, err := s.ListEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("load working set: %w", err)
	}
	return NewWorkingSet(s, recs), nil
}

// NewWorkingSet builds a working set over already-loaded records.
func NewWorkingSet(s EventStore, recs []*model.EventRecord) *WorkingSet {
	w := &WorkingSet{store: s, index: make(map[string]int, len(recs))}
	for _, r := range recs {
		w.index[r.ID] = len(w.records)
		w.records = append(w.records, r.Clone())
	}
	return w
}

// Len returns the number of records in the working set.
func (w *WorkingSet) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records)
}

// Records returns copies of every record, in load-then-creation order.
func (w *WorkingSet) Records() []*model.EventRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneAll(w.records)
}

// Edit runs fn with exclusive access to the working set. Reads and writes
// made through the Editor inside one call are not interleaved with any other
// caller's.
func (w *WorkingSet) Edit(fn func(e *Editor) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return fn(&Editor{w: w})
}

// Editor reads and writes the working set inside Edit. It must not be
// retained after fn returns.
type Editor struct {
	w *WorkingSet
}

// Records returns copies of every record.
func (e *Editor) Records() []*model.EventRecord {
	return cloneAll(e.w.records)
}

// Get returns a copy of the record with id.
func (e *Editor) Get(id string) (*model.EventRecord, bool) {
	i, ok := e.w.index[id]
	if !ok {
		return nil, false
	}
	return e.w.records[i].Clone(), true
}

// Create persists rec in coll and adds it to the working set.
func (e *Editor) Create(ctx context.Context, coll model.Collection, rec *model.EventRecord) error {
	if _, dup := e.w.index[rec.ID]; dup {
		return fmt.Errorf("create event %s: already in working set", rec.ID)
	}
	if err := e.w.store.CreateEvent(ctx, coll, rec); err != nil {
		return fmt.Errorf("create event %s: %w", rec.ID, err)
	}
	e.w.index[rec.ID] = len(e.w.records)
	e.w.records = append(e.w.records, rec.Clone())
	return nil
}

// Update persists patch and refreshes the in-memory record from the store's
// result. The target collection is chosen from the record as it stands in
// the working set (see model.CollectionFor). On failure the in-memory record
// is left unchanged.
func (e *Editor) Update(ctx context.Context, id string, patch model.EventPatch) (*model.EventRecord, error) {
	i, ok := e.w.index[id]
	if !ok {
		return nil, fmt.Errorf("update event %s: %w", id, ErrNotFound)
	}
	coll := model.CollectionFor(e.w.records[i])
	updated, err := e.w.store.UpdateEvent(ctx, coll, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update event %s in %s: %w", id, coll, err)
	}
	e.w.records[i] = updated.Clone()
	return updated.Clone(), nil
}

func cloneAll(recs []*model.EventRecord) []*model.EventRecord {
	out := make([]*model.EventRecord, len(recs))
	for i, r := range recs {
		out[i] = r.Clone()
	}
	return out
}
