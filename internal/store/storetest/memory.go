// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/model"
	"github.com/alfredjeanlab/newsdigest/internal/store"
)

// Memory is an in-memory store.Store. The exported error fields, when set,
// are returned by the matching operations so tests can exercise failure paths.
type Memory struct {
	mu sync.Mutex

	Events      map[model.Collection]map[string]*model.EventRecord
	Extractions map[string]*model.SourceExtraction
	Snapshots   map[string]*model.Snapshot
	Sources     []*model.Source

	// Now is the clock used for expiry checks; zero means time.Now.
	Now time.Time

	ListErr        error
	CreateErr      error
	UpdateErr      error
	ExistsErr      error
	MarkErr        error
	GetSnapshotErr error
	PutSnapshotErr error
	SourcesErr     error

	// CreateCheck, when set, is consulted before each CreateEvent and its
	// error returned instead of storing the record.
	CreateCheck func(rec *model.EventRecord) error

	// Calls counts invocations per method name.
	Calls map[string]int
}

// Compile-time check that Memory implements store.Store.
var _ store.Store = (*Memory)(nil)

// New returns an empty Memory store.
func New() *Memory {
	return &Memory{
		Events: map[model.Collection]map[string]*model.EventRecord{
			model.CollectionPosts:    {},
			model.CollectionMessages: {},
		},
		Extractions: make(map[string]*model.SourceExtraction),
		Snapshots:   make(map[string]*model.Snapshot),
		Calls:       make(map[string]int),
	}
}

func (m *Memory) now() time.Time {
	if m.Now.IsZero() {
		return time.Now()
	}
	return m.Now
}

// live reports whether an expiry is still in the future. Zero never expires.
func live(expiresAt, now time.Time) bool {
	return expiresAt.IsZero() || expiresAt.After(now)
}

func (m *Memory) called(name string) {
	m.Calls[name]++
}

// Put stores rec directly in coll, bypassing CreateErr.
func (m *Memory) Put(coll model.Collection, rec *model.EventRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events[coll][rec.ID] = rec.Clone()
}

// All returns every stored record across both collections, sorted by ID.
func (m *Memory) All() []*model.EventRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.EventRecord
	for _, coll := range m.Events {
		for _, r := range coll {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Memory) ListEvents(_ context.Context, filter model.EventFilter) ([]*model.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("ListEvents")
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	now := m.now()
	var out []*model.EventRecord
	for _, coll := range m.Events {
		for _, r := range coll {
			if !live(r.ExpiresAt, now) {
				continue
			}
			if filter.UpdatedSince != nil && r.LastUpdatedAt.Before(*filter.UpdatedSince) {
				continue
			}
			if filter.Date != "" && r.Date != filter.Date {
				continue
			}
			out = append(out, r.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].FirstMentionedAt.Equal(out[j].FirstMentionedAt) {
			return out[i].FirstMentionedAt.Before(out[j].FirstMentionedAt)
		}
		return out[i].ID < out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *Memory) GetEvent(_ context.Context, id string) (*model.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("GetEvent")
	for _, coll := range m.Events {
		if r, ok := coll[id]; ok {
			return r.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *Memory) CreateEvent(_ context.Context, coll model.Collection, rec *model.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("CreateEvent")
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if m.CreateCheck != nil {
		if err := m.CreateCheck(rec); err != nil {
			return err
		}
	}
	c, ok := m.Events[coll]
	if !ok {
		return fmt.Errorf("unknown collection %q", coll)
	}
	if _, dup := c[rec.ID]; dup {
		return fmt.Errorf("duplicate id %s", rec.ID)
	}
	c[rec.ID] = rec.Clone()
	return nil
}

func (m *Memory) UpdateEvent(_ context.Context, coll model.Collection, id string, patch model.EventPatch) (*model.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("UpdateEvent")
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}
	r, ok := m.Events[coll][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	model.ApplyPatch(r, patch)
	return r.Clone(), nil
}

func (m *Memory) DeleteEvent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("DeleteEvent")
	for _, coll := range m.Events {
		if _, ok := coll[id]; ok {
			delete(coll, id)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *Memory) ExistsForSource(_ context.Context, sourceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("ExistsForSource")
	if m.ExistsErr != nil {
		return false, m.ExistsErr
	}
	now := m.now()
	ext, ok := m.Extractions[sourceID]
	return ok && live(ext.ExpiresAt, now), nil
}

func (m *Memory) MarkSourceProcessed(_ context.Context, ext *model.SourceExtraction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("MarkSourceProcessed")
	if m.MarkErr != nil {
		return m.MarkErr
	}
	c := *ext
	m.Extractions[ext.SourceID] = &c
	return nil
}

func (m *Memory) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("DeleteExpired")
	n := 0
	for _, coll := range m.Events {
		for id, r := range coll {
			if !live(r.ExpiresAt, now) {
				delete(coll, id)
				n++
			}
		}
	}
	for id, ext := range m.Extractions {
		if !live(ext.ExpiresAt, now) {
			delete(m.Extractions, id)
		}
	}
	for date, s := range m.Snapshots {
		if !live(s.ExpiresAt, now) {
			delete(m.Snapshots, date)
		}
	}
	return n, nil
}

func (m *Memory) GetSnapshot(_ context.Context, date string) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("GetSnapshot")
	if m.GetSnapshotErr != nil {
		return nil, m.GetSnapshotErr
	}
	s, ok := m.Snapshots[date]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (m *Memory) PutSnapshot(_ context.Context, snap *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("PutSnapshot")
	if m.PutSnapshotErr != nil {
		return m.PutSnapshotErr
	}
	c := *snap
	m.Snapshots[snap.Date] = &c
	return nil
}

func (m *Memory) ListTranslatedSources(_ context.Context, since time.Time) ([]*model.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("ListTranslatedSources")
	if m.SourcesErr != nil {
		return nil, m.SourcesErr
	}
	var out []*model.Source
	for _, s := range m.Sources {
		if s.TranslatedAt.IsZero() || s.TranslatedAt.Before(since) {
			continue
		}
		c := *s
		out = append(out, &c)
	}
	slices.SortStableFunc(out, func(a, b *model.Source) int {
		return a.TranslatedAt.Compare(b.TranslatedAt)
	})
	return out, nil
}

func (m *Memory) Close() error { return nil }
