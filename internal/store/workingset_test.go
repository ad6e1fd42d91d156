package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/model"
	"github.com/alfredjeanlab/newsdigest/internal/store"
	"github.com/alfredjeanlab/newsdigest/internal/store/storetest"
)

var t0 = time.Date(2025, 10, 20, 9, 0, 0, 0, time.UTC)

func record(id, title string, posts, msgs []string) *model.EventRecord {
	return &model.EventRecord{
		ID:               id,
		Title:            title,
		Description:      title,
		Date:             "2025-10-25",
		SourcePostIDs:    posts,
		SourceMessageIDs: msgs,
		FirstMentionedAt: t0,
		LastUpdatedAt:    t0,
		Confidence:       model.ConfidenceHigh,
	}
}

func TestLoadWorkingSet(t *testing.T) {
	mem := storetest.New()
	mem.Put(model.CollectionPosts, record("ev-a", "Zoo Trip", []string{"p1"}, nil))
	mem.Put(model.CollectionMessages, record("ev-b", "Bake Sale", nil, []string{"m1"}))

	ws, err := store.LoadWorkingSet(context.Background(), mem, model.EventFilter{})
	if err != nil {
		t.Fatalf("LoadWorkingSet: %v", err)
	}
	if ws.Len() != 2 {
		t.Errorf("Len() = %d, want 2", ws.Len())
	}

	mem.ListErr = errors.New("connection refused")
	if _, err := store.LoadWorkingSet(context.Background(), mem, model.EventFilter{}); err == nil {
		t.Error("expected error when the scan fails")
	}
}

func TestWorkingSet_CreateVisibleMidRun(t *testing.T) {
	mem := storetest.New()
	ws := store.NewWorkingSet(mem, nil)
	ctx := context.Background()

	err := ws.Edit(func(e *store.Editor) error {
		return e.Create(ctx, model.CollectionPosts, record("ev-new", "Zoo Trip", []string{"p1"}, nil))
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A later edit in the same run sees the record without reloading.
	_ = ws.Edit(func(e *store.Editor) error {
		if _, ok := e.Get("ev-new"); !ok {
			t.Error("record created earlier in the run is not visible")
		}
		if n := len(e.Records()); n != 1 {
			t.Errorf("Records() len = %d, want 1", n)
		}
		return nil
	})
	if len(mem.All()) != 1 {
		t.Errorf("store has %d records, want 1", len(mem.All()))
	}
}

func TestWorkingSet_CreateFailureNotAdded(t *testing.T) {
	mem := storetest.New()
	mem.CreateErr = errors.New("insert failed")
	ws := store.NewWorkingSet(mem, nil)

	err := ws.Edit(func(e *store.Editor) error {
		return e.Create(context.Background(), model.CollectionPosts, record("ev-x", "X", []string{"p1"}, nil))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if ws.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after failed create", ws.Len())
	}
}

func TestWorkingSet_CreateDuplicateID(t *testing.T) {
	mem := storetest.New()
	ws := store.NewWorkingSet(mem, []*model.EventRecord{record("ev-a", "Zoo", []string{"p1"}, nil)})

	err := ws.Edit(func(e *store.Editor) error {
		return e.Create(context.Background(), model.CollectionPosts, record("ev-a", "Zoo", []string{"p2"}, nil))
	})
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
	if mem.Calls["CreateEvent"] != 0 {
		t.Errorf("CreateEvent called %d times, want 0", mem.Calls["CreateEvent"])
	}
}

func TestWorkingSet_UpdateRefreshesRecord(t *testing.T) {
	mem := storetest.New()
	rec := record("ev-a", "Zoo Trip", []string{"p1"}, nil)
	mem.Put(model.CollectionPosts, rec)
	ws := store.NewWorkingSet(mem, []*model.EventRecord{rec})

	loc := "City Zoo"
	patch := model.EventPatch{
		Location:             &loc,
		AddSourceID:          "p2",
		SourceType:           model.SourcePost,
		IncrementUpdateCount: true,
		AppendMergeNote:      "Location added",
		LastUpdatedAt:        t0.Add(time.Hour),
		LastUpdatedBySource:  "p2",
	}
	var got *model.EventRecord
	err := ws.Edit(func(e *store.Editor) error {
		var err error
		got, err = e.Update(context.Background(), "ev-a", patch)
		return err
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Location != "City Zoo" || got.UpdateCount != 1 || len(got.SourcePostIDs) != 2 {
		t.Errorf("updated = %+v", got)
	}

	recs := ws.Records()
	if recs[0].Location != "City Zoo" || recs[0].UpdateCount != 1 {
		t.Errorf("working set not refreshed: %+v", recs[0])
	}
}

func TestWorkingSet_UpdateFailureLeavesRecord(t *testing.T) {
	mem := storetest.New()
	rec := record("ev-a", "Zoo Trip", []string{"p1"}, nil)
	mem.Put(model.CollectionPosts, rec)
	mem.UpdateErr = errors.New("deadlock")
	ws := store.NewWorkingSet(mem, []*model.EventRecord{rec})

	loc := "City Zoo"
	err := ws.Edit(func(e *store.Editor) error {
		_, err := e.Update(context.Background(), "ev-a", model.EventPatch{Location: &loc, IncrementUpdateCount: true})
		return err
	})
	if err == nil {
		t.Fatal("expected error")
	}
	got := ws.Records()[0]
	if got.Location != "" || got.UpdateCount != 0 {
		t.Errorf("record changed after failed update: %+v", got)
	}
}

func TestWorkingSet_UpdateUnknownID(t *testing.T) {
	ws := store.NewWorkingSet(storetest.New(), nil)
	err := ws.Edit(func(e *store.Editor) error {
		_, err := e.Update(context.Background(), "ev-missing", model.EventPatch{})
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// A message-origin record stored in the post collection is addressed by its
// populated source set, so the update misses and reports ErrNotFound.
func TestWorkingSet_UpdateTargetsCollectionFromSourceSets(t *testing.T) {
	mem := storetest.New()
	rec := record("ev-m", "Bake Sale", nil, []string{"m1"})
	mem.Put(model.CollectionPosts, rec)
	ws := store.NewWorkingSet(mem, []*model.EventRecord{rec})

	err := ws.Edit(func(e *store.Editor) error {
		_, err := e.Update(context.Background(), "ev-m", model.EventPatch{IncrementUpdateCount: true})
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if got := ws.Records()[0]; got.UpdateCount != 0 {
		t.Errorf("UpdateCount = %d, want 0", got.UpdateCount)
	}
}

func TestWorkingSet_RecordsAreCopies(t *testing.T) {
	ws := store.NewWorkingSet(storetest.New(), []*model.EventRecord{record("ev-a", "Zoo", []string{"p1"}, nil)})
	ws.Records()[0].Title = "mutated"
	if got := ws.Records()[0].Title; got != "Zoo" {
		t.Errorf("Title = %q, caller mutation leaked into working set", got)
	}
}
