package scanner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/model"
	"github.com/alfredjeanlab/newsdigest/internal/store/storetest"
)

var now = time.Date(2025, 10, 21, 14, 30, 0, 0, time.UTC)

func newScanner(mem *storetest.Memory) *Scanner {
	s := New(mem, mem, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return now }
	return s
}

func TestScanNewSources_Window(t *testing.T) {
	mem := storetest.New()
	mem.Sources = []*model.Source{
		{ID: "p-old", Type: model.SourcePost, TranslatedAt: now.AddDate(0, 0, -4)},
		{ID: "p-new", Type: model.SourcePost, TranslatedAt: now.AddDate(0, 0, -1)},
		{ID: "m-new", Type: model.SourceMessage, TranslatedAt: now.Add(-time.Hour)},
		{ID: "m-untranslated", Type: model.SourceMessage},
	}

	got, err := newScanner(mem).ScanNewSources(context.Background(), 3)
	if err != nil {
		t.Fatalf("ScanNewSources: %v", err)
	}
	if len(got) != 2 || got[0].ID != "p-new" || got[1].ID != "m-new" {
		ids := make([]string, len(got))
		for i, s := range got {
			ids[i] = s.ID
		}
		t.Errorf("got %v, want [p-new m-new]", ids)
	}
}

func TestScanNewSources_FailureIsEmpty(t *testing.T) {
	mem := storetest.New()
	mem.SourcesErr = errors.New("connection refused")

	got, err := newScanner(mem).ScanNewSources(context.Background(), 3)
	if err == nil {
		t.Error("expected error to be reported")
	}
	if len(got) != 0 {
		t.Errorf("got %d sources, want none", len(got))
	}
}

func TestHasExistingExtraction(t *testing.T) {
	mem := storetest.New()
	mem.Now = now
	mem.Extractions["p-marked"] = &model.SourceExtraction{SourceID: "p-marked", ExpiresAt: now.Add(time.Hour)}
	mem.Extractions["p-expired"] = &model.SourceExtraction{SourceID: "p-expired", ExpiresAt: now.Add(-time.Hour)}
	mem.Put(model.CollectionMessages, &model.EventRecord{ID: "ev-a", SourceMessageIDs: []string{"m-in-record"}, ExpiresAt: now.Add(time.Hour)})
	s := newScanner(mem)

	for _, tc := range []struct {
		id   string
		want bool
	}{
		{"p-marked", true},
		{"p-expired", false},
		{"m-in-record", false},
		{"p-unseen", false},
	} {
		got, err := s.HasExistingExtraction(context.Background(), tc.id)
		if err != nil {
			t.Fatalf("HasExistingExtraction(%s): %v", tc.id, err)
		}
		if got != tc.want {
			t.Errorf("HasExistingExtraction(%s) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestPending(t *testing.T) {
	mem := storetest.New()
	mem.Extractions["p1"] = &model.SourceExtraction{SourceID: "p1"}
	srcs := []*model.Source{{ID: "p1"}, {ID: "p2"}, {ID: "m1"}}

	p := newScanner(mem).Pending(context.Background(), srcs)
	if len(p.Pending) != 2 || p.Skipped != 1 || p.Errors != 0 {
		t.Errorf("Partition = %+v", p)
	}

	mem.ExistsErr = errors.New("timeout")
	p = newScanner(mem).Pending(context.Background(), srcs)
	if len(p.Pending) != 0 || p.Errors != 3 {
		t.Errorf("existence check failures should skip sources: %+v", p)
	}
}
