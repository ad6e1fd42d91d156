package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/events"
	"github.com/alfredjeanlab/newsdigest/internal/model"
	"github.com/alfredjeanlab/newsdigest/internal/oracle"
	"github.com/alfredjeanlab/newsdigest/internal/oracle/oracletest"
	"github.com/alfredjeanlab/newsdigest/internal/store"
	"github.com/alfredjeanlab/newsdigest/internal/store/storetest"
)

var now = time.Date(2025, 10, 21, 14, 30, 0, 0, time.UTC)

func newRunner(mem *storetest.Memory, o oracle.Oracle, pub events.Publisher) *Runner {
	r := NewRunner(mem, o, pub, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
		WindowDays:    3,
		EventTTL:      60 * 24 * time.Hour,
		ExtractionTTL: 60 * 24 * time.Hour,
	})
	r.now = func() time.Time { return now }
	var n atomic.Int64
	r.newID = func() (string, error) { return fmt.Sprintf("ev-%03d", n.Add(1)), nil }
	return r
}

func newMem() *storetest.Memory {
	mem := storetest.New()
	mem.Now = now
	return mem
}

func source(id string, typ model.SourceType, text string) *model.Source {
	return &model.Source{ID: id, Type: typ, TranslatedText: text, TranslatedAt: now.Add(-time.Hour), PublishedAt: now.Add(-2 * time.Hour)}
}

// extractByText returns one candidate per source keyed by its text.
func extractByText(cands map[string][]model.CandidateEvent) func(string, oracle.SourceMeta) ([]model.CandidateEvent, error) {
	return func(text string, _ oracle.SourceMeta) ([]model.CandidateEvent, error) {
		return slices.Clone(cands[text]), nil
	}
}

func zoo(desc string) model.CandidateEvent {
	return model.CandidateEvent{Title: "Zoo Trip", Description: desc, Date: "2025-10-25", Confidence: model.ConfidenceHigh}
}

func TestRun_Idempotent(t *testing.T) {
	mem := newMem()
	mem.Sources = []*model.Source{
		source("p1", model.SourcePost, "zoo"),
		source("m1", model.SourceMessage, "nothing here"),
	}
	f := &oracletest.Fake{ExtractFunc: extractByText(map[string][]model.CandidateEvent{"zoo": {zoo("Grade 2 zoo visit")}})}
	r := newRunner(mem, f, nil)

	first, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if first.Report.SourcesProcessed != 2 || first.Report.RecordsCreated != 1 {
		t.Errorf("first report = %+v", first.Report)
	}
	if f.Calls("extract") != 2 {
		t.Fatalf("extract calls = %d, want 2", f.Calls("extract"))
	}

	second, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.Calls("extract") != 2 {
		t.Errorf("re-scan triggered %d more extract calls", f.Calls("extract")-2)
	}
	if second.Report.SourcesSkipped != 2 || second.Report.RecordsCreated != 0 {
		t.Errorf("second report = %+v", second.Report)
	}
	if len(mem.All()) != 1 {
		t.Errorf("store holds %d records, want 1", len(mem.All()))
	}
}

// Two near-identical mentions on the same day, one from each lane, end up as
// one record that lists both origins and counts one merge.
func TestRun_DedupAcrossLanes(t *testing.T) {
	mem := newMem()
	mem.Sources = []*model.Source{
		source("p1", model.SourcePost, "post zoo"),
		source("m1", model.SourceMessage, "message zoo"),
	}
	f := &oracletest.Fake{ExtractFunc: extractByText(map[string][]model.CandidateEvent{
		"post zoo":    {zoo("Grade 2 zoo visit")},
		"message zoo": {zoo("Grade 2 zoo visit on Saturday")},
	})}
	pub := &events.Recorder{}

	res, err := newRunner(mem, f, pub).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	recs := mem.All()
	if len(recs) != 1 {
		t.Fatalf("store holds %d records, want 1", len(recs))
	}
	rec := recs[0]
	if !rec.HasSource("p1") || !rec.HasSource("m1") {
		t.Errorf("sources = posts %v messages %v", rec.SourcePostIDs, rec.SourceMessageIDs)
	}
	if rec.UpdateCount != 1 {
		t.Errorf("UpdateCount = %d, want 1", rec.UpdateCount)
	}
	if res.Report.RecordsCreated != 1 || res.Report.RecordsMerged != 1 || res.Report.Comparisons != 1 {
		t.Errorf("report = %+v", res.Report)
	}
	if pub.Count(events.TopicEventCreated) != 1 || pub.Count(events.TopicEventUpdated) != 1 || pub.Count(events.TopicRunCompleted) != 1 {
		t.Errorf("published = %+v", pub.Events)
	}
}

func TestRun_SameSourceCandidatesMergeSequentially(t *testing.T) {
	mem := newMem()
	mem.Sources = []*model.Source{source("p1", model.SourcePost, "two mentions")}
	f := &oracletest.Fake{ExtractFunc: extractByText(map[string][]model.CandidateEvent{
		"two mentions": {zoo("Grade 2 zoo visit"), zoo("Bring lunch")},
	})}

	res, err := newRunner(mem, f, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(mem.All()) != 1 || res.Report.RecordsMerged != 1 {
		t.Errorf("records = %d, report = %+v", len(mem.All()), res.Report)
	}
}

func TestRun_ExtractionFailureNotMarked(t *testing.T) {
	mem := newMem()
	mem.Sources = []*model.Source{source("p1", model.SourcePost, "zoo")}
	fail := true
	f := &oracletest.Fake{ExtractFunc: func(string, oracle.SourceMeta) ([]model.CandidateEvent, error) {
		if fail {
			return nil, &oracle.InvocationError{Op: "extract", Err: errors.New("503")}
		}
		return []model.CandidateEvent{zoo("Grade 2 zoo visit")}, nil
	}}
	r := newRunner(mem, f, nil)

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Report.SourcesFailed != 1 || res.Report.Errors != 1 {
		t.Errorf("report = %+v", res.Report)
	}
	if _, ok := mem.Extractions["p1"]; ok {
		t.Fatal("failed source was marked processed")
	}

	fail = false
	res, err = r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Report.SourcesProcessed != 1 || res.Report.RecordsCreated != 1 {
		t.Errorf("retry report = %+v", res.Report)
	}
}

func TestRun_ZeroEventsMarked(t *testing.T) {
	mem := newMem()
	mem.Sources = []*model.Source{source("m1", model.SourceMessage, "have a nice weekend")}
	f := &oracletest.Fake{}

	if _, err := newRunner(mem, f, nil).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	ext, ok := mem.Extractions["m1"]
	if !ok {
		t.Fatal("zero-event source not marked")
	}
	if ext.EventCount != 0 || ext.ModelID != "fake/test-1" || !ext.ExpiresAt.After(now) {
		t.Errorf("marker = %+v", ext)
	}
}

func TestRun_LowConfidenceCreatesNewRecord(t *testing.T) {
	mem := newMem()
	mem.Put(model.CollectionPosts, &model.EventRecord{ID: "ev-old", Title: "Zoo Trip", Date: "2025-10-25", SourcePostIDs: []string{"p0"}})
	mem.Sources = []*model.Source{source("p1", model.SourcePost, "zoo")}
	f := &oracletest.Fake{
		ExtractFunc: extractByText(map[string][]model.CandidateEvent{"zoo": {zoo("maybe the zoo")}}),
		CompareFunc: func(*model.CandidateEvent, *model.EventRecord) (oracle.Comparison, error) {
			return oracle.Comparison{IsSameEvent: true, Confidence: model.ConfidenceLow}, nil
		},
	}

	res, err := newRunner(mem, f, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Report.RecordsCreated != 1 || res.Report.RecordsMerged != 0 || len(mem.All()) != 2 {
		t.Errorf("report = %+v, records = %d", res.Report, len(mem.All()))
	}
	if f.Calls("merge") != 0 {
		t.Error("low-confidence verdict reached the merge oracle")
	}
}

func TestRun_MergeFailureKeepsFields(t *testing.T) {
	mem := newMem()
	mem.Put(model.CollectionPosts, &model.EventRecord{ID: "ev-old", Title: "Zoo Trip", Description: "zoo", Date: "2025-10-25", Time: "09:00", SourcePostIDs: []string{"p0"}})
	mem.Sources = []*model.Source{source("p1", model.SourcePost, "zoo")}
	f := &oracletest.Fake{
		ExtractFunc: extractByText(map[string][]model.CandidateEvent{"zoo": {{Title: "Zoo Trip", Description: "moved", Date: "2025-10-25", Time: "10:00", Confidence: model.ConfidenceHigh}}}),
		MergeFunc: func(*model.EventRecord, *model.CandidateEvent) (oracle.MergedFields, error) {
			return oracle.MergedFields{}, errors.New("timeout")
		},
	}

	res, err := newRunner(mem, f, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	rec := mem.All()[0]
	if rec.Time != "09:00" || rec.UpdateCount != 0 || !rec.HasSource("p1") {
		t.Errorf("record = %+v", rec)
	}
	if res.Report.MergeFailures != 1 || res.Report.RecordsUpdated != 1 || res.Report.RecordsMerged != 0 {
		t.Errorf("report = %+v", res.Report)
	}
}

func TestRun_BudgetExceeded(t *testing.T) {
	mem := newMem()
	mem.Sources = []*model.Source{source("p1", model.SourcePost, "zoo"), source("m1", model.SourceMessage, "zoo")}
	f := &oracletest.Fake{ExtractFunc: extractByText(map[string][]model.CandidateEvent{"zoo": {zoo("z")}})}
	r := newRunner(mem, f, nil)
	r.opts.Budget = time.Nanosecond

	res, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Report.BudgetExceeded {
		t.Error("BudgetExceeded = false")
	}
	if len(mem.Extractions) != 0 {
		t.Errorf("unreached sources were marked: %v", mem.Extractions)
	}
	if f.Calls("extract") != 0 {
		t.Errorf("extract calls = %d, want 0", f.Calls("extract"))
	}
}

func TestRun_StoreFailuresDegrade(t *testing.T) {
	mem := newMem()
	mem.SourcesErr = errors.New("connection refused")

	res, err := newRunner(mem, &oracletest.Fake{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Report.SourcesScanned != 0 || res.Report.Errors != 1 {
		t.Errorf("report = %+v", res.Report)
	}
}

func TestRun_CreateFailureCounted(t *testing.T) {
	mem := newMem()
	mem.Sources = []*model.Source{source("p1", model.SourcePost, "zoo")}
	mem.CreateErr = errors.New("disk full")
	f := &oracletest.Fake{ExtractFunc: extractByText(map[string][]model.CandidateEvent{"zoo": {zoo("z")}})}

	res, err := newRunner(mem, f, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Report.RecordsCreated != 0 || res.Report.SourcesFailed != 1 || res.Report.Errors != 2 {
		t.Errorf("report = %+v", res.Report)
	}
	if _, ok := mem.Extractions["p1"]; ok {
		t.Error("source with an unapplied candidate was marked processed")
	}
}

func bakeSale() model.CandidateEvent {
	return model.CandidateEvent{Title: "Bake Sale", Description: "PTA bake sale", Date: "2025-10-23", Confidence: model.ConfidenceHigh}
}

// A source whose second candidate failed to store stays unmarked. The next
// run re-extracts it and writes only what is missing; the candidate that
// already landed is neither duplicated nor counted as another merge.
func TestRun_PartialFailureRetriesOnlyMissing(t *testing.T) {
	for _, tc := range []struct {
		name            string
		existing        *model.EventRecord
		wantRecords     int
		wantUpdateCount int
	}{
		{name: "both created", wantRecords: 2},
		{
			name:            "first merged into another source",
			existing:        &model.EventRecord{ID: "ev-old", Title: "Zoo Trip", Description: "zoo", Date: "2025-10-25", SourcePostIDs: []string{"p0"}, ExpiresAt: now.Add(time.Hour)},
			wantRecords:     2,
			wantUpdateCount: 1,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			mem := newMem()
			if tc.existing != nil {
				mem.Put(model.CollectionPosts, tc.existing)
			}
			mem.Sources = []*model.Source{source("p1", model.SourcePost, "newsletter")}
			failBakeSale := true
			mem.CreateCheck = func(rec *model.EventRecord) error {
				if failBakeSale && rec.Title == "Bake Sale" {
					return errors.New("connection reset")
				}
				return nil
			}
			f := &oracletest.Fake{ExtractFunc: extractByText(map[string][]model.CandidateEvent{
				"newsletter": {zoo("Grade 2 zoo visit"), bakeSale()},
			})}
			pub := &events.Recorder{}
			r := newRunner(mem, f, pub)

			first, err := r.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if first.Report.SourcesFailed != 1 {
				t.Errorf("first report = %+v", first.Report)
			}
			if _, ok := mem.Extractions["p1"]; ok {
				t.Fatal("partially applied source was marked processed")
			}
			zooAfterFirst := findTitle(t, mem, "Zoo Trip")

			failBakeSale = false
			second, err := r.Run(context.Background())
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if f.Calls("extract") != 2 {
				t.Errorf("extract calls = %d, want 2", f.Calls("extract"))
			}
			if second.Report.SourcesProcessed != 1 || second.Report.RecordsCreated != 1 || second.Report.RecordsUpdated != 0 || second.Report.Errors != 0 {
				t.Errorf("second report = %+v", second.Report)
			}
			if n := len(mem.All()); n != tc.wantRecords {
				t.Errorf("store holds %d records, want %d", n, tc.wantRecords)
			}
			zooRec := findTitle(t, mem, "Zoo Trip")
			if zooRec.ID != zooAfterFirst.ID || zooRec.UpdateCount != tc.wantUpdateCount {
				t.Errorf("zoo record = %+v, want id %s update count %d", zooRec, zooAfterFirst.ID, tc.wantUpdateCount)
			}
			if !findTitle(t, mem, "Bake Sale").HasSource("p1") {
				t.Error("retried record does not list its source")
			}
			ext, ok := mem.Extractions["p1"]
			if !ok || ext.EventCount != 2 {
				t.Errorf("marker = %+v, %v", ext, ok)
			}
		})
	}
}

// A source cut off by the budget between candidates is retried whole next
// run without duplicating the candidate that was already applied.
func TestRun_BudgetInterruptedSourceRetried(t *testing.T) {
	mem := newMem()
	mem.Sources = []*model.Source{source("p1", model.SourcePost, "newsletter")}
	var stall atomic.Bool
	stall.Store(true)
	mem.CreateCheck = func(*model.EventRecord) error {
		if stall.CompareAndSwap(true, false) {
			time.Sleep(200 * time.Millisecond)
		}
		return nil
	}
	f := &oracletest.Fake{ExtractFunc: extractByText(map[string][]model.CandidateEvent{
		"newsletter": {zoo("Grade 2 zoo visit"), bakeSale()},
	})}
	r := newRunner(mem, f, nil)
	r.opts.Budget = 50 * time.Millisecond

	first, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !first.Report.BudgetExceeded || first.Report.RecordsCreated != 1 {
		t.Errorf("first report = %+v", first.Report)
	}
	if len(first.Outcomes) != 1 || first.Outcomes[0].Status != StatusInterrupted {
		t.Fatalf("outcomes = %+v", first.Outcomes)
	}
	if _, ok := mem.Extractions["p1"]; ok {
		t.Fatal("interrupted source was marked processed")
	}

	r.opts.Budget = 0
	second, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if second.Report.BudgetExceeded || second.Report.RecordsCreated != 1 || second.Report.RecordsUpdated != 0 {
		t.Errorf("second report = %+v", second.Report)
	}
	if n := len(mem.All()); n != 2 {
		t.Errorf("store holds %d records, want 2", n)
	}
	if findTitle(t, mem, "Zoo Trip").UpdateCount != 0 {
		t.Error("retry counted a merge into its own record")
	}
	if _, ok := mem.Extractions["p1"]; !ok {
		t.Error("retried source not marked")
	}
}

func TestRunner_LaneReturnsContextError(t *testing.T) {
	mem := newMem()
	r := newRunner(mem, &oracletest.Fake{}, nil)
	ws := store.NewWorkingSet(mem, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := r.lane(ctx, ws, []*model.Source{source("p1", model.SourcePost, "zoo")}, now, r.logger)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(out) != 1 || out[0].Status != StatusNotReached {
		t.Errorf("outcomes = %+v", out)
	}
}

func findTitle(t *testing.T, mem *storetest.Memory, title string) *model.EventRecord {
	t.Helper()
	for _, rec := range mem.All() {
		if rec.Title == title {
			return rec
		}
	}
	t.Fatalf("no record titled %q", title)
	return nil
}

func TestRunner_Last(t *testing.T) {
	r := newRunner(newMem(), &oracletest.Fake{}, nil)
	if _, ok := r.Last(); ok {
		t.Error("Last() before any run should report false")
	}
	res, _ := r.Run(context.Background())
	last, ok := r.Last()
	if !ok || last.RunID != res.RunID {
		t.Errorf("Last() = %+v, %v", last, ok)
	}
}

func TestRunner_RejectsConcurrentRun(t *testing.T) {
	r := newRunner(newMem(), &oracletest.Fake{}, nil)
	r.running.Lock()
	defer r.running.Unlock()
	if _, err := r.Run(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("err = %v, want ErrRunInProgress", err)
	}
}

func TestSourceOutcome_Fold(t *testing.T) {
	var rep model.RunReport
	SourceOutcome{Status: StatusProcessed, Marked: true, Extracted: 2, Rejected: 1, Candidates: []CandidateOutcome{
		{Action: ActionCreated},
		{Action: ActionMerged, Compared: 3, CompareFailures: 1},
	}}.fold(&rep)
	SourceOutcome{Status: StatusFailed}.fold(&rep)
	SourceOutcome{Status: StatusNotReached}.fold(&rep)

	want := model.RunReport{
		SourcesProcessed: 1, SourcesFailed: 1,
		CandidatesExtracted: 2, CandidatesRejected: 1, Comparisons: 3,
		RecordsCreated: 1, RecordsUpdated: 1, RecordsMerged: 1,
		Errors: 2, BudgetExceeded: true,
	}
	if rep != want {
		t.Errorf("folded = %+v\nwant     %+v", rep, want)
	}
}
