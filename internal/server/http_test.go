package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/events"
	"github.com/alfredjeanlab/newsdigest/internal/model"
	"github.com/alfredjeanlab/newsdigest/internal/pipeline"
	"github.com/alfredjeanlab/newsdigest/internal/store"
	"github.com/alfredjeanlab/newsdigest/internal/store/storetest"
)

var t0 = time.Date(2025, 10, 21, 9, 0, 0, 0, time.UTC)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubCycle is a CycleRunner returning canned results.
type stubCycle struct {
	res   pipeline.CycleResult
	err   error
	calls int
	last  *pipeline.CycleResult
}

func (c *stubCycle) Run(ctx context.Context) (pipeline.CycleResult, error) {
	c.calls++
	if ctx.Err() != nil {
		return pipeline.CycleResult{}, ctx.Err()
	}
	if c.err == nil || c.res.RunID != "" {
		res := c.res
		c.last = &res
	}
	return c.res, c.err
}

func (c *stubCycle) Last() (pipeline.CycleResult, bool) {
	if c.last == nil {
		return pipeline.CycleResult{}, false
	}
	return *c.last, true
}

type testEnv struct {
	mem      *storetest.Memory
	cycle    *stubCycle
	recorder *events.Recorder
	stream   *Broadcaster
	handler  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := storetest.New()
	mem.Now = t0
	rec := &events.Recorder{}
	stream := NewBroadcaster(rec, discard())
	cycle := &stubCycle{}
	srv := NewDigestServer(mem, mem, cycle, stream, discard())
	return &testEnv{mem: mem, cycle: cycle, recorder: rec, stream: stream, handler: srv.NewHTTPHandler("")}
}

func (e *testEnv) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func eventRecord(id, title, date string) *model.EventRecord {
	return &model.EventRecord{
		ID:               id,
		Title:            title,
		Date:             date,
		SourcePostIDs:    []string{"p-" + id},
		FirstMentionedAt: t0,
		LastUpdatedAt:    t0,
		Confidence:       model.ConfidenceHigh,
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do("GET", "/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[map[string]string](t, rec); got["status"] != "ok" {
		t.Errorf("body = %v", got)
	}
}

func TestListEvents(t *testing.T) {
	env := newTestEnv(t)
	env.mem.Put(model.CollectionPosts, eventRecord("ev-1", "Zoo Trip", "2025-10-25"))
	env.mem.Put(model.CollectionPosts, eventRecord("ev-2", "Bake Sale", "2025-10-27"))

	for _, tc := range []struct {
		path  string
		code  int
		total int
	}{
		{"/v1/events", http.StatusOK, 2},
		{"/v1/events?date=2025-10-25", http.StatusOK, 1},
		{"/v1/events?limit=1", http.StatusOK, 1},
		{"/v1/events?since=2025-10-21T08:00:00Z", http.StatusOK, 2},
		{"/v1/events?date=next-week", http.StatusBadRequest, 0},
		{"/v1/events?since=yesterday", http.StatusBadRequest, 0},
		{"/v1/events?limit=-3", http.StatusBadRequest, 0},
	} {
		t.Run(tc.path, func(t *testing.T) {
			rec := env.do("GET", tc.path)
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.code, rec.Body.String())
			}
			if tc.code != http.StatusOK {
				return
			}
			body := decode[struct {
				Events []model.EventRecord `json:"events"`
				Total  int                 `json:"total"`
			}](t, rec)
			if body.Total != tc.total || len(body.Events) != tc.total {
				t.Errorf("total = %d (%d events), want %d", body.Total, len(body.Events), tc.total)
			}
		})
	}
}

func TestListEvents_EmptyIsArray(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do("GET", "/v1/events")
	if got := rec.Body.String(); got != "{\"events\":[],\"total\":0}\n" {
		t.Errorf("body = %q", got)
	}
}

func TestListEvents_StoreFailure(t *testing.T) {
	env := newTestEnv(t)
	env.mem.ListErr = fmt.Errorf("list events: %w", store.ErrStoreAccess)
	if rec := env.do("GET", "/v1/events"); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestGetEvent(t *testing.T) {
	env := newTestEnv(t)
	env.mem.Put(model.CollectionPosts, eventRecord("ev-1", "Zoo Trip", "2025-10-25"))

	rec := env.do("GET", "/v1/events/ev-1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[model.EventRecord](t, rec); got.Title != "Zoo Trip" {
		t.Errorf("Title = %q", got.Title)
	}

	if rec := env.do("GET", "/v1/events/ev-missing"); rec.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rec.Code)
	}
}

func TestDeleteEvent(t *testing.T) {
	env := newTestEnv(t)
	env.mem.Put(model.CollectionPosts, eventRecord("ev-1", "Zoo Trip", "2025-10-25"))

	if rec := env.do("DELETE", "/v1/events/ev-1"); rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if len(env.mem.All()) != 0 {
		t.Error("record not deleted")
	}
	if env.recorder.Count(events.TopicEventDeleted) != 1 {
		t.Error("deletion not published")
	}

	if rec := env.do("DELETE", "/v1/events/ev-1"); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
	if env.recorder.Count(events.TopicEventDeleted) != 1 {
		t.Error("failed deletion published")
	}
}

func TestGetSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.mem.Snapshots["2025-10-21"] = &model.Snapshot{
		Date:   "2025-10-21",
		Digest: model.Digest{Reminders: []model.Reminder{{Text: "Bring a coat"}}},
	}

	rec := env.do("GET", "/v1/snapshots/2025-10-21")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decode[model.Snapshot](t, rec); len(got.Digest.Reminders) != 1 {
		t.Errorf("snapshot = %+v", got)
	}

	for path, want := range map[string]int{
		"/v1/snapshots/2025-10-20": http.StatusNotFound,
		"/v1/snapshots/today":      http.StatusBadRequest,
	} {
		if rec := env.do("GET", path); rec.Code != want {
			t.Errorf("%s status = %d, want %d", path, rec.Code, want)
		}
	}

	env.mem.GetSnapshotErr = fmt.Errorf("get snapshot: %w", store.ErrStoreAccess)
	if rec := env.do("GET", "/v1/snapshots/2025-10-21"); rec.Code != http.StatusInternalServerError {
		t.Errorf("store failure status = %d, want 500", rec.Code)
	}
}

func TestTriggerRun(t *testing.T) {
	env := newTestEnv(t)
	env.cycle.res = pipeline.CycleResult{
		Result:       pipeline.Result{RunID: "run-1", Report: model.RunReport{RecordsCreated: 2}},
		SnapshotDate: "2025-10-21",
	}

	if rec := env.do("GET", "/v1/runs/last"); rec.Code != http.StatusNotFound {
		t.Fatalf("last before any run status = %d, want 404", rec.Code)
	}

	rec := env.do("POST", "/v1/runs")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[pipeline.CycleResult](t, rec)
	if got.RunID != "run-1" || got.Report.RecordsCreated != 2 || got.SnapshotDate != "2025-10-21" {
		t.Errorf("result = %+v", got)
	}

	rec = env.do("GET", "/v1/runs/last")
	if rec.Code != http.StatusOK {
		t.Fatalf("last status = %d", rec.Code)
	}
	if got := decode[pipeline.CycleResult](t, rec); got.RunID != "run-1" {
		t.Errorf("last = %+v", got)
	}
}

func TestTriggerRun_Errors(t *testing.T) {
	for _, tc := range []struct {
		name string
		res  pipeline.CycleResult
		err  error
		code int
	}{
		{"in progress", pipeline.CycleResult{}, pipeline.ErrRunInProgress, http.StatusConflict},
		{"run failed", pipeline.CycleResult{}, errors.New("generate run id"), http.StatusInternalServerError},
		{"snapshot failed", pipeline.CycleResult{Result: pipeline.Result{RunID: "run-2"}, SnapshotError: "boom"}, errors.New("generate snapshot: boom"), http.StatusInternalServerError},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.cycle.res, env.cycle.err = tc.res, tc.err
			rec := env.do("POST", "/v1/runs")
			if rec.Code != tc.code {
				t.Fatalf("status = %d, want %d", rec.Code, tc.code)
			}
			body := decode[map[string]any](t, rec)
			if body["error"] == nil {
				t.Errorf("body = %v, want an error field", body)
			}
			if tc.res.RunID != "" && body["result"] == nil {
				t.Errorf("body = %v, want the run result", body)
			}
		})
	}
}

func TestTriggerRun_Disabled(t *testing.T) {
	srv := NewDigestServer(storetest.New(), storetest.New(), nil, nil, discard())
	h := srv.NewHTTPHandler("")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/runs", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/stream", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("stream status = %d, want 404 without a broadcaster", rec.Code)
	}
}
