package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/events"
)

func TestStreamHub_BroadcastAndReceive(t *testing.T) {
	hub := newStreamHub(10)

	client := hub.subscribe(nil)
	defer hub.unsubscribe(client)

	hub.broadcast("newsdigest.event.created", []byte(`{"id":"ev-1"}`))

	select {
	case evt := <-client.ch:
		if evt.Topic != "newsdigest.event.created" || string(evt.Data) != `{"id":"ev-1"}` || evt.ID != 1 {
			t.Fatalf("unexpected event: %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestStreamHub_TopicFiltering(t *testing.T) {
	hub := newStreamHub(10)

	client := hub.subscribe([]string{"newsdigest.event.*"})
	defer hub.unsubscribe(client)

	hub.broadcast("newsdigest.snapshot.stored", []byte(`{}`))
	hub.broadcast("newsdigest.event.updated", []byte(`{}`))

	select {
	case evt := <-client.ch:
		if evt.Topic != "newsdigest.event.updated" {
			t.Fatalf("expected event.updated, got %q", evt.Topic)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case evt := <-client.ch:
		t.Fatalf("unexpected event: topic=%q", evt.Topic)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStreamHub_Unsubscribe(t *testing.T) {
	hub := newStreamHub(10)
	client := hub.subscribe(nil)
	hub.unsubscribe(client)

	hub.broadcast("newsdigest.event.created", []byte(`{}`))

	select {
	case <-client.ch:
		t.Fatal("should not receive events after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStreamHub_Since(t *testing.T) {
	hub := newStreamHub(3)
	for range 5 {
		hub.broadcast("newsdigest.event.created", []byte(`{}`))
	}

	// Only the last three are retained.
	evts := hub.since(0)
	if len(evts) != 3 || evts[0].ID != 3 || evts[2].ID != 5 {
		t.Fatalf("since(0) = %+v, want IDs 3..5", evts)
	}
	if evts := hub.since(4); len(evts) != 1 || evts[0].ID != 5 {
		t.Fatalf("since(4) = %+v, want ID 5", evts)
	}
	if evts := newStreamHub(3).since(0); len(evts) != 0 {
		t.Fatalf("empty hub since(0) = %+v", evts)
	}
}

func TestMatchTopicPattern(t *testing.T) {
	for _, tc := range []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"newsdigest.event.created", "newsdigest.event.created", true},
		{"newsdigest.event.created", "newsdigest.event.updated", false},
		{"newsdigest.event.*", "newsdigest.event.updated", true},
		{"newsdigest.event.*", "newsdigest.snapshot.stored", false},
		{"newsdigest.>", "newsdigest.run.completed", true},
		{"newsdigest.>", "other.topic", false},
		{"*.*.*", "newsdigest.event.created", true},
		{"*.*.*", "newsdigest.event", false},
	} {
		t.Run(tc.pattern+"_"+tc.topic, func(t *testing.T) {
			if got := matchTopicPattern(tc.pattern, tc.topic); got != tc.want {
				t.Fatalf("matchTopicPattern(%q, %q) = %v, want %v", tc.pattern, tc.topic, got, tc.want)
			}
		})
	}
}

func TestBroadcaster_ForwardsAndStreams(t *testing.T) {
	rec := &events.Recorder{}
	b := NewBroadcaster(rec, discard())

	if err := b.Publish(context.Background(), events.TopicEventDeleted, events.EventDeleted{EventID: "ev-1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if rec.Count(events.TopicEventDeleted) != 1 {
		t.Error("event not forwarded")
	}
	evts := b.hub.since(0)
	if len(evts) != 1 || string(evts[0].Data) != `{"event_id":"ev-1"}` {
		t.Errorf("streamed = %+v", evts)
	}
}

// streamRequest runs GET path against handler until fn returns, then cancels
// the request and returns the body.
func streamRequest(t *testing.T, env *testEnv, path, lastID string, fn func()) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest("GET", path, nil).WithContext(ctx)
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		env.handler.ServeHTTP(rec, req)
	}()

	// Give the handler time to register the subscription.
	time.Sleep(50 * time.Millisecond)
	fn()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}
	return rec.Body.String()
}

func TestHandleStream_DeliversPublishedEvents(t *testing.T) {
	env := newTestEnv(t)
	body := streamRequest(t, env, "/v1/stream", "", func() {
		_ = env.stream.Publish(context.Background(), events.TopicSnapshotStored, events.SnapshotStored{Date: "2025-10-21"})
	})

	sc := bufio.NewScanner(strings.NewReader(body))
	var id, event, data string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "id:"):
			id = strings.TrimPrefix(line, "id:")
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimPrefix(line, "data:")
		}
	}
	if id == "" || event != events.TopicSnapshotStored || !json.Valid([]byte(data)) {
		t.Fatalf("id=%q event=%q data=%q", id, event, data)
	}
}

func TestHandleStream_TopicFilter(t *testing.T) {
	env := newTestEnv(t)
	body := streamRequest(t, env, "/v1/stream?topics=newsdigest.snapshot.*", "", func() {
		_ = env.stream.Publish(context.Background(), events.TopicEventDeleted, events.EventDeleted{EventID: "ev-1"})
		_ = env.stream.Publish(context.Background(), events.TopicSnapshotStored, events.SnapshotStored{Date: "2025-10-21"})
	})
	if strings.Contains(body, events.TopicEventDeleted) {
		t.Fatalf("filtered topic delivered:\n%s", body)
	}
	if !strings.Contains(body, events.TopicSnapshotStored) {
		t.Fatalf("snapshot event missing:\n%s", body)
	}
}

func TestHandleStream_LastEventIDReplays(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"ev-1", "ev-2", "ev-3"} {
		_ = env.stream.Publish(context.Background(), events.TopicEventDeleted, events.EventDeleted{EventID: id})
	}

	body := streamRequest(t, env, "/v1/stream", "1", func() {})
	if strings.Contains(body, `"ev-1"`) {
		t.Fatalf("event 1 replayed:\n%s", body)
	}
	if !strings.Contains(body, `"ev-2"`) || !strings.Contains(body, `"ev-3"`) {
		t.Fatalf("events 2 and 3 not replayed:\n%s", body)
	}
}
