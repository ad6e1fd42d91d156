package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/events"
)

const (
	// streamReplaySize is how many recent events are kept for Last-Event-ID
	// reconnection.
	streamReplaySize = 500

	// streamKeepalive is how often a comment line is sent to idle clients.
	streamKeepalive = 15 * time.Second
)

// streamEvent is one published event as sent to SSE clients.
type streamEvent struct {
	ID    uint64
	Topic string
	Data  []byte
}

// streamClient is one connected SSE consumer.
type streamClient struct {
	patterns []string // NATS-style subject patterns; empty matches all
	ch       chan streamEvent
}

func (c *streamClient) wants(topic string) bool {
	if len(c.patterns) == 0 {
		return true
	}
	for _, p := range c.patterns {
		if matchTopicPattern(p, topic) {
			return true
		}
	}
	return false
}

// streamHub fans events out to SSE clients and keeps a bounded replay log.
type streamHub struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
	lastID  uint64
	replay  []streamEvent // oldest first, at most size entries
	size    int
}

func newStreamHub(size int) *streamHub {
	return &streamHub{clients: make(map[*streamClient]struct{}), size: size}
}

// broadcast assigns the next sequence number and delivers to matching
// clients. Slow clients drop events rather than block the publisher.
func (h *streamHub) broadcast(topic string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	evt := streamEvent{ID: h.lastID, Topic: topic, Data: data}
	if len(h.replay) == h.size {
		h.replay = append(h.replay[:0], h.replay[1:]...)
	}
	h.replay = append(h.replay, evt)

	for c := range h.clients {
		if !c.wants(topic) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
		}
	}
}

func (h *streamHub) subscribe(patterns []string) *streamClient {
	c := &streamClient{patterns: patterns, ch: make(chan streamEvent, 64)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *streamHub) unsubscribe(c *streamClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// since returns retained events with ID greater than lastID, oldest first.
func (h *streamHub) since(lastID uint64) []streamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []streamEvent
	for _, e := range h.replay {
		if e.ID > lastID {
			out = append(out, e)
		}
	}
	return out
}

// matchTopicPattern matches a dot-separated topic against a pattern where "*"
// matches one segment and a trailing ">" matches one or more.
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}
	pp := strings.Split(pattern, ".")
	tp := strings.Split(topic, ".")
	for i, seg := range pp {
		if seg == ">" {
			return i < len(tp)
		}
		if i >= len(tp) || (seg != "*" && seg != tp[i]) {
			return false
		}
	}
	return len(pp) == len(tp)
}

// Broadcaster is an events.Publisher that forwards every event to next and
// also streams it to connected SSE clients.
type Broadcaster struct {
	next   events.Publisher
	hub    *streamHub
	logger *slog.Logger
}

// NewBroadcaster wraps next. A nil next only streams.
func NewBroadcaster(next events.Publisher, logger *slog.Logger) *Broadcaster {
	if next == nil {
		next = &events.NoopPublisher{}
	}
	return &Broadcaster{next: next, hub: newStreamHub(streamReplaySize), logger: logger}
}

func (b *Broadcaster) Publish(ctx context.Context, topic string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Warn("failed to encode event for stream", "topic", topic, "err", err)
	} else {
		b.hub.broadcast(topic, data)
	}
	return b.next.Publish(ctx, topic, event)
}

func (b *Broadcaster) Close() error {
	return b.next.Close()
}

// handleStream handles GET /v1/stream. The optional topics parameter is a
// comma-separated list of subject patterns.
func (s *DigestServer) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		writeError(w, http.StatusNotFound, "event stream is not enabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	var patterns []string
	for _, p := range strings.Split(r.URL.Query().Get("topics"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}

	hub := s.stream.hub
	client := hub.subscribe(patterns)
	defer hub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if lastID, err := strconv.ParseUint(v, 10, 64); err == nil {
			for _, evt := range hub.since(lastID) {
				if client.wants(evt.Topic) {
					writeStreamEvent(w, evt)
				}
			}
			flusher.Flush()
		}
	}

	keepalive := time.NewTicker(streamKeepalive)
	defer keepalive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-client.ch:
			writeStreamEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeStreamEvent(w http.ResponseWriter, evt streamEvent) {
	fmt.Fprintf(w, "id:%d\nevent:%s\ndata:%s\n\n", evt.ID, evt.Topic, evt.Data)
}
