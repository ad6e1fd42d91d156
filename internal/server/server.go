// Package server exposes canonical event records, daily snapshots and run
// control over HTTP.
package server

import (
	"context"
	"log/slog"

	"github.com/alfredjeanlab/newsdigest/internal/events"
	"github.com/alfredjeanlab/newsdigest/internal/pipeline"
	"github.com/alfredjeanlab/newsdigest/internal/store"
)

// CycleRunner triggers a run followed by snapshot generation.
type CycleRunner interface {
	Run(ctx context.Context) (pipeline.CycleResult, error)
	Last() (pipeline.CycleResult, bool)
}

// DigestServer serves the HTTP API.
type DigestServer struct {
	events    store.EventStore
	snapshots store.SnapshotStore
	cycle     CycleRunner
	publisher events.Publisher
	stream    *Broadcaster
	logger    *slog.Logger
}

// NewDigestServer returns a server over the given stores. pub receives
// deletion events; when it is a *Broadcaster the SSE stream is enabled.
func NewDigestServer(ev store.EventStore, snapshots store.SnapshotStore, cycle CycleRunner, pub events.Publisher, logger *slog.Logger) *DigestServer {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	s := &DigestServer{
		events:    ev,
		snapshots: snapshots,
		cycle:     cycle,
		publisher: pub,
		logger:    logger,
	}
	if b, ok := pub.(*Broadcaster); ok {
		s.stream = b
	}
	return s
}

func (s *DigestServer) publish(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "err", err)
	}
}
