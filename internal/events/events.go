// Package events publishes pipeline notifications to the event bus and
// receives upstream triggers from it.
package events

import (
	"context"

	"github.com/alfredjeanlab/newsdigest/internal/model"
)

// Event topic constants
const (
	TopicEventCreated   = "newsdigest.event.created"
	TopicEventUpdated   = "newsdigest.event.updated"
	TopicEventDeleted   = "newsdigest.event.deleted"
	TopicSnapshotStored = "newsdigest.snapshot.stored"
	TopicRunCompleted   = "newsdigest.run.completed"

	// Emitted by upstream ingestion when a source finishes translation;
	// consumed by the daemon to trigger a run.
	TopicSourceTranslated = "newsdigest.source.translated"

	// TopicAll matches every newsdigest subject.
	TopicAll = "newsdigest.>"
)

// Event types

type EventCreated struct {
	Event *model.EventRecord `json:"event"`
}

type EventUpdated struct {
	Event *model.EventRecord `json:"event"`
	// SourceID is the mention that caused the update.
	SourceID   string `json:"source_id"`
	MergeNotes string `json:"merge_notes"`
	Failed     bool   `json:"merge_failed,omitempty"`
}

type EventDeleted struct {
	EventID string `json:"event_id"`
}

type SnapshotStored struct {
	Date        string `json:"date"`
	Bootstrap   bool   `json:"bootstrap"`
	Sections    int    `json:"sections"`
	Items       int    `json:"items"`
	GeneratedAt string `json:"generated_at"`
}

type RunCompleted struct {
	RunID  string          `json:"run_id"`
	Report model.RunReport `json:"report"`
}

type SourceTranslated struct {
	SourceID   string           `json:"source_id"`
	SourceType model.SourceType `json:"source_type"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// NoopPublisher drops every event. It stands in when NEWSDIGEST_NATS_URL is
// unset so components never check for a nil publisher.
type NoopPublisher struct{}

func (*NoopPublisher) Publish(context.Context, string, any) error { return nil }
func (*NoopPublisher) Close() error                               { return nil }
