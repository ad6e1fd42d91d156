package store

import (
	"context"
	"errors"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/model"
)

var (
	// ErrNotFound reports the legitimate absence of a record or snapshot.
	ErrNotFound = errors.New("not found")
	// ErrStoreAccess wraps failures to reach or query the backing store.
	// Callers that must tell "absent" from "unreadable" check for it with errors.Is.
	ErrStoreAccess = errors.New("store access")
)

// EventStore persists canonical event records and processed-source markers.
type EventStore interface {
	// ListEvents scans unexpired records across both collections, oldest first.
	ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.EventRecord, error)
	GetEvent(ctx context.Context, id string) (*model.EventRecord, error)
	CreateEvent(ctx context.Context, coll model.Collection, rec *model.EventRecord) error
	// UpdateEvent applies patch to the record in coll atomically and returns
	// the stored result. It returns ErrNotFound when coll holds no such record.
	UpdateEvent(ctx context.Context, coll model.Collection, id string, patch model.EventPatch) (*model.EventRecord, error)
	DeleteEvent(ctx context.Context, id string) error

	// ExistsForSource reports whether sourceID has a live processed marker.
	// Markers are written only after every candidate was applied.
	ExistsForSource(ctx context.Context, sourceID string) (bool, error)
	MarkSourceProcessed(ctx context.Context, ext *model.SourceExtraction) error

	// DeleteExpired evicts records and markers whose expiry is before now.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// SnapshotStore persists one digest snapshot per calendar day.
type SnapshotStore interface {
	// GetSnapshot returns ErrNotFound when no snapshot exists for date.
	GetSnapshot(ctx context.Context, date string) (*model.Snapshot, error)
	// PutSnapshot overwrites the snapshot for snap.Date.
	PutSnapshot(ctx context.Context, snap *model.Snapshot) error
}

// SourceStore reads translated sources produced by upstream ingestion.
type SourceStore interface {
	// ListTranslatedSources returns sources translated at or after since.
	ListTranslatedSources(ctx context.Context, since time.Time) ([]*model.Source, error)
}

// Store is the full persistence surface of the service.
type Store interface {
	EventStore
	SnapshotStore
	SourceStore

	Close() error
}
