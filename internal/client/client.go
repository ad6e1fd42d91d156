// Package client talks to a running newsdigest server over its HTTP/JSON API.
package client

import (
	"context"
	"fmt"

	"github.com/alfredjeanlab/newsdigest/internal/model"
	"github.com/alfredjeanlab/newsdigest/internal/pipeline"
)

// DigestClient is the remote surface the CLI uses when it does not open the
// stores itself.
type DigestClient interface {
	Health(ctx context.Context) error

	ListEvents(ctx context.Context, filter model.EventFilter) (*ListEventsResponse, error)
	GetEvent(ctx context.Context, id string) (*model.EventRecord, error)
	DeleteEvent(ctx context.Context, id string) error

	GetSnapshot(ctx context.Context, date string) (*model.Snapshot, error)

	// TriggerRun starts a cycle and waits for it to finish.
	TriggerRun(ctx context.Context) (*pipeline.CycleResult, error)
	LastRun(ctx context.Context) (*pipeline.CycleResult, error)

	Close() error
}

// ListEventsResponse is the body of GET /v1/events.
type ListEventsResponse struct {
	Events []*model.EventRecord `json:"events"`
	Total  int                  `json:"total"`
}

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}
