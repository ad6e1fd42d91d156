// Package sync periodically exports canonical event records as JSONL to
// backup destinations.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/model"
	"github.com/alfredjeanlab/newsdigest/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version    string    `json:"version"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	EventCount int       `json:"event_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type       string           `json:"type"`
	Collection model.Collection `json:"collection"`
	Data       any              `json:"data"`
}

// ExportJSONL writes every live event record from s as JSONL to w, sorted by
// ID. Each line names the collection the record belongs to.
func ExportJSONL(ctx context.Context, s store.EventStore, w io.Writer) error {
	recs, err := s.ListEvents(ctx, model.EventFilter{})
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].ID < recs[j].ID
	})

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:    "1",
		Type:       "header",
		Timestamp:  time.Now().UTC(),
		EventCount: len(recs),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, r := range recs {
		if err := enc.Encode(record{Type: "event", Collection: model.CollectionFor(r), Data: r}); err != nil {
			return fmt.Errorf("encode event %s: %w", r.ID, err)
		}
	}
	return nil
}
