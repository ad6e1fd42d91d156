// Package scanner finds translated sources that still need extraction.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/model"
	"github.com/alfredjeanlab/newsdigest/internal/store"
)

// Scanner reads the source feed and checks the event store for prior
// extractions. It never writes.
type Scanner struct {
	sources store.SourceStore
	events  store.EventStore
	logger  *slog.Logger
	now     func() time.Time
}

// New returns a Scanner.
func New(sources store.SourceStore, events store.EventStore, logger *slog.Logger) *Scanner {
	return &Scanner{sources: sources, events: events, logger: logger, now: time.Now}
}

// At returns a copy of s whose trailing window ends at now.
func (s *Scanner) At(now time.Time) *Scanner {
	c := *s
	c.now = func() time.Time { return now }
	return &c
}

// ScanNewSources returns sources translated within the trailing windowDays.
// A failed read is logged and reported alongside an empty list, so callers
// can treat it as "no new sources".
func (s *Scanner) ScanNewSources(ctx context.Context, windowDays int) ([]*model.Source, error) {
	if windowDays <= 0 {
		windowDays = 1
	}
	since := s.now().AddDate(0, 0, -windowDays)
	srcs, err := s.sources.ListTranslatedSources(ctx, since)
	if err != nil {
		s.logger.Warn("source scan failed, treating as no new sources", "since", since, "err", err)
		return nil, fmt.Errorf("scan sources: %w", err)
	}
	return srcs, nil
}

// HasExistingExtraction reports whether sourceID was already extracted.
func (s *Scanner) HasExistingExtraction(ctx context.Context, sourceID string) (bool, error) {
	ok, err := s.events.ExistsForSource(ctx, sourceID)
	if err != nil {
		return false, fmt.Errorf("check source %s: %w", sourceID, err)
	}
	return ok, nil
}

// Partition is the result of filtering a scan down to unprocessed sources.
type Partition struct {
	Pending []*model.Source
	Skipped int
	// Errors counts sources whose existence check failed; they are left out of Pending
	// so the oracle is never called twice for the same source.
	Errors int
}

// Pending checks each source and keeps only those not yet extracted.
func (s *Scanner) Pending(ctx context.Context, srcs []*model.Source) Partition {
	var p Partition
	for _, src := range srcs {
		done, err := s.HasExistingExtraction(ctx, src.ID)
		switch {
		case err != nil:
			s.logger.Warn("existence check failed, skipping source this run", "source_id", src.ID, "err", err)
			p.Errors++
		case done:
			p.Skipped++
		default:
			p.Pending = append(p.Pending, src)
		}
	}
	return p
}
