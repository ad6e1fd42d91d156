// Package newsletter builds the daily digest snapshot: it composes fresh
// sections from sources the previous snapshot has not consumed, merges them
// with yesterday's digest, and persists the result under today's date.
package newsletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/digest"
	"github.com/alfredjeanlab/newsdigest/internal/events"
	"github.com/alfredjeanlab/newsdigest/internal/model"
	"github.com/alfredjeanlab/newsdigest/internal/oracle"
	"github.com/alfredjeanlab/newsdigest/internal/store"
)

// Options tunes a Generator.
type Options struct {
	// Location is the digest's timezone. Nil means UTC.
	Location *time.Location
	// Incremental merges with the previous snapshot. When false every
	// generation is a bootstrap.
	Incremental bool
	// WindowDays is the trailing window of translated sources considered.
	WindowDays int
	// SnapshotTTL is the expiry horizon of written snapshots.
	SnapshotTTL time.Duration
	Policy      digest.Policy
}

// Generator writes one snapshot per calendar day.
type Generator struct {
	events    store.EventStore
	sources   store.SourceStore
	snapshots store.SnapshotStore
	oracle    oracle.Oracle
	publisher events.Publisher
	logger    *slog.Logger
	opts      Options

	now func() time.Time
}

// NewGenerator wires a Generator. snapshots may be a different backend than
// the event and source stores.
func NewGenerator(ev store.EventStore, src store.SourceStore, snapshots store.SnapshotStore, o oracle.Oracle, pub events.Publisher, logger *slog.Logger, opts Options) *Generator {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Generator{
		events:    ev,
		sources:   src,
		snapshots: snapshots,
		oracle:    o,
		publisher: pub,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// Generate builds and stores today's snapshot. stats is recorded as the
// snapshot's processing stats.
//
// A missing previous snapshot bootstraps. Failing to read it aborts without
// writing, so a transient store fault never resets the digest.
func (g *Generator) Generate(ctx context.Context, stats model.RunReport) (*model.Snapshot, error) {
	now := g.now().In(g.opts.Location)
	today := model.StartOfDay(now)
	date := today.Format(model.DayLayout)
	yesterday := today.AddDate(0, 0, -1).Format(model.DayLayout)
	logger := g.logger.With("date", date)

	prev, err := g.snapshots.GetSnapshot(ctx, yesterday)
	switch {
	case errors.Is(err, store.ErrNotFound):
		logger.Info("no previous snapshot, bootstrapping", "previous", yesterday)
		prev = nil
	case err != nil:
		return nil, fmt.Errorf("read previous snapshot %s: %w", yesterday, err)
	}
	incremental := g.opts.Incremental && prev != nil

	var processed model.ProcessedItems
	if incremental {
		processed = model.ProcessedItems{
			PostIDs:    append([]string(nil), prev.ProcessedItems.PostIDs...),
			MessageIDs: append([]string(nil), prev.ProcessedItems.MessageIDs...),
		}
	}

	unseen := g.unseenSources(ctx, now, processed, logger)
	upcoming := g.upcomingEvents(ctx, today, logger)

	var fresh model.Digest
	if len(unseen) > 0 || len(upcoming) > 0 {
		fresh, err = g.oracle.Compose(ctx, oracle.ComposeRequest{Today: today, Sources: unseen, Events: upcoming})
		if err != nil {
			// Unseen sources stay unconsumed so the next generation retries them.
			logger.Warn("digest composition failed, carrying previous sections", "err", err)
			stats.Errors++
			fresh = model.Digest{}
			if prev != nil {
				// Replaced-per-generation sections keep yesterday's content.
				fresh.WeeklyHighlights = slices.Clone(prev.Digest.WeeklyHighlights)
				fresh.ThreadSummaries = slices.Clone(prev.Digest.ThreadSummaries)
			}
			unseen = nil
		}
	}
	for _, s := range unseen {
		processed.Add(s.Type, s.ID)
	}

	var previous *model.Digest
	if prev != nil {
		previous = &prev.Digest
	}
	snap := &model.Snapshot{
		Date:            date,
		GeneratedAt:     now,
		Digest:          digest.MergeSnapshots(previous, fresh, today, now, g.opts.Incremental, g.opts.Policy),
		ProcessedItems:  processed,
		ProcessingStats: stats,
	}
	if g.opts.SnapshotTTL > 0 {
		snap.ExpiresAt = now.Add(g.opts.SnapshotTTL)
	}

	if err := g.snapshots.PutSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("write snapshot %s: %w", date, err)
	}

	sections, items := countSections(snap.Digest)
	logger.Info("snapshot stored",
		"bootstrap", !incremental,
		"sources", len(unseen),
		"events", len(upcoming),
		"items", items,
	)
	if err := g.publisher.Publish(context.WithoutCancel(ctx), events.TopicSnapshotStored, events.SnapshotStored{
		Date:        date,
		Bootstrap:   !incremental,
		Sections:    sections,
		Items:       items,
		GeneratedAt: now.Format(time.RFC3339),
	}); err != nil {
		logger.Warn("publish snapshot event failed", "err", err)
	}
	return snap, nil
}

// unseenSources lists translated sources inside the window that the previous
// snapshot has not consumed. A read failure yields nothing.
func (g *Generator) unseenSources(ctx context.Context, now time.Time, processed model.ProcessedItems, logger *slog.Logger) []*model.Source {
	since := model.StartOfDay(now).AddDate(0, 0, -g.opts.WindowDays)
	srcs, err := g.sources.ListTranslatedSources(ctx, since)
	if err != nil {
		logger.Warn("list translated sources failed", "err", err)
		return nil
	}
	var out []*model.Source
	for _, s := range srcs {
		if !processed.Contains(s.Type, s.ID) {
			out = append(out, s)
		}
	}
	return out
}

// upcomingEvents returns canonical records dated today or later. Records with
// unparseable dates are kept. A read failure yields nothing.
func (g *Generator) upcomingEvents(ctx context.Context, today time.Time, logger *slog.Logger) []*model.EventRecord {
	recs, err := g.events.ListEvents(ctx, model.EventFilter{})
	if err != nil {
		logger.Warn("list events failed", "err", err)
		return nil
	}
	var out []*model.EventRecord
	for _, r := range recs {
		day, err := model.ParseDate(r.Date, today)
		if err == nil && day.Before(today) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func countSections(d model.Digest) (sections, items int) {
	for _, n := range []int{
		len(d.ImportantInfo),
		len(d.Reminders),
		len(d.UpcomingEvents),
		len(d.WeeklyHighlights),
		len(d.ThreadSummaries),
	} {
		if n > 0 {
			sections++
			items += n
		}
	}
	return sections, items
}
