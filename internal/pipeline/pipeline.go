// Package pipeline runs one extraction pass: scan for new sources, extract
// candidate events, and fold each candidate into the canonical records.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alfredjeanlab/newsdigest/internal/dedup"
	"github.com/alfredjeanlab/newsdigest/internal/events"
	"github.com/alfredjeanlab/newsdigest/internal/idgen"
	"github.com/alfredjeanlab/newsdigest/internal/model"
	"github.com/alfredjeanlab/newsdigest/internal/oracle"
	"github.com/alfredjeanlab/newsdigest/internal/scanner"
	"github.com/alfredjeanlab/newsdigest/internal/store"
)

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = errors.New("run already in progress")

// Options tunes a Runner.
type Options struct {
	// WindowDays is the trailing window of translated sources to scan.
	WindowDays int
	// Budget bounds a run's wall-clock time. Zero means unbounded.
	Budget time.Duration
	// EventTTL is the expiry horizon of newly created records.
	EventTTL time.Duration
	// ExtractionTTL is the expiry horizon of processed-source markers.
	ExtractionTTL time.Duration
}

// Result is the outcome of one run.
type Result struct {
	RunID    string          `json:"run_id"`
	Report   model.RunReport `json:"report"`
	Outcomes []SourceOutcome `json:"-"`
}

// Runner executes extraction runs.
type Runner struct {
	store     store.Store
	scanner   *scanner.Scanner
	oracle    oracle.Oracle
	matcher   *dedup.Matcher
	resolver  *dedup.Resolver
	publisher events.Publisher
	logger    *slog.Logger
	opts      Options

	now   func() time.Time
	newID func() (string, error)

	running sync.Mutex
	mu      sync.Mutex
	last    *Result
}

// NewRunner wires a Runner over s and o.
func NewRunner(s store.Store, o oracle.Oracle, pub events.Publisher, logger *slog.Logger, opts Options) *Runner {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	return &Runner{
		store:     s,
		scanner:   scanner.New(s, s, logger),
		oracle:    o,
		matcher:   dedup.NewMatcher(o, logger),
		resolver:  dedup.NewResolver(o, logger),
		publisher: pub,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
		newID:     idgen.NewEventID,
	}
}

// Last returns the most recent completed run, if any.
func (r *Runner) Last() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Result{}, false
	}
	return *r.last, true
}

// Run performs one extraction pass. Only a second concurrent call fails;
// every per-source and per-candidate failure is folded into the report.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if !r.running.TryLock() {
		return Result{}, ErrRunInProgress
	}
	defer r.running.Unlock()

	runID, err := idgen.NewRunID()
	if err != nil {
		return Result{}, fmt.Errorf("generate run id: %w", err)
	}
	now := r.now()
	res := Result{RunID: runID, Report: model.RunReport{StartedAt: now}}
	rep := &res.Report
	logger := r.logger.With("run_id", runID)

	if r.opts.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Budget)
		defer cancel()
	}

	if n, err := r.store.DeleteExpired(ctx, now); err != nil {
		logger.Warn("expiry sweep failed", "err", err)
		rep.Errors++
	} else {
		rep.RecordsEvicted = n
	}

	sc := r.scanner.At(now)
	srcs, err := sc.ScanNewSources(ctx, r.opts.WindowDays)
	if err != nil {
		rep.Errors++
	}
	rep.SourcesScanned = len(srcs)

	part := sc.Pending(ctx, srcs)
	rep.SourcesSkipped = part.Skipped
	rep.Errors += part.Errors

	ws, err := store.LoadWorkingSet(ctx, r.store, model.EventFilter{})
	if err != nil {
		logger.Warn("working set load failed, starting empty", "err", err)
		rep.Errors++
		ws = store.NewWorkingSet(r.store, nil)
	}

	var posts, messages []*model.Source
	for _, s := range part.Pending {
		if s.Type == model.SourceMessage {
			messages = append(messages, s)
		} else {
			posts = append(posts, s)
		}
	}

	// A plain group: one lane stopping early must not cancel the other.
	var postOut, msgOut []SourceOutcome
	var g errgroup.Group
	g.Go(func() (err error) {
		postOut, err = r.lane(ctx, ws, posts, now, logger)
		return err
	})
	g.Go(func() (err error) {
		msgOut, err = r.lane(ctx, ws, messages, now, logger)
		return err
	})
	laneErr := g.Wait()

	res.Outcomes = append(postOut, msgOut...)
	for _, o := range res.Outcomes {
		o.fold(rep)
	}
	if laneErr != nil {
		logger.Warn("run stopped early", "err", laneErr)
		if errors.Is(laneErr, context.DeadlineExceeded) {
			rep.BudgetExceeded = true
		}
	}
	rep.FinishedAt = r.now()

	logger.Info("run completed",
		"scanned", rep.SourcesScanned,
		"skipped", rep.SourcesSkipped,
		"processed", rep.SourcesProcessed,
		"failed", rep.SourcesFailed,
		"candidates", rep.CandidatesExtracted,
		"created", rep.RecordsCreated,
		"merged", rep.RecordsMerged,
		"errors", rep.Errors,
		"budget_exceeded", rep.BudgetExceeded,
		"duration", rep.Duration(),
	)
	r.publish(context.WithoutCancel(ctx), events.TopicRunCompleted, events.RunCompleted{RunID: runID, Report: *rep})

	r.mu.Lock()
	last := res
	r.last = &last
	r.mu.Unlock()
	return res, nil
}

// lane processes one origin's sources in order. Sources past a done context
// are reported as not reached and the context's error is returned.
func (r *Runner) lane(ctx context.Context, ws *store.WorkingSet, srcs []*model.Source, now time.Time, logger *slog.Logger) ([]SourceOutcome, error) {
	out := make([]SourceOutcome, 0, len(srcs))
	for _, s := range srcs {
		out = append(out, r.processSource(ctx, ws, s, now, logger))
	}
	return out, ctx.Err()
}

func (r *Runner) processSource(ctx context.Context, ws *store.WorkingSet, src *model.Source, now time.Time, logger *slog.Logger) SourceOutcome {
	out := SourceOutcome{SourceID: src.ID}
	if ctx.Err() != nil {
		return out
	}

	meta := oracle.SourceMeta{SourceID: src.ID, SourceType: src.Type, ThreadID: src.ThreadID, Timestamp: src.PublishedAt}
	ex, err := oracle.ExtractCandidates(ctx, r.oracle, src.Body(), meta)
	if err != nil {
		logger.Warn("extraction failed, source left for next run", "source_id", src.ID, "err", err)
		out.Status = StatusFailed
		out.Err = err
		return out
	}
	out.Extracted = len(ex.Candidates)
	out.Rejected = ex.Rejected

	// touched holds records this attempt created or merged into; records that
	// list the source but are not in it were written by an earlier attempt.
	touched := make(map[string]bool)
	for i := range ex.Candidates {
		if ctx.Err() != nil {
			out.Status = StatusInterrupted
			return out
		}
		out.Candidates = append(out.Candidates, r.applyCandidate(ctx, ws, &ex.Candidates[i], touched, now, logger))
	}
	for _, c := range out.Candidates {
		if c.Action == ActionFailed {
			// Leave the source unmarked so a run can retry it.
			out.Status = StatusFailed
			out.Err = c.Err
			return out
		}
	}

	out.Status = StatusProcessed
	err = r.store.MarkSourceProcessed(ctx, &model.SourceExtraction{
		SourceID:    src.ID,
		SourceType:  src.Type,
		ExtractedAt: now,
		EventCount:  len(ex.Candidates),
		ModelID:     r.oracle.ModelID(),
		ExpiresAt:   now.Add(r.opts.ExtractionTTL),
	})
	if err != nil {
		logger.Warn("marking source processed failed", "source_id", src.ID, "err", err)
		out.Err = err
		return out
	}
	out.Marked = true
	return out
}

// applyCandidate matches c against the working set and either merges it into
// the first confirmed record or creates a new one. The whole step holds the
// working set so a concurrent lane sees its result. A candidate already
// recorded by an earlier attempt on the same source is left alone, so a retry
// never duplicates a record or counts a merge twice.
func (r *Runner) applyCandidate(ctx context.Context, ws *store.WorkingSet, c *model.CandidateEvent, touched map[string]bool, now time.Time, logger *slog.Logger) CandidateOutcome {
	var out CandidateOutcome
	var merged dedup.MergeResult

	err := ws.Edit(func(e *store.Editor) error {
		if prev := previouslyApplied(c, e.Records(), touched, now); prev != nil {
			out.Action = ActionAlreadyApplied
			out.Record = prev
			return nil
		}

		m := r.matcher.FindMatch(ctx, c, e.Records(), now)
		out.Compared = m.Compared
		out.CompareFailures = m.Failures

		if m.Match != nil && m.Match.HasSource(c.SourceID) && !touched[m.Match.ID] {
			out.Action = ActionAlreadyApplied
			out.Record = m.Match
			return nil
		}

		if m.Match == nil {
			id, err := r.newID()
			if err != nil {
				return fmt.Errorf("generate event id: %w", err)
			}
			rec := dedup.NewRecord(id, c, r.oracle.ModelID(), now, r.opts.EventTTL)
			if err := e.Create(ctx, model.CollectionForSource(c.SourceType), rec); err != nil {
				return err
			}
			out.Action = ActionCreated
			out.Record = rec
			return nil
		}

		merged = r.resolver.MergeEvents(ctx, m.Match, c)
		updated, err := e.Update(ctx, m.Match.ID, dedup.BuildPatch(m.Match, c, merged, now))
		if err != nil {
			return err
		}
		out.Action = ActionMerged
		out.Record = updated
		out.MergeFailed = merged.Failed
		return nil
	})
	if err != nil {
		logger.Warn("applying candidate failed", "source_id", c.SourceID, "title", c.Title, "err", err)
		out.Action = ActionFailed
		out.Err = err
		return out
	}

	switch out.Action {
	case ActionAlreadyApplied:
		logger.Debug("candidate already applied by an earlier attempt", "source_id", c.SourceID, "event_id", out.Record.ID)
		return out
	case ActionCreated:
		touched[out.Record.ID] = true
		r.publish(ctx, events.TopicEventCreated, events.EventCreated{Event: out.Record})
	case ActionMerged:
		touched[out.Record.ID] = true
		r.publish(ctx, events.TopicEventUpdated, events.EventUpdated{
			Event: out.Record, SourceID: c.SourceID, MergeNotes: merged.MergeNotes, Failed: merged.Failed,
		})
	}
	return out
}

// previouslyApplied returns the record an earlier attempt on c's source wrote
// for the same title and day, if any.
func previouslyApplied(c *model.CandidateEvent, recs []*model.EventRecord, touched map[string]bool, now time.Time) *model.EventRecord {
	title := model.NormalizeTitle(c.Title)
	for _, rec := range recs {
		if touched[rec.ID] || !rec.HasSource(c.SourceID) {
			continue
		}
		if model.NormalizeTitle(rec.Title) == title && dedup.SameDay(c.Date, rec.Date, now) {
			return rec
		}
	}
	return nil
}

func (r *Runner) publish(ctx context.Context, topic string, event any) {
	if err := r.publisher.Publish(ctx, topic, event); err != nil {
		r.logger.Warn("publish failed", "topic", topic, "err", err)
	}
}
