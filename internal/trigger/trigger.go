// Package trigger starts digest cycles from the event bus and on a fixed
// interval.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/events"
	"github.com/alfredjeanlab/newsdigest/internal/pipeline"
)

// CycleRunner runs one digest cycle.
type CycleRunner interface {
	Run(ctx context.Context) (pipeline.CycleResult, error)
}

// Trigger serializes cycle starts from its sources. Both Listen and Every
// may run at once; a start that collides with a running cycle is skipped.
type Trigger struct {
	runner   CycleRunner
	logger   *slog.Logger
	debounce time.Duration
}

// New returns a Trigger. Bursts of source notifications arriving within
// debounce of the first one start a single cycle.
func New(r CycleRunner, debounce time.Duration, logger *slog.Logger) *Trigger {
	return &Trigger{runner: r, logger: logger, debounce: debounce}
}

// Listen consumes source-translated notifications until ctx is cancelled or
// the subscription closes.
func (t *Trigger) Listen(ctx context.Context, sub events.Subscriber) error {
	ch, cancel, err := sub.Subscribe(events.TopicSourceTranslated)
	if err != nil {
		return fmt.Errorf("trigger: subscribe: %w", err)
	}
	defer cancel()

	t.logger.Info("trigger: subscriber started", "topic", events.TopicSourceTranslated)

	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending int
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("trigger: subscriber stopping")
			return nil
		case raw, ok := <-ch:
			if !ok {
				t.logger.Info("trigger: subscription channel closed")
				return nil
			}
			var ev events.SourceTranslated
			if err := json.Unmarshal(raw, &ev); err != nil {
				t.logger.Warn("trigger: bad event payload", "err", err)
				continue
			}
			pending++
			if timer == nil {
				timer = time.NewTimer(t.debounce)
				fire = timer.C
			}
		case <-fire:
			t.logger.Info("trigger: sources translated", "count", pending)
			timer, fire, pending = nil, nil, 0
			t.run(ctx, "event")
		}
	}
}

// Every starts a cycle each interval until ctx is cancelled.
func (t *Trigger) Every(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.run(ctx, "schedule")
		}
	}
}

func (t *Trigger) run(ctx context.Context, reason string) {
	res, err := t.runner.Run(ctx)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		t.logger.Info("trigger: cycle already running, skipped", "reason", reason)
	case err != nil:
		t.logger.Error("trigger: cycle failed", "reason", reason, "run_id", res.RunID, "err", err)
	default:
		t.logger.Info("trigger: cycle completed", "reason", reason, "run_id", res.RunID, "snapshot", res.SnapshotDate)
	}
}
