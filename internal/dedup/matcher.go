// Package dedup decides whether a candidate event is already known and folds
// matched candidates into their canonical records.
package dedup

import (
	"context"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/model"
	"github.com/alfredjeanlab/newsdigest/internal/oracle"
)

// Matcher runs semantic comparisons between candidates and canonical records.
type Matcher struct {
	oracle oracle.Oracle
	logger *slog.Logger
}

// NewMatcher returns a Matcher backed by o.
func NewMatcher(o oracle.Oracle, logger *slog.Logger) *Matcher {
	return &Matcher{oracle: o, logger: logger}
}

// noMatch is the verdict used whenever a comparison cannot be made.
var noMatch = oracle.Comparison{IsSameEvent: false, Confidence: model.ConfidenceLow}

// AreEventsTheSame asks the oracle whether c and r describe one event. Any
// failure yields a low-confidence "different" verdict, so errors can only
// cause a duplicate, never a wrong merge.
func (m *Matcher) AreEventsTheSame(ctx context.Context, c *model.CandidateEvent, r *model.EventRecord) oracle.Comparison {
	cmp, _ := m.compare(ctx, c, r)
	return cmp
}

func (m *Matcher) compare(ctx context.Context, c *model.CandidateEvent, r *model.EventRecord) (oracle.Comparison, error) {
	cmp, err := m.oracle.Compare(ctx, c, r)
	if err != nil {
		m.logger.Warn("comparison failed, treating as different events",
			"source_id", c.SourceID, "event_id", r.ID, "err", err)
		v := noMatch
		v.Reason = "comparison failed: " + err.Error()
		return v, err
	}
	return cmp, nil
}

// MatchOutcome is the result of searching the working set for a candidate.
type MatchOutcome struct {
	// Match is the first record the oracle confirmed, or nil.
	Match      *model.EventRecord
	Comparison oracle.Comparison
	// Compared counts oracle comparisons made; Failures counts those that errored.
	Compared int
	Failures int
}

// FindMatch compares c against the records that share its calendar day and
// returns the first actionable match in slice order. Records on other days
// are never compared.
func (m *Matcher) FindMatch(ctx context.Context, c *model.CandidateEvent, recs []*model.EventRecord, ref time.Time) MatchOutcome {
	var out MatchOutcome
	for _, r := range recs {
		if !SameDay(c.Date, r.Date, ref) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		cmp, err := m.compare(ctx, c, r)
		out.Compared++
		if err != nil {
			out.Failures++
			continue
		}
		if cmp.Actionable() {
			out.Match = r
			out.Comparison = cmp
			return out
		}
	}
	return out
}

// SameDay reports whether two raw date mentions fall on the same calendar
// day. When the candidate date cannot be parsed, only an equal raw string
// (after case and space folding) counts.
func SameDay(candidate, existing string, ref time.Time) bool {
	cd, err := model.NormalizeDate(candidate, ref)
	if err != nil {
		return model.NormalizeText(candidate) == model.NormalizeText(existing)
	}
	ed, err := model.NormalizeDate(existing, ref)
	if err != nil {
		return false
	}
	return cd == ed
}
