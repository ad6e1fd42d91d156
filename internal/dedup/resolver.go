package dedup

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/model"
	"github.com/alfredjeanlab/newsdigest/internal/oracle"
)

// MergeResult is the resolved field set for a matched record.
type MergeResult struct {
	Title       string
	Description string
	Date        string
	Time        string
	Location    string
	Type        string
	MergeNotes  string
	// Failed is set when the oracle could not produce a usable merge. The
	// fields then equal the existing record's.
	Failed bool
}

// Resolver merges candidates into canonical records.
type Resolver struct {
	oracle oracle.Oracle
	logger *slog.Logger
}

// NewResolver returns a Resolver backed by o.
func NewResolver(o oracle.Oracle, logger *slog.Logger) *Resolver {
	return &Resolver{oracle: o, logger: logger}
}

// MergeEvents combines c into existing. Date, time and location take the
// candidate's value whenever it has one; the oracle supplies the merged
// description and the change note. It never returns an error: a failed merge
// keeps the existing fields and carries a "merge failed" note.
func (r *Resolver) MergeEvents(ctx context.Context, existing *model.EventRecord, c *model.CandidateEvent) MergeResult {
	mf, err := r.oracle.Merge(ctx, existing, c)
	if err == nil {
		err = checkMerged(mf)
	}
	if err != nil {
		r.logger.Warn("merge failed, keeping existing fields",
			"event_id", existing.ID, "source_id", c.SourceID, "err", err)
		return MergeResult{
			Title:       existing.Title,
			Description: existing.Description,
			Date:        existing.Date,
			Time:        existing.Time,
			Location:    existing.Location,
			Type:        existing.Type,
			MergeNotes:  "merge failed: " + err.Error(),
			Failed:      true,
		}
	}

	return MergeResult{
		Title:       prefer(mf.Title, existing.Title),
		Description: strings.TrimSpace(mf.Description),
		Date:        prefer(c.Date, existing.Date),
		Time:        prefer(c.Time, existing.Time),
		Location:    prefer(c.Location, existing.Location),
		Type:        prefer(mf.Type, existing.Type),
		MergeNotes:  strings.TrimSpace(mf.MergeNotes),
	}
}

func checkMerged(mf oracle.MergedFields) error {
	if strings.TrimSpace(mf.Description) == "" {
		return errors.New("empty merged description")
	}
	if strings.TrimSpace(mf.MergeNotes) == "" {
		return errors.New("empty merge notes")
	}
	return nil
}

func prefer(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}

// BuildPatch turns a merge result into the store update for existing. The
// candidate's source id is unioned into the set for its origin and, for
// messages, its thread id into the thread set. Only a successful merge
// rewrites fields and increments the update counter.
func BuildPatch(existing *model.EventRecord, c *model.CandidateEvent, res MergeResult, now time.Time) model.EventPatch {
	p := model.EventPatch{
		AddSourceID:         c.SourceID,
		SourceType:          c.SourceType,
		AppendMergeNote:     res.MergeNotes,
		LastUpdatedAt:       now,
		LastUpdatedBySource: c.SourceID,
	}
	if c.SourceType == model.SourceMessage {
		p.AddThreadID = c.ThreadID
	}
	if res.Failed {
		return p
	}
	p.IncrementUpdateCount = true
	p.Title = changed(existing.Title, res.Title)
	p.Description = changed(existing.Description, res.Description)
	p.Date = changed(existing.Date, res.Date)
	p.Time = changed(existing.Time, res.Time)
	p.Location = changed(existing.Location, res.Location)
	p.Type = changed(existing.Type, res.Type)
	return p
}

func changed(old, cur string) *string {
	if old == cur {
		return nil
	}
	return &cur
}

// NewRecord builds a canonical record from a candidate that matched nothing.
func NewRecord(id string, c *model.CandidateEvent, modelID string, now time.Time, ttl time.Duration) *model.EventRecord {
	r := &model.EventRecord{
		ID:                  id,
		Title:               strings.TrimSpace(c.Title),
		Description:         strings.TrimSpace(c.Description),
		Date:                strings.TrimSpace(c.Date),
		Time:                strings.TrimSpace(c.Time),
		Location:            strings.TrimSpace(c.Location),
		Type:                strings.TrimSpace(c.Type),
		SourcePostIDs:       []string{},
		SourceMessageIDs:    []string{},
		SourceThreadIDs:     []string{},
		FirstMentionedAt:    now,
		LastUpdatedAt:       now,
		LastUpdatedBySource: c.SourceID,
		Confidence:          c.Confidence,
		ExtractedAt:         now,
		ExtractionModelID:   modelID,
		ExpiresAt:           now.Add(ttl),
	}
	switch c.SourceType {
	case model.SourceMessage:
		r.SourceMessageIDs = append(r.SourceMessageIDs, c.SourceID)
		if c.ThreadID != "" {
			r.SourceThreadIDs = append(r.SourceThreadIDs, c.ThreadID)
		}
	default:
		r.SourcePostIDs = append(r.SourcePostIDs, c.SourceID)
	}
	return r
}
