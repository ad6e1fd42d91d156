// Package oracle wraps the natural-language capabilities the pipeline relies
// on: extracting candidate events from text, judging whether two mentions
// describe the same event, merging a mention into a canonical record, and
// composing the fresh sections of a daily digest. Any text-generation
// provider can back it.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/model"
)

// Oracle is the provider-neutral set of natural-language operations.
type Oracle interface {
	// Extract returns the raw candidates mentioned in text. Candidates are not
	// validated; see ExtractCandidates.
	Extract(ctx context.Context, text string, meta SourceMeta) ([]model.CandidateEvent, error)
	// Compare judges whether candidate describes the same real-world event as existing.
	Compare(ctx context.Context, candidate *model.CandidateEvent, existing *model.EventRecord) (Comparison, error)
	// Merge combines candidate into existing and describes the change.
	Merge(ctx context.Context, existing *model.EventRecord, candidate *model.CandidateEvent) (MergedFields, error)
	// Compose builds today's fresh digest sections.
	Compose(ctx context.Context, req ComposeRequest) (model.Digest, error)
	// ModelID identifies the model behind the oracle, recorded on created records.
	ModelID() string
}

// SourceMeta describes where the text handed to Extract came from.
type SourceMeta struct {
	SourceID   string
	SourceType model.SourceType
	ThreadID   string
	Timestamp  time.Time
}

// Comparison is the verdict of a semantic equivalence check.
type Comparison struct {
	IsSameEvent bool             `json:"is_same_event"`
	Confidence  model.Confidence `json:"confidence"`
	Reason      string           `json:"reason"`
}

// Actionable reports whether the verdict is strong enough to merge on.
// Low-confidence matches never confirm equivalence.
func (c Comparison) Actionable() bool {
	return c.IsSameEvent && c.Confidence != model.ConfidenceLow
}

// MergedFields is the oracle's proposal for a merged record.
type MergedFields struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Location    string `json:"location"`
	Type        string `json:"type"`
	MergeNotes  string `json:"merge_notes"`
}

// ComposeRequest carries the inputs for composing fresh digest sections.
type ComposeRequest struct {
	Today   time.Time
	Sources []*model.Source
	Events  []*model.EventRecord
}

// InvocationError reports a failed call to the underlying provider.
type InvocationError struct {
	Op  string
	Err error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("oracle %s: %v", e.Op, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// MalformedResponseError reports a provider response that failed schema validation.
type MalformedResponseError struct {
	Op     string
	Reason string
	Raw    string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("oracle %s: malformed response: %s", e.Op, e.Reason)
}

// IsMalformed reports whether err is a MalformedResponseError.
func IsMalformed(err error) bool {
	var me *MalformedResponseError
	return errors.As(err, &me)
}
