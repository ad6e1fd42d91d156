// Package oracletest provides a scriptable oracle.Oracle for tests.
package oracletest

import (
	"context"
	"strings"
	"sync"

	"github.com/alfredjeanlab/newsdigest/internal/model"
	"github.com/alfredjeanlab/newsdigest/internal/oracle"
)

// Fake is an oracle.Oracle whose behavior is set per operation. Unset
// functions fall back to simple deterministic defaults: Extract finds
// nothing, Compare matches on normalized title with high confidence, Merge
// takes the candidate's non-empty fields, and Compose returns an empty digest.
type Fake struct {
	ExtractFunc func(text string, meta oracle.SourceMeta) ([]model.CandidateEvent, error)
	CompareFunc func(c *model.CandidateEvent, r *model.EventRecord) (oracle.Comparison, error)
	MergeFunc   func(r *model.EventRecord, c *model.CandidateEvent) (oracle.MergedFields, error)
	ComposeFunc func(req oracle.ComposeRequest) (model.Digest, error)

	mu    sync.Mutex
	calls map[string]int
	// Extracted lists source ids passed to Extract, in call order.
	Extracted []string
}

// Compile-time check that Fake implements oracle.Oracle.
var _ oracle.Oracle = (*Fake)(nil)

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Fake) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[op]++
}

func (f *Fake) ModelID() string { return "fake/test-1" }

func (f *Fake) Extract(_ context.Context, text string, meta oracle.SourceMeta) ([]model.CandidateEvent, error) {
	f.record("extract")
	f.mu.Lock()
	f.Extracted = append(f.Extracted, meta.SourceID)
	f.mu.Unlock()
	if f.ExtractFunc == nil {
		return nil, nil
	}
	out, err := f.ExtractFunc(text, meta)
	for i := range out {
		out[i].SourceID = meta.SourceID
		out[i].SourceType = meta.SourceType
		out[i].ThreadID = meta.ThreadID
		out[i].SourceTimestamp = meta.Timestamp
	}
	return out, err
}

func (f *Fake) Compare(_ context.Context, c *model.CandidateEvent, r *model.EventRecord) (oracle.Comparison, error) {
	f.record("compare")
	if f.CompareFunc != nil {
		return f.CompareFunc(c, r)
	}
	same := model.NormalizeTitle(c.Title) == model.NormalizeTitle(r.Title)
	return oracle.Comparison{IsSameEvent: same, Confidence: model.ConfidenceHigh, Reason: "title comparison"}, nil
}

func (f *Fake) Merge(_ context.Context, r *model.EventRecord, c *model.CandidateEvent) (oracle.MergedFields, error) {
	f.record("merge")
	if f.MergeFunc != nil {
		return f.MergeFunc(r, c)
	}
	desc := r.Description
	if !strings.Contains(desc, c.Description) {
		desc = strings.TrimSpace(desc + " " + c.Description)
	}
	return oracle.MergedFields{
		Title:       r.Title,
		Description: desc,
		Date:        firstNonEmpty(c.Date, r.Date),
		Time:        firstNonEmpty(c.Time, r.Time),
		Location:    firstNonEmpty(c.Location, r.Location),
		Type:        firstNonEmpty(c.Type, r.Type),
		MergeNotes:  "merged mention from " + c.SourceID,
	}, nil
}

func (f *Fake) Compose(_ context.Context, req oracle.ComposeRequest) (model.Digest, error) {
	f.record("compose")
	if f.ComposeFunc != nil {
		return f.ComposeFunc(req)
	}
	return model.Digest{}, nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
