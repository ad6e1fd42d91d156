package pipeline

import (
	"github.com/alfredjeanlab/newsdigest/internal/model"
)

// SourceStatus is how far a source got in one run.
type SourceStatus int

const (
	// StatusNotReached means the run budget ran out before the source started.
	StatusNotReached SourceStatus = iota
	// StatusProcessed means extraction validated and every candidate was applied.
	StatusProcessed
	// StatusFailed means extraction failed; the source is retried next run.
	StatusFailed
	// StatusInterrupted means the budget ran out between candidates.
	StatusInterrupted
)

func (s SourceStatus) String() string {
	switch s {
	case StatusProcessed:
		return "processed"
	case StatusFailed:
		return "failed"
	case StatusInterrupted:
		return "interrupted"
	}
	return "not_reached"
}

// Action is what happened to one candidate.
type Action int

const (
	ActionNone Action = iota
	ActionCreated
	ActionMerged
	ActionFailed
	// ActionAlreadyApplied means an earlier attempt on the same source
	// already recorded the candidate; nothing was written.
	ActionAlreadyApplied
)

// CandidateOutcome records the effect of one candidate on the working set.
type CandidateOutcome struct {
	Action          Action
	Record          *model.EventRecord
	Compared        int
	CompareFailures int
	MergeFailed     bool
	Err             error
}

// SourceOutcome records the effect of one source.
type SourceOutcome struct {
	SourceID   string
	Status     SourceStatus
	Extracted  int
	Rejected   int
	Candidates []CandidateOutcome
	// Marked is set once the processed-source marker was written.
	Marked bool
	Err    error
}

// fold adds the outcome to the report. Outcomes are the only input to the
// report; nothing else increments it.
func (o SourceOutcome) fold(r *model.RunReport) {
	switch o.Status {
	case StatusProcessed:
		r.SourcesProcessed++
	case StatusFailed:
		r.SourcesFailed++
		r.Errors++
	case StatusInterrupted, StatusNotReached:
		r.BudgetExceeded = true
	}
	if o.Status == StatusProcessed && !o.Marked {
		r.Errors++
	}

	r.CandidatesRejected += o.Rejected
	r.CandidatesExtracted += o.Extracted
	for _, c := range o.Candidates {
		r.Comparisons += c.Compared
		r.Errors += c.CompareFailures
		switch c.Action {
		case ActionCreated:
			r.RecordsCreated++
		case ActionMerged:
			r.RecordsUpdated++
			if c.MergeFailed {
				r.MergeFailures++
			} else {
				r.RecordsMerged++
			}
		case ActionFailed:
			r.Errors++
		}
	}
}
