package model

import "time"

// RunReport aggregates the outcome of one generation run.
type RunReport struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	SourcesScanned   int `json:"sources_scanned"`
	SourcesSkipped   int `json:"sources_skipped"`
	SourcesProcessed int `json:"sources_processed"`
	SourcesFailed    int `json:"sources_failed"`

	CandidatesExtracted int `json:"candidates_extracted"`
	CandidatesRejected  int `json:"candidates_rejected"`
	Comparisons         int `json:"comparisons"`

	RecordsCreated int `json:"records_created"`
	RecordsUpdated int `json:"records_updated"`
	RecordsMerged  int `json:"records_merged"`
	MergeFailures  int `json:"merge_failures"`
	RecordsEvicted int `json:"records_evicted"`

	Errors         int  `json:"errors"`
	BudgetExceeded bool `json:"budget_exceeded,omitempty"`
}

// Duration returns the wall-clock time the run took.
func (r RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
