package oracle

import (
	"context"

	"github.com/alfredjeanlab/newsdigest/internal/model"
)

// Extraction is the validated result of one extraction call.
type Extraction struct {
	Candidates []model.CandidateEvent
	// Rejected counts candidates dropped by client-side validation.
	Rejected int
}

// ExtractCandidates runs the oracle over one source's text and drops
// candidates that fail model.ValidateCandidate. A non-nil error means the
// extraction itself failed and the source must not be marked processed; an
// empty, error-free result is a validated "no events".
func ExtractCandidates(ctx context.Context, o Oracle, text string, meta SourceMeta) (Extraction, error) {
	raw, err := o.Extract(ctx, text, meta)
	if err != nil {
		return Extraction{}, err
	}
	var ex Extraction
	for i := range raw {
		c := raw[i]
		if model.ValidateCandidate(&c) != nil {
			ex.Rejected++
			continue
		}
		ex.Candidates = append(ex.Candidates, c)
	}
	return ex, nil
}
