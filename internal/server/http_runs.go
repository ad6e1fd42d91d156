package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/alfredjeanlab/newsdigest/internal/pipeline"
)

// handleTriggerRun handles POST /v1/runs. The cycle runs to completion even if
// the client disconnects.
func (s *DigestServer) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	if s.cycle == nil {
		writeError(w, http.StatusServiceUnavailable, "runs are not enabled")
		return
	}

	res, err := s.cycle.Run(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil && res.RunID == "":
		writeError(w, http.StatusInternalServerError, err.Error())
	case err != nil:
		// The run finished but the snapshot was not written.
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"result": res,
		})
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

// handleLastRun handles GET /v1/runs/last.
func (s *DigestServer) handleLastRun(w http.ResponseWriter, _ *http.Request) {
	if s.cycle == nil {
		writeError(w, http.StatusNotFound, "no run recorded")
		return
	}
	res, ok := s.cycle.Last()
	if !ok {
		writeError(w, http.StatusNotFound, "no run recorded")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
