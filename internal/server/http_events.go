package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/alfredjeanlab/newsdigest/internal/events"
	"github.com/alfredjeanlab/newsdigest/internal/model"
)

// parseEventFilter reads date, since and limit query parameters.
func parseEventFilter(r *http.Request) (model.EventFilter, error) {
	q := r.URL.Query()
	var filter model.EventFilter

	if v := q.Get("date"); v != "" {
		if _, err := model.ParseDay(v); err != nil {
			return filter, inputError("date must be YYYY-MM-DD")
		}
		filter.Date = v
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, inputError("since must be an RFC 3339 timestamp")
		}
		filter.UpdatedSince = &t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, inputError("limit must be a non-negative integer")
		}
		filter.Limit = n
	}
	return filter, nil
}

// handleListEvents handles GET /v1/events.
func (s *DigestServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r)
	if err != nil {
		writeStoreError(w, err, "")
		return
	}

	recs, err := s.events.ListEvents(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if recs == nil {
		recs = []*model.EventRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": recs,
		"total":  len(recs),
	})
}

// handleGetEvent handles GET /v1/events/{id}.
func (s *DigestServer) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	rec, err := s.events.GetEvent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleDeleteEvent handles DELETE /v1/events/{id}.
func (s *DigestServer) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.events.DeleteEvent(r.Context(), id); err != nil {
		writeStoreError(w, err, "event not found")
		return
	}
	s.publish(r.Context(), events.TopicEventDeleted, events.EventDeleted{EventID: id})
	w.WriteHeader(http.StatusNoContent)
}

// handleGetSnapshot handles GET /v1/snapshots/{date}.
func (s *DigestServer) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if _, err := model.ParseDay(date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	snap, err := s.snapshots.GetSnapshot(r.Context(), date)
	if err != nil {
		writeStoreError(w, err, "snapshot not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
