package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/WilsonWong800686/yys-autommation/internal/history"
)

// eventsLimit caps the events returned with one history record.
const eventsLimit = 200

// handleListHistory returns past session records, newest first.
//
// Query parameters:
//   - device: only sessions that ended on this device serial
//   - limit: max results (default 50, max 200)
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "run history is not configured")
		return
	}

	filter := history.Filter{Device: r.URL.Query().Get("device")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	records, err := s.history.ListSessions(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing session history", "error", err)
		writeInternalError(w, "failed to list history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": records,
		"count":    len(records),
	})
}

// handleGetHistory returns one session record and its events.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "run history is not configured")
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := s.history.GetSession(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err, "failed to get session")
		return
	}

	events, err := s.history.ListEvents(r.Context(), id, eventsLimit)
	if err != nil {
		s.logger.Error("listing session events", "id", id, "error", err)
		writeInternalError(w, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": rec,
		"events":  events,
	})
}
