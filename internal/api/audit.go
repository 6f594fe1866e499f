package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/indihub/internal/audit"
	"github.com/nerrad567/indihub/internal/events"
)

// handleListEvents returns stored broker events, newest first.
//
// Query parameters:
//   - kind: filter by event kind (driver.retired, client.connected, ...)
//   - driver: filter by driver name
//   - since: RFC 3339 lower bound on event time
//   - limit: max results (default 50, max 500)
//   - offset: pagination offset
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		Kind:   events.Kind(q.Get("kind")),
		Driver: q.Get("driver"),
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 time")
			return
		}
		filter.Since = since
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	result, err := s.events.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list broker events", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list broker events")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleListSessions returns recent driver sessions, optionally for one
// driver.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}

	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	sessions, err := s.events.ListSessions(r.Context(), q.Get("driver"), limit)
	if err != nil {
		s.logger.Error("failed to list driver sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list driver sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}
