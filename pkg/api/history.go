package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aqakit/brain/pkg/diag"
	"github.com/aqakit/brain/pkg/storage"
)

func (s *Server) historyBackend(w http.ResponseWriter, r *http.Request) storage.Backend {
	if s.deps.History == nil {
		s.writeError(w, r, diag.New(diag.CodeInternalError, "history storage is not configured"))
		return nil
	}
	return s.deps.History
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	backend := s.historyBackend(w, r)
	if backend == nil {
		return
	}
	filter, err := listFilterFromQuery(r)
	if err != nil {
		s.writeBadRequest(w, r, err.Error())
		return
	}
	records, err := backend.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"records":    records,
		"count":      len(records),
		"request_id": requestIDFromContext(r.Context()),
	})
}

func (s *Server) handleHistoryStats(w http.ResponseWriter, r *http.Request) {
	backend := s.historyBackend(w, r)
	if backend == nil {
		return
	}
	stats, err := backend.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"stats":      stats,
		"request_id": requestIDFromContext(r.Context()),
	})
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	backend := s.historyBackend(w, r)
	if backend == nil {
		return
	}
	id := chi.URLParam(r, "id")
	rec, err := backend.Get(r.Context(), id)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, errorEnvelope{
			Error: errorBody{
				Code:    diag.CodeVersionNotFound.String(),
				Message: "execution record not found: " + id,
			},
			RequestID: requestIDFromContext(r.Context()),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"record":     rec,
		"request_id": requestIDFromContext(r.Context()),
	})
}

func (s *Server) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	backend := s.historyBackend(w, r)
	if backend == nil {
		return
	}
	id := chi.URLParam(r, "id")
	ok, err := backend.Delete(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		s.writeJSON(w, http.StatusNotFound, errorEnvelope{
			Error: errorBody{
				Code:    diag.CodeVersionNotFound.String(),
				Message: "execution record not found: " + id,
			},
			RequestID: requestIDFromContext(r.Context()),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"deleted":    id,
		"request_id": requestIDFromContext(r.Context()),
	})
}

// handleHistorySearch is backed by the embedded database; other backends
// fall back to an unfiltered list.
func (s *Server) handleHistorySearch(w http.ResponseWriter, r *http.Request) {
	backend := s.historyBackend(w, r)
	if backend == nil {
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		s.writeBadRequest(w, r, "query parameter q is required")
		return
	}

	var (
		records []*storage.ExecutionRecord
		err     error
	)
	if db, ok := backend.(*storage.SQLite); ok {
		records, err = db.Search(r.Context(), query)
	} else {
		records, err = backend.List(r.Context(), storage.ListFilter{})
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"records":    records,
		"count":      len(records),
		"request_id": requestIDFromContext(r.Context()),
	})
}

func listFilterFromQuery(r *http.Request) (storage.ListFilter, error) {
	q := r.URL.Query()
	filter := storage.ListFilter{Status: q.Get("status")}

	var err error
	if filter.Limit, err = intParam(q.Get("limit"), 0); err != nil {
		return filter, err
	}
	if filter.Offset, err = intParam(q.Get("offset"), 0); err != nil {
		return filter, err
	}
	if raw := q.Get("start_date"); raw != "" {
		if filter.StartDate, err = parseDateParam(raw); err != nil {
			return filter, err
		}
	}
	if raw := q.Get("end_date"); raw != "" {
		if filter.EndDate, err = parseDateParam(raw); err != nil {
			return filter, err
		}
	}
	if raw := q.Get("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filter.Tags = append(filter.Tags, tag)
			}
		}
	}
	return filter, nil
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid numeric parameter %q", raw)
	}
	return n, nil
}

func parseDateParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
