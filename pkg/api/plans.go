package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aqakit/brain/pkg/diag"
	"github.com/aqakit/brain/pkg/plans"
)

func (s *Server) planStore(w http.ResponseWriter, r *http.Request) *plans.Store {
	if s.deps.Plans == nil {
		s.writeError(w, r, diag.New(diag.CodeInternalError, "plan store is not configured"))
		return nil
	}
	return s.deps.Plans
}

func (s *Server) handlePlansList(w http.ResponseWriter, r *http.Request) {
	store := s.planStore(w, r)
	if store == nil {
		return
	}
	index, err := store.ListPlans()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"plans":      index,
		"count":      len(index),
		"request_id": requestIDFromContext(r.Context()),
	})
}

// handlePlanGet returns the current version, or ?version=N.
func (s *Server) handlePlanGet(w http.ResponseWriter, r *http.Request) {
	store := s.planStore(w, r)
	if store == nil {
		return
	}
	name := chi.URLParam(r, "name")

	var (
		version *plans.Version
		err     error
	)
	if raw := r.URL.Query().Get("version"); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || n < 1 {
			s.writeBadRequest(w, r, "version must be a positive integer")
			return
		}
		version, err = store.Get(name, n)
	} else {
		version, err = store.GetCurrent(name)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"name":       name,
		"version":    version,
		"request_id": requestIDFromContext(r.Context()),
	})
}

func (s *Server) handlePlanVersions(w http.ResponseWriter, r *http.Request) {
	store := s.planStore(w, r)
	if store == nil {
		return
	}
	name := chi.URLParam(r, "name")
	versions, err := store.ListVersions(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"name":       name,
		"versions":   versions,
		"count":      len(versions),
		"request_id": requestIDFromContext(r.Context()),
	})
}

func (s *Server) handlePlanDiff(w http.ResponseWriter, r *http.Request) {
	store := s.planStore(w, r)
	if store == nil {
		return
	}
	name := chi.URLParam(r, "name")
	a, errA := strconv.Atoi(r.URL.Query().Get("a"))
	b, errB := strconv.Atoi(r.URL.Query().Get("b"))
	if errA != nil || errB != nil || a < 1 || b < 1 {
		s.writeBadRequest(w, r, "query parameters a and b must be positive version numbers")
		return
	}
	diff, err := store.DiffVersions(name, a, b)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"name":       name,
		"diff":       diff,
		"request_id": requestIDFromContext(r.Context()),
	})
}

// handlePlanRestore creates a new version whose payload equals the target;
// history is never rewritten.
func (s *Server) handlePlanRestore(w http.ResponseWriter, r *http.Request) {
	store := s.planStore(w, r)
	if store == nil {
		return
	}
	name := chi.URLParam(r, "name")
	target, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || target < 1 {
		s.writeBadRequest(w, r, "version must be a positive integer")
		return
	}
	version, err := store.Rollback(name, target)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"name":        name,
		"restored":    target,
		"new_version": version.Version,
		"request_id":  requestIDFromContext(r.Context()),
	})
}

func (s *Server) handlePlanDelete(w http.ResponseWriter, r *http.Request) {
	store := s.planStore(w, r)
	if store == nil {
		return
	}
	name := chi.URLParam(r, "name")
	if raw := r.URL.Query().Get("version"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.writeBadRequest(w, r, "version must be a positive integer")
			return
		}
		if err := store.DeleteVersion(name, n); err != nil {
			s.writeError(w, r, err)
			return
		}
	} else if err := store.DeletePlan(name); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"deleted":    name,
		"request_id": requestIDFromContext(r.Context()),
	})
}

func (s *Server) handleWorkspaceInit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Workspace == nil {
		s.writeError(w, r, diag.New(diag.CodeInternalError, "workspace is not configured"))
		return
	}
	if err := s.deps.Workspace.Init(); err != nil {
		s.writeError(w, r, diag.Wrap(diag.CodeInternalError, "workspace init failed", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"status":     s.deps.Workspace.Status(),
		"request_id": requestIDFromContext(r.Context()),
	})
}

func (s *Server) handleWorkspaceStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Workspace == nil {
		s.writeError(w, r, diag.New(diag.CodeInternalError, "workspace is not configured"))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"status":     s.deps.Workspace.Status(),
		"request_id": requestIDFromContext(r.Context()),
	})
}
