package api

import (
	"net/http"
)

type componentHealth struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentHealth `json:"components"`
}

// handleHealth reports liveness plus reachability of each wired component.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		Version:    s.deps.Version,
		Components: map[string]componentHealth{},
	}

	runnerHealth := componentHealth{OK: s.deps.Runner != nil}
	if s.deps.RunnerErr != nil {
		runnerHealth.Detail = s.deps.RunnerErr.Error()
	}
	resp.Components["runner"] = runnerHealth

	llmHealth := componentHealth{OK: false, Detail: "no provider configured"}
	if s.deps.Provider != nil {
		llmHealth = componentHealth{OK: s.deps.Provider.Available()}
		if !llmHealth.OK {
			llmHealth.Detail = "provider reports unavailable"
		}
	}
	resp.Components["llm"] = llmHealth

	storageHealth := componentHealth{OK: false, Detail: "no backend configured"}
	if s.deps.History != nil {
		if _, err := s.deps.History.Stats(r.Context()); err != nil {
			storageHealth = componentHealth{OK: false, Detail: err.Error()}
		} else {
			storageHealth = componentHealth{OK: true}
		}
	}
	resp.Components["storage"] = storageHealth

	// Liveness stays "ok" even when optional components degrade; a dead
	// storage backend is the one thing that flips it.
	if !storageHealth.OK && s.deps.History != nil {
		resp.Status = "degraded"
	}

	s.writeJSON(w, http.StatusOK, resp)
}
