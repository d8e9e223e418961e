package api

import (
	"net/http"
	"strings"

	"github.com/aqakit/brain/pkg/diag"
	"github.com/aqakit/brain/pkg/generator"
	"github.com/aqakit/brain/pkg/plans"
	"github.com/aqakit/brain/pkg/utdl"
	"github.com/aqakit/brain/pkg/validator"
)

type generateRequest struct {
	Requirement string `json:"requirement"`
	BaseURL     string `json:"base_url"`
	SkipCache   bool   `json:"skip_cache,omitempty"`
	SavePlan    bool   `json:"save_plan,omitempty"`
}

type generateResponse struct {
	Success          bool       `json:"success"`
	Plan             *utdl.Plan `json:"plan"`
	Cached           bool       `json:"cached"`
	Provider         string     `json:"provider"`
	Model            string     `json:"model"`
	TokensUsed       int        `json:"tokens_used,omitempty"`
	GenerationTimeMs int64      `json:"generation_time_ms"`
	PlanVersion      int        `json:"plan_version,omitempty"`
	RequestID        string     `json:"request_id,omitempty"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Requirement) == "" {
		s.writeBadRequest(w, r, "requirement is required")
		return
	}
	if strings.TrimSpace(req.BaseURL) == "" {
		s.writeError(w, r, diag.New(diag.CodeMissingBaseURL, "base_url is required"))
		return
	}
	if s.deps.Generator == nil {
		s.writeError(w, r, diag.New(diag.CodeInternalError, "generator is not configured"))
		return
	}

	result, err := s.deps.Generator.Generate(r.Context(), req.Requirement, req.BaseURL,
		generator.GenerateOptions{SkipCache: req.SkipCache})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := generateResponse{
		Success:          true,
		Plan:             result.Plan,
		Cached:           result.Metadata.Cached,
		Provider:         result.Metadata.Provider,
		Model:            result.Metadata.Model,
		TokensUsed:       result.Metadata.Tokens,
		GenerationTimeMs: result.Metadata.ElapsedMs,
		RequestID:        requestIDFromContext(r.Context()),
	}

	if req.SavePlan && s.deps.Plans != nil {
		version, err := s.deps.Plans.Save(result.Plan, plans.SaveOptions{
			Source:      plans.SourceLLM,
			LLMProvider: result.Metadata.Provider,
			LLMModel:    result.Metadata.Model,
			Description: truncateRequirement(req.Requirement),
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		resp.PlanVersion = version.Version
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func truncateRequirement(req string) string {
	const max = 140
	req = strings.TrimSpace(req)
	if len(req) <= max {
		return req
	}
	return req[:max] + "..."
}

type validateRequest struct {
	// Plan is the document to validate: an object or a raw JSON string.
	Plan interface{} `json:"plan"`
	Mode string      `json:"mode,omitempty"`
}

type validateResponse struct {
	Success   bool                    `json:"success"`
	Valid     bool                    `json:"valid"`
	Errors    []*diag.StructuredError `json:"errors"`
	Warnings  []*diag.StructuredError `json:"warnings"`
	Stats     *utdl.Stats             `json:"stats,omitempty"`
	Mode      string                  `json:"mode"`
	RequestID string                  `json:"request_id,omitempty"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}
	text, err := planText(req.Plan)
	if err != nil {
		s.writeBadRequest(w, r, err.Error())
		return
	}

	mode := validator.ParseMode(req.Mode)
	v := validator.New(validator.WithMode(mode))
	result := v.ValidateJSON(text)
	if m := s.metrics(); m != nil {
		m.RecordValidation(string(mode), result.OK)
	}

	resp := validateResponse{
		Success:   true,
		Valid:     result.OK,
		Errors:    result.Errors,
		Warnings:  result.Warnings,
		Mode:      string(mode),
		RequestID: requestIDFromContext(r.Context()),
	}
	if result.OK {
		resp.Stats = &result.Stats
	}
	s.writeJSON(w, http.StatusOK, resp)
}
