package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aqakit/brain/pkg/diag"
	"github.com/aqakit/brain/pkg/generator"
	"github.com/aqakit/brain/pkg/runner"
	"github.com/aqakit/brain/pkg/storage"
	"github.com/aqakit/brain/pkg/utdl"
)

type executeRequest struct {
	// Exactly one plan source: an inline plan document, a plan file path,
	// or a requirement to generate from.
	Plan        interface{} `json:"plan,omitempty"`
	PlanFile    string      `json:"plan_file,omitempty"`
	Requirement string      `json:"requirement,omitempty"`

	BaseURL    string   `json:"base_url,omitempty"`
	DryRun     bool     `json:"dry_run,omitempty"`
	SaveReport bool     `json:"save_report,omitempty"`
	TimeoutS   int      `json:"timeout_s,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

type executeResponse struct {
	Success     bool           `json:"success"`
	Status      string         `json:"status,omitempty"`
	DryRun      bool           `json:"dry_run,omitempty"`
	ExecutionID string         `json:"execution_id,omitempty"`
	Plan        *utdl.Plan     `json:"plan,omitempty"`
	Result      *runner.Result `json:"result,omitempty"`
	ReportPath  string         `json:"report_path,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.writeBadRequest(w, r, "invalid request body: "+err.Error())
		return
	}

	plan, err := s.resolvePlan(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if req.DryRun {
		s.writeJSON(w, http.StatusOK, executeResponse{
			Success:   true,
			DryRun:    true,
			Plan:      plan,
			RequestID: requestIDFromContext(r.Context()),
		})
		return
	}

	if s.deps.Runner == nil {
		err := s.deps.RunnerErr
		if err == nil {
			err = diag.New(diag.CodeRunnerNotFound, "executor binary is not configured")
		}
		s.writeError(w, r, err)
		return
	}

	var opts runner.RunOptions
	if req.TimeoutS > 0 {
		opts.Timeout = time.Duration(req.TimeoutS) * time.Second
	}
	result, err := s.deps.Runner.Run(r.Context(), plan, opts)
	if err != nil {
		s.recordHistory(r.Context(), plan, errorResult(), req.Tags)
		s.writeError(w, r, err)
		return
	}

	rec := s.recordHistory(r.Context(), plan, result, req.Tags)

	resp := executeResponse{
		Success:   result.Success,
		Status:    result.Status,
		Plan:      plan,
		Result:    result,
		RequestID: requestIDFromContext(r.Context()),
	}
	if rec != nil {
		resp.ExecutionID = rec.ID
	}
	if req.SaveReport {
		path, err := s.saveReport(plan, result)
		if err != nil && s.log != nil {
			s.log.WithError(err).Warn("failed to save report")
		}
		resp.ReportPath = path
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// resolvePlan turns the request's plan source into a validated plan.
func (s *Server) resolvePlan(ctx context.Context, req *executeRequest) (*utdl.Plan, error) {
	sources := 0
	if req.Plan != nil {
		sources++
	}
	if req.PlanFile != "" {
		sources++
	}
	if req.Requirement != "" {
		sources++
	}
	if sources != 1 {
		return nil, diag.New(diag.CodeInvalidJSON,
			"exactly one of plan, plan_file, or requirement is required")
	}

	switch {
	case req.Requirement != "":
		if req.BaseURL == "" {
			return nil, diag.New(diag.CodeMissingBaseURL,
				"base_url is required when executing from a requirement")
		}
		if s.deps.Generator == nil {
			return nil, diag.New(diag.CodeInternalError, "generator is not configured")
		}
		result, err := s.deps.Generator.Generate(ctx, req.Requirement, req.BaseURL,
			generator.GenerateOptions{})
		if err != nil {
			return nil, err
		}
		return result.Plan, nil

	case req.PlanFile != "":
		doc, err := s.deps.Adapter.LoadAndNormalize(req.PlanFile)
		if err != nil {
			return nil, err
		}
		return s.validateDocument(doc)

	default:
		text, err := planText(req.Plan)
		if err != nil {
			return nil, diag.Wrap(diag.CodeInvalidJSON, "invalid plan payload", err)
		}
		doc, err := s.deps.Adapter.NormalizeJSON(text)
		if err != nil {
			return nil, err
		}
		return s.validateDocument(doc)
	}
}

func (s *Server) validateDocument(doc map[string]interface{}) (*utdl.Plan, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, diag.Wrap(diag.CodeInternalError, "failed to serialize plan", err)
	}
	result := s.deps.Validator.ValidateJSON(string(payload))
	if !result.OK {
		first := result.Errors[0]
		return nil, first.WithContext("errors", result.ErrorStrings())
	}
	return result.Plan, nil
}

// recordHistory persists the execution outcome; failures degrade to a log
// warning so the execute response still reaches the client.
func (s *Server) recordHistory(ctx context.Context, plan *utdl.Plan, result *runner.Result, tags []string) *storage.ExecutionRecord {
	if s.deps.History == nil {
		return nil
	}
	rec := storage.NewRecord(plan, result)
	if len(tags) > 0 {
		rec.Tags = append(rec.Tags, tags...)
	}
	if payload, err := plan.MarshalCanonical(); err == nil {
		rec.PlanHash = storage.PlanHash(payload)
	}
	if err := s.deps.History.Save(ctx, rec); err != nil {
		if s.log != nil {
			s.log.WithError(err).Warn("failed to record execution history")
		}
		return rec
	}
	if m := s.metrics(); m != nil {
		m.RecordHistoryWrite(backendName(s.deps.History))
	}
	return rec
}

func (s *Server) saveReport(plan *utdl.Plan, result *runner.Result) (string, error) {
	if s.deps.Workspace == nil || len(result.RawReport) == 0 {
		return "", nil
	}
	dir := s.deps.Workspace.ReportsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s.json",
		time.Now().UTC().Format("20060102-150405"),
		sanitizeName(plan.Meta.Name))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, result.RawReport, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "plan"
	}
	return out
}

func errorResult() *runner.Result {
	return &runner.Result{Status: runner.StatusError}
}

func backendName(b storage.Backend) string {
	switch b.(type) {
	case *storage.SQLite:
		return "sqlite"
	case *storage.FileTree:
		return "file"
	case *storage.S3:
		return "s3"
	default:
		return "unknown"
	}
}

// planText accepts an inline object or a raw JSON string.
func planText(v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", fmt.Errorf("plan is required")
	case string:
		return t, nil
	default:
		payload, err := json.Marshal(t)
		if err != nil {
			return "", fmt.Errorf("invalid plan payload: %w", err)
		}
		return string(payload), nil
	}
}
