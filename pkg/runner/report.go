package runner

import "encoding/json"

// Report is the executor's output document.
type Report struct {
	Plan    ReportPlan    `json:"plan"`
	Summary ReportSummary `json:"summary"`
	Results []StepReport  `json:"results"`
}

// ReportPlan echoes the executed plan's identity.
type ReportPlan struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ReportSummary aggregates step outcomes.
type ReportSummary struct {
	Total           int   `json:"total"`
	Passed          int   `json:"passed"`
	Failed          int   `json:"failed"`
	Skipped         int   `json:"skipped"`
	TotalDurationMs int64 `json:"total_duration_ms"`
}

// Step statuses in reports.
const (
	StepPassed  = "passed"
	StepFailed  = "failed"
	StepSkipped = "skipped"
)

// StepReport is one executed step.
type StepReport struct {
	StepID     string                 `json:"step_id"`
	Status     string                 `json:"status"`
	DurationMs int64                  `json:"duration_ms"`
	Error      string                 `json:"error,omitempty"`
	Assertions []AssertionReport      `json:"assertions_results,omitempty"`
	Extracted  map[string]interface{} `json:"extractions,omitempty"`
}

// AssertionReport is one evaluated assertion.
type AssertionReport struct {
	Type     string      `json:"type"`
	Passed   bool        `json:"passed"`
	Expected interface{} `json:"expected,omitempty"`
	Actual   interface{} `json:"actual,omitempty"`
	Message  string      `json:"message,omitempty"`
}

// Execution statuses recorded in history.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusError   = "error"
)

// Result is the orchestrator's view of one execution.
type Result struct {
	Success         bool            `json:"success"`
	Status          string          `json:"status"`
	Steps           []StepReport    `json:"steps"`
	Summary         ReportSummary   `json:"summary"`
	TotalDurationMs int64           `json:"total_duration_ms"`
	RawReport       json.RawMessage `json:"raw_report,omitempty"`
}

func resultFromReport(report *Report, raw []byte) *Result {
	status := StatusSuccess
	if report.Summary.Failed > 0 {
		status = StatusFailure
	}
	return &Result{
		Success:         report.Summary.Failed == 0,
		Status:          status,
		Steps:           report.Results,
		Summary:         report.Summary,
		TotalDurationMs: report.Summary.TotalDurationMs,
		RawReport:       json.RawMessage(raw),
	}
}
