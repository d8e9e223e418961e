package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/aqakit/brain/pkg/diag"
	"github.com/aqakit/brain/pkg/telemetry"
	"github.com/aqakit/brain/pkg/utdl"
)

// DefaultTimeout bounds one executor invocation.
const DefaultTimeout = 300 * time.Second

// Runner invokes the executor binary for one plan at a time. Concurrent
// executions get independent temp files, so a single Runner is safe to
// share.
type Runner struct {
	binary  string
	timeout time.Duration
	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	events  *telemetry.EventPublisher
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout replaces the default wall-clock budget.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger attaches a component logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithMetrics records execution metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithEvents publishes execution events for the live channel.
func WithEvents(ep *telemetry.EventPublisher) Option {
	return func(r *Runner) { r.events = ep }
}

// WithEventSink returns a copy of the runner publishing to a different
// event stream. Per-connection streaming uses this so subscribers only
// see their own execution.
func (r *Runner) WithEventSink(ep *telemetry.EventPublisher) *Runner {
	c := *r
	c.events = ep
	return &c
}

// New builds a Runner around a located executor binary.
func New(binary string, opts ...Option) *Runner {
	r := &Runner{binary: binary, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOptions tunes one execution.
type RunOptions struct {
	// Timeout overrides the runner's wall-clock budget.
	Timeout time.Duration
}

// Run executes the plan and parses the report. Both temp files are removed
// whatever happens.
func (r *Runner) Run(ctx context.Context, plan *utdl.Plan, opts RunOptions) (*Result, error) {
	raw, stderr, err := r.invoke(ctx, plan, opts)
	if err != nil {
		return nil, err
	}
	return r.parseReport(raw, stderr)
}

// invoke serializes the plan, runs the executor and returns the raw report.
func (r *Runner) invoke(ctx context.Context, plan *utdl.Plan, opts RunOptions) ([]byte, string, error) {
	payload, err := plan.MarshalCanonical()
	if err != nil {
		return nil, "", diag.Wrap(diag.CodeInternalError, "failed to serialize plan", err)
	}

	planFile, err := os.CreateTemp("", "aqa-plan-*.json")
	if err != nil {
		return nil, "", diag.Wrap(diag.CodeInternalError, "failed to create plan temp file", err)
	}
	planPath := planFile.Name()
	defer os.Remove(planPath)

	if _, err := planFile.Write(payload); err != nil {
		planFile.Close()
		return nil, "", diag.Wrap(diag.CodeInternalError, "failed to write plan temp file", err)
	}
	if err := planFile.Close(); err != nil {
		return nil, "", diag.Wrap(diag.CodeInternalError, "failed to close plan temp file", err)
	}

	reportFile, err := os.CreateTemp("", "aqa-report-*.json")
	if err != nil {
		return nil, "", diag.Wrap(diag.CodeInternalError, "failed to create report temp file", err)
	}
	reportPath := reportFile.Name()
	reportFile.Close()
	defer os.Remove(reportPath)

	timeout := r.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.binary, "execute", "--file", planPath, "--output", reportPath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if r.logger != nil {
		r.logger.WithField("binary", r.binary).WithPlanID(plan.Meta.ID).
			Debug("invoking executor")
	}

	runErr := cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, "", diag.Newf(diag.CodeExecutionTimeout,
			"executor exceeded the %s timeout and was terminated", timeout)
	}

	raw, readErr := os.ReadFile(reportPath)
	if readErr != nil || len(raw) == 0 {
		// A crash with no report. Surface the process error.
		if runErr != nil {
			return nil, "", diag.Wrap(diag.CodeInternalError, "executor crashed without producing a report", runErr).
				WithContext("stderr", stderr.String())
		}
		return nil, "", diag.New(diag.CodeInternalError, "executor produced no report").
			WithContext("stderr", stderr.String())
	}
	// A non-zero exit with a report means test failures; the report decides.
	return raw, stderr.String(), nil
}

func (r *Runner) parseReport(raw []byte, stderr string) (*Result, error) {
	var report Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, diag.Wrap(diag.CodeInternalError, "executor report is not valid JSON", err).
			WithContext("raw_report", string(raw)).
			WithContext("stderr", stderr)
	}
	return resultFromReport(&report, raw), nil
}
