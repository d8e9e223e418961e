package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aqakit/brain/pkg/diag"
	"github.com/aqakit/brain/pkg/utdl"
)

const passingReport = `{
  "plan": {"id": "plan-1", "name": "smoke"},
  "summary": {"total": 2, "passed": 2, "failed": 0, "skipped": 0, "total_duration_ms": 128},
  "results": [
    {"step_id": "health", "status": "passed", "duration_ms": 42},
    {"step_id": "list_users", "status": "passed", "duration_ms": 86,
     "assertions_results": [{"type": "status_code", "passed": true, "expected": 200, "actual": 200}]}
  ]
}`

const failingReport = `{
  "plan": {"id": "plan-1", "name": "smoke"},
  "summary": {"total": 2, "passed": 1, "failed": 1, "skipped": 0, "total_duration_ms": 97},
  "results": [
    {"step_id": "health", "status": "passed", "duration_ms": 40},
    {"step_id": "list_users", "status": "failed", "duration_ms": 57,
     "error": "expected status 200, got 500"}
  ]
}`

// fakeExecutor writes a script that drops the given report at --output and
// exits with the given code.
func fakeExecutor(t *testing.T, report string, exitCode int) string {
	t.Helper()
	script := fmt.Sprintf(`#!/bin/sh
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--output" ]; then out="$a"; fi
  prev="$a"
done
cat > "$out" <<'REPORT'
%s
REPORT
exit %d
`, report, exitCode)
	path := filepath.Join(t.TempDir(), "aqa-runner")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func crashingExecutor(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aqa-runner")
	script := "#!/bin/sh\necho 'panicked at plan.rs:42' >&2\nexit 101\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func sleepingExecutor(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aqa-runner")
	if err := os.WriteFile(path, []byte("#!/bin/sh\nsleep 10\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func smokePlan() *utdl.Plan {
	plan := utdl.NewPlan("smoke", "http://localhost:8000")
	plan.Steps = []utdl.Step{
		{ID: "health", Action: utdl.ActionHTTPRequest,
			Params: map[string]interface{}{"method": "GET", "path": "/health"}},
		{ID: "list_users", Action: utdl.ActionHTTPRequest,
			DependsOn: []string{"health"},
			Params:    map[string]interface{}{"method": "GET", "path": "/users"}},
	}
	return plan
}

func TestRunSuccess(t *testing.T) {
	r := New(fakeExecutor(t, passingReport, 0))
	result, err := r.Run(context.Background(), smokePlan(), RunOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Success || result.Status != StatusSuccess {
		t.Errorf("status = %q, success = %v", result.Status, result.Success)
	}
	if len(result.Steps) != 2 || result.Steps[1].StepID != "list_users" {
		t.Errorf("unexpected steps: %+v", result.Steps)
	}
	if result.TotalDurationMs != 128 {
		t.Errorf("TotalDurationMs = %d", result.TotalDurationMs)
	}
	if len(result.RawReport) == 0 {
		t.Error("raw report should be preserved")
	}
}

func TestRunFailuresAreNotErrors(t *testing.T) {
	// The executor exits non-zero when assertions fail but still writes
	// a report. The report decides the outcome.
	r := New(fakeExecutor(t, failingReport, 1))
	result, err := r.Run(context.Background(), smokePlan(), RunOptions{})
	if err != nil {
		t.Fatalf("a failed run with a report must not error: %v", err)
	}
	if result.Success || result.Status != StatusFailure {
		t.Errorf("status = %q, success = %v", result.Status, result.Success)
	}
	if result.Steps[1].Error == "" {
		t.Error("step error should survive parsing")
	}
}

func TestRunTimeout(t *testing.T) {
	r := New(sleepingExecutor(t), WithTimeout(100*time.Millisecond))
	_, err := r.Run(context.Background(), smokePlan(), RunOptions{})
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	var se *diag.StructuredError
	if !errors.As(err, &se) || se.Code != diag.CodeExecutionTimeout {
		t.Fatalf("expected E5002, got %v", err)
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("message %q should mention the timeout", err.Error())
	}
}

func TestRunCrashWithoutReport(t *testing.T) {
	r := New(crashingExecutor(t))
	_, err := r.Run(context.Background(), smokePlan(), RunOptions{})
	if err == nil {
		t.Fatal("expected an error")
	}
	se := diag.AsStructured(err)
	if se.Code != diag.CodeInternalError {
		t.Fatalf("expected E5001, got %v", se.Code)
	}
	if stderr, _ := se.Context["stderr"].(string); !strings.Contains(stderr, "panicked") {
		t.Errorf("stderr should be captured, got %v", se.Context["stderr"])
	}
}

func TestRunMalformedReport(t *testing.T) {
	r := New(fakeExecutor(t, `{"plan": truncated`, 0))
	_, err := r.Run(context.Background(), smokePlan(), RunOptions{})
	if err == nil {
		t.Fatal("expected an error")
	}
	se := diag.AsStructured(err)
	if se.Code != diag.CodeInternalError {
		t.Fatalf("expected E5001, got %v", se.Code)
	}
	if raw, _ := se.Context["raw_report"].(string); !strings.Contains(raw, "truncated") {
		t.Error("the raw payload should be attached for debugging")
	}
}

func TestTempFilesAlwaysRemoved(t *testing.T) {
	cases := map[string]*Runner{
		"success": New(fakeExecutor(t, passingReport, 0)),
		"crash":   New(crashingExecutor(t)),
		"timeout": New(sleepingExecutor(t), WithTimeout(100*time.Millisecond)),
	}

	scratch := filepath.Join(t.TempDir(), "scratch")
	if err := os.Mkdir(scratch, 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TMPDIR", scratch)
	for name, r := range cases {
		r.Run(context.Background(), smokePlan(), RunOptions{})
		entries, err := os.ReadDir(scratch)
		if err != nil {
			t.Fatal(err)
		}
		if len(entries) != 0 {
			t.Errorf("%s: temp files left behind: %v", name, entries)
		}
	}
}

func TestRunOptionsTimeoutOverride(t *testing.T) {
	r := New(sleepingExecutor(t), WithTimeout(time.Hour))
	start := time.Now()
	_, err := r.Run(context.Background(), smokePlan(), RunOptions{Timeout: 100 * time.Millisecond})
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("per-run timeout was not applied")
	}
}
