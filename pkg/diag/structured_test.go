package diag

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCodeFormatting(t *testing.T) {
	tests := []struct {
		code     Code
		want     string
		name     string
		category Category
	}{
		{CodeEmptyPlan, "E1001", "EMPTY_PLAN", CategoryValidation},
		{CodeCircularDependency, "E1006", "CIRCULAR_DEPENDENCY", CategoryValidation},
		{CodeRunnerNotFound, "E4002", "RUNNER_NOT_FOUND", CategoryConfiguration},
		{CodeExecutionTimeout, "E5002", "EXECUTION_TIMEOUT", CategoryInternal},
		{CodeCacheError, "E5003", "CACHE_ERROR", CategoryInternal},
		{CodeGenerationFailed, "E6006", "GENERATION_FAILED", CategoryGeneration},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("Code(%d).String() = %q, want %q", tt.code, got, tt.want)
		}
		if got := tt.code.Name(); got != tt.name {
			t.Errorf("Code(%d).Name() = %q, want %q", tt.code, got, tt.name)
		}
		if got := tt.code.Category(); got != tt.category {
			t.Errorf("Code(%d).Category() = %v, want %v", tt.code, got, tt.category)
		}
	}
}

func TestDefaultSeverity(t *testing.T) {
	if CodeUnknownAction.DefaultSeverity() != SeverityWarning {
		t.Error("UNKNOWN_ACTION should default to warning")
	}
	if CodeEmptyPlan.DefaultSeverity() != SeverityError {
		t.Error("EMPTY_PLAN should default to error")
	}
}

func TestStructuredErrorChain(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(CodeCacheError, "failed to write cache entry", cause)

	if !errors.Is(err, New(CodeCacheError, "anything")) {
		t.Error("errors.Is should match on code")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should see the wrapped cause")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	se := AsStructured(wrapped)
	if se.Code != CodeCacheError {
		t.Errorf("AsStructured code = %v, want %v", se.Code, CodeCacheError)
	}
	if CodeOf(errors.New("plain")) != CodeInternalError {
		t.Error("CodeOf on a plain error should be INTERNAL_ERROR")
	}
}

func TestUnknownDependencySuggestions(t *testing.T) {
	known := []string{"login", "logout", "get_users", "create_user"}
	err := NewUnknownDependency("step_a", "logn", 2, known)

	if err.Code != CodeUnknownDependency {
		t.Fatalf("code = %v, want E1005", err.Code)
	}
	if err.Path != "$.steps[2].depends_on" {
		t.Errorf("path = %q", err.Path)
	}
	if !strings.Contains(err.Suggestion, "login") {
		t.Errorf("suggestion %q should include nearest match 'login'", err.Suggestion)
	}
}

func TestCircularDependencyMessage(t *testing.T) {
	err := NewCircularDependency([]string{"a", "b", "a"})
	if !strings.Contains(err.Message, "a -> b -> a") {
		t.Errorf("message %q should carry the cycle path", err.Message)
	}
	if err.Path != "$.steps" {
		t.Errorf("path = %q, want $.steps", err.Path)
	}
}

func TestDuplicateStepID(t *testing.T) {
	err := NewDuplicateStepID("login", 0, 3)
	if !strings.Contains(err.Message, "0") || !strings.Contains(err.Message, "3") {
		t.Errorf("message %q should name both indices", err.Message)
	}
}

func TestClosestMatches(t *testing.T) {
	got := ClosestMatches("usr", []string{"user", "users", "admin", "usr"}, 3)
	if len(got) == 0 || got[0] != "user" {
		t.Errorf("ClosestMatches = %v, want user first", got)
	}
	for _, m := range got {
		if m == "usr" {
			t.Error("exact target must not be suggested")
		}
	}
}

func TestLimitsFromEnv(t *testing.T) {
	t.Setenv("RUNNER_MAX_STEPS", "7")
	t.Setenv("RUNNER_MAX_PARALLEL", "not-a-number")
	l := LimitsFromEnv()
	if l.MaxSteps != 7 {
		t.Errorf("MaxSteps = %d, want 7", l.MaxSteps)
	}
	if l.MaxParallel != DefaultLimits().MaxParallel {
		t.Errorf("invalid env value should fall back to default, got %d", l.MaxParallel)
	}
}
