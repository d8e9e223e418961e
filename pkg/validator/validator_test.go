package validator

import (
	"strings"
	"testing"

	"github.com/aqakit/brain/pkg/diag"
	"github.com/aqakit/brain/pkg/utdl"
)

func basePlan(steps ...utdl.Step) *utdl.Plan {
	return &utdl.Plan{
		SpecVersion: utdl.SpecVersion,
		Meta:        utdl.Meta{Name: "test"},
		Config:      utdl.Config{BaseURL: "http://localhost:8080"},
		Steps:       steps,
	}
}

func httpStep(id string, deps ...string) utdl.Step {
	return utdl.Step{
		ID:        id,
		Action:    utdl.ActionHTTPRequest,
		DependsOn: deps,
		Params:    map[string]interface{}{"method": "GET", "path": "/"},
	}
}

func hasCode(errs []*diag.StructuredError, code diag.Code) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}

func TestValidateHappyPath(t *testing.T) {
	res := New().Validate(basePlan(httpStep("a")))
	if !res.OK {
		t.Fatalf("expected ok, got errors: %v", res.ErrorStrings())
	}
	if len(res.Errors) != 0 {
		t.Errorf("expected zero errors, got %d", len(res.Errors))
	}
	if res.Stats.Steps != 1 || res.Stats.Assertions != 0 || res.Stats.Extractions != 0 {
		t.Errorf("stats = %+v", res.Stats)
	}
	if res.Plan == nil {
		t.Error("valid result should carry the plan")
	}
}

func TestValidateJSONInvalid(t *testing.T) {
	res := New().ValidateJSON("{not json")
	if res.OK || !hasCode(res.Errors, diag.CodeInvalidJSON) {
		t.Errorf("expected E1009, got %v", res.ErrorStrings())
	}
}

func TestUnsupportedSpecVersion(t *testing.T) {
	p := basePlan(httpStep("a"))
	p.SpecVersion = "0.2"
	res := New().Validate(p)
	if res.OK || !hasCode(res.Errors, diag.CodeUnsupportedSpecVersion) {
		t.Errorf("expected E1002, got %v", res.ErrorStrings())
	}
}

func TestCycleRejection(t *testing.T) {
	res := New().Validate(basePlan(httpStep("a", "b"), httpStep("b", "a")))
	if res.OK {
		t.Fatal("cyclic plan must be rejected")
	}
	found := false
	for _, e := range res.Errors {
		if e.Code == diag.CodeCircularDependency {
			found = true
			if !strings.Contains(e.Message, " -> ") {
				t.Errorf("cycle message should carry the path, got %q", e.Message)
			}
			if e.Path != "$.steps" {
				t.Errorf("cycle path = %q, want $.steps", e.Path)
			}
		}
	}
	if !found {
		t.Errorf("expected E1006, got %v", res.ErrorStrings())
	}
}

func TestLongerCycle(t *testing.T) {
	res := New().Validate(basePlan(
		httpStep("a", "c"), httpStep("b", "a"), httpStep("c", "b"),
	))
	if res.OK || !hasCode(res.Errors, diag.CodeCircularDependency) {
		t.Errorf("three-step cycle not detected: %v", res.ErrorStrings())
	}
}

func TestAcyclicDiamondAccepted(t *testing.T) {
	res := New().Validate(basePlan(
		httpStep("a"), httpStep("b", "a"), httpStep("c", "a"), httpStep("d", "b", "c"),
	))
	if !res.OK {
		t.Errorf("diamond DAG should pass: %v", res.ErrorStrings())
	}
}

func TestUnknownDependencyModes(t *testing.T) {
	plan := func() *utdl.Plan {
		return basePlan(httpStep("ghost_caller", "ghost"), httpStep("ghoul"))
	}

	res := New().Validate(plan())
	if res.OK || !hasCode(res.Errors, diag.CodeUnknownDependency) {
		t.Fatalf("default mode should reject unknown dependency: %v", res.ErrorStrings())
	}

	res = New(WithMode(ModeLenient)).Validate(plan())
	if !res.OK {
		t.Fatalf("lenient mode should demote unknown dependency: %v", res.ErrorStrings())
	}
	if !hasCode(res.Warnings, diag.CodeUnknownDependency) {
		t.Fatal("lenient mode should surface the demoted warning")
	}
	for _, w := range res.Warnings {
		if w.Code == diag.CodeUnknownDependency && !strings.Contains(w.Suggestion, "ghoul") {
			t.Errorf("warning should suggest nearest ID, got %q", w.Suggestion)
		}
	}
}

func TestSelfDependency(t *testing.T) {
	res := New().Validate(basePlan(httpStep("a", "a")))
	if res.OK || !hasCode(res.Errors, diag.CodeSelfDependency) {
		t.Errorf("expected E1014, got %v", res.ErrorStrings())
	}
}

func TestDuplicateStepIDs(t *testing.T) {
	res := New().Validate(basePlan(httpStep("a"), httpStep("b"), httpStep("a")))
	if res.OK {
		t.Fatal("duplicate IDs must be rejected")
	}
	for _, e := range res.Errors {
		if e.Code == diag.CodeDuplicateStepID {
			if !strings.Contains(e.Message, "0") || !strings.Contains(e.Message, "2") {
				t.Errorf("duplicate message should name both indices: %q", e.Message)
			}
			return
		}
	}
	t.Errorf("expected E1013, got %v", res.ErrorStrings())
}

func TestEmptyPlanByMode(t *testing.T) {
	if res := New().Validate(basePlan()); res.OK || !hasCode(res.Errors, diag.CodeEmptyPlan) {
		t.Errorf("default mode: expected E1001, got %v", res.ErrorStrings())
	}
	if res := New(WithMode(ModeLenient)).Validate(basePlan()); !res.OK || !hasCode(res.Warnings, diag.CodeEmptyPlan) {
		t.Errorf("lenient mode: empty plan should be a warning")
	}
}

func TestUnknownActionWarningAndStrictPromotion(t *testing.T) {
	p := basePlan(utdl.Step{ID: "x", Action: "teleport"})

	res := New().Validate(p)
	if !res.OK || !hasCode(res.Warnings, diag.CodeUnknownAction) {
		t.Fatalf("default mode: unknown action should warn, got errors %v", res.ErrorStrings())
	}

	res = New(WithMode(ModeStrict)).Validate(basePlan(utdl.Step{ID: "x", Action: "teleport"}))
	if res.OK || !hasCode(res.Errors, diag.CodeUnknownAction) {
		t.Error("strict mode should promote the warning to an error")
	}
}

func TestExtraRootKeyRejectedInStrictOnly(t *testing.T) {
	doc := `{
		"spec_version": "0.1",
		"meta": {"name": "test"},
		"config": {"base_url": "http://localhost:8080"},
		"steps": [{"id": "a", "action": "http_request", "params": {"method": "GET", "path": "/"}}],
		"extra": 1
	}`

	res := New(WithMode(ModeStrict)).ValidateJSON(doc)
	if res.OK || !hasCode(res.Errors, diag.CodeInvalidJSON) {
		t.Fatalf("strict mode should reject the extra root key, got %v", res.ErrorStrings())
	}

	for _, mode := range []Mode{ModeDefault, ModeLenient} {
		res := New(WithMode(mode)).ValidateJSON(doc)
		if !res.OK {
			t.Errorf("%s mode should ignore the extra root key, got %v", mode, res.ErrorStrings())
		}
	}
}

func TestInvalidHTTPMethod(t *testing.T) {
	s := utdl.Step{
		ID:     "bad",
		Action: utdl.ActionHTTPRequest,
		Params: map[string]interface{}{"method": "FETCH", "path": "/"},
	}
	res := New().Validate(basePlan(s))
	if res.OK || !hasCode(res.Errors, diag.CodeInvalidHTTPMethod) {
		t.Errorf("expected E1007, got %v", res.ErrorStrings())
	}
}

func TestAssertionPathRequired(t *testing.T) {
	s := httpStep("a")
	s.Assertions = []utdl.Assertion{{Type: utdl.AssertJSONBody, Operator: utdl.OpEq, Value: 1}}
	res := New().Validate(basePlan(s))
	if res.OK || !hasCode(res.Errors, diag.CodeMissingAssertionField) {
		t.Errorf("expected E1016, got %v", res.ErrorStrings())
	}
}

func TestBadJSONPathFlagged(t *testing.T) {
	s := httpStep("a")
	s.Extract = []utdl.Extraction{{Source: "body", Path: "token", Target: "token"}}
	res := New().Validate(basePlan(s))
	if res.OK || !hasCode(res.Errors, diag.CodeInvalidJSONPath) {
		t.Errorf("expected E1018, got %v", res.ErrorStrings())
	}
}

func TestStepLimitEnforced(t *testing.T) {
	limits := diag.DefaultLimits()
	limits.MaxSteps = 2
	v := New(WithLimits(limits))

	res := v.Validate(basePlan(httpStep("a"), httpStep("b"), httpStep("c")))
	if res.OK || !hasCode(res.Errors, diag.CodeMaxStepsExceeded) {
		t.Errorf("expected E1010, got %v", res.ErrorStrings())
	}
}

func TestParallelEstimateWarns(t *testing.T) {
	limits := diag.DefaultLimits()
	limits.MaxParallel = 2
	v := New(WithLimits(limits))

	res := v.Validate(basePlan(httpStep("a"), httpStep("b"), httpStep("c")))
	if !res.OK {
		t.Fatalf("parallelism estimate is advisory: %v", res.ErrorStrings())
	}
	if !hasCode(res.Warnings, diag.CodePlanExceedsMaxParallel) {
		t.Error("expected parallelism warning")
	}
}

func TestRetryBudgetEnforced(t *testing.T) {
	limits := diag.DefaultLimits()
	limits.MaxRetriesTotal = 4
	v := New(WithLimits(limits))

	s := httpStep("a")
	s.RecoveryPolicy = &utdl.RecoveryPolicy{Strategy: utdl.RecoveryRetry, MaxAttempts: 10}
	res := v.Validate(basePlan(s))
	if res.OK || !hasCode(res.Errors, diag.CodeMaxRetriesExceeded) {
		t.Errorf("expected E1011, got %v", res.ErrorStrings())
	}
}

func TestValidatorNeverMutatesAcceptedSemantics(t *testing.T) {
	// Validator safety: an accepted plan satisfies the core invariants.
	res := New().Validate(basePlan(httpStep("a"), httpStep("b", "a")))
	if !res.OK {
		t.Fatalf("unexpected rejection: %v", res.ErrorStrings())
	}
	seen := map[string]bool{}
	for _, s := range res.Plan.Steps {
		if seen[s.ID] {
			t.Fatal("accepted plan has duplicate step IDs")
		}
		seen[s.ID] = true
	}
	for _, s := range res.Plan.Steps {
		for _, d := range s.DependsOn {
			if !seen[d] {
				t.Fatalf("accepted plan has dangling dependency %q", d)
			}
		}
	}
	if res.Plan.SpecVersion != utdl.SpecVersion {
		t.Fatal("accepted plan has wrong spec_version")
	}
}
