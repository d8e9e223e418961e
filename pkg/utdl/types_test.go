package utdl

import (
	"encoding/json"
	"testing"
)

func TestApplyDefaults(t *testing.T) {
	p := &Plan{
		Meta:   Meta{Name: "smoke"},
		Config: Config{BaseURL: "http://localhost:8080"},
		Steps: []Step{
			{ID: "  login  ", Action: ActionHTTPRequest, RecoveryPolicy: &RecoveryPolicy{}},
		},
	}
	p.ApplyDefaults()

	if p.SpecVersion != SpecVersion {
		t.Errorf("spec_version = %q, want %q", p.SpecVersion, SpecVersion)
	}
	if p.Meta.ID == "" {
		t.Error("meta.id should be generated")
	}
	if p.Meta.CreatedAt.IsZero() {
		t.Error("meta.created_at should be set")
	}
	if p.Config.TimeoutMs != DefaultTimeoutMs {
		t.Errorf("timeout_ms = %d, want %d", p.Config.TimeoutMs, DefaultTimeoutMs)
	}
	if p.Steps[0].ID != "login" {
		t.Errorf("step ID should be trimmed, got %q", p.Steps[0].ID)
	}

	rp := p.Steps[0].RecoveryPolicy
	if rp.Strategy != RecoveryFailFast || rp.MaxAttempts != 3 || rp.BackoffMs != 500 || rp.BackoffFactor != 2.0 {
		t.Errorf("recovery defaults not applied: %+v", rp)
	}

	// Idempotent: a second pass must not mint a new ID.
	id := p.Meta.ID
	p.ApplyDefaults()
	if p.Meta.ID != id {
		t.Error("ApplyDefaults must not regenerate an existing ID")
	}
}

func TestPlanStats(t *testing.T) {
	p := NewPlan("stats", "http://h")
	p.Steps = []Step{
		{ID: "a", Action: ActionHTTPRequest, Assertions: []Assertion{
			{Type: AssertStatusCode, Operator: OpEq, Value: 200},
			{Type: AssertLatency, Operator: OpLt, Value: 500},
		}},
		{ID: "b", Action: ActionHTTPRequest, Extract: []Extraction{
			{Source: "body", Path: "$.token", Target: "token"},
		}},
	}
	st := p.Stats()
	if st.Steps != 2 || st.Assertions != 2 || st.Extractions != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestRetryBudgetAndEstimate(t *testing.T) {
	p := NewPlan("budget", "http://h")
	p.Config.TimeoutMs = 1000
	p.Steps = []Step{
		{ID: "a", Action: ActionHTTPRequest},
		{ID: "b", Action: ActionHTTPRequest, RecoveryPolicy: &RecoveryPolicy{Strategy: RecoveryRetry, MaxAttempts: 5}},
	}
	if got := p.RetryBudget(); got != 6 {
		t.Errorf("RetryBudget = %d, want 6", got)
	}
	if got := p.EstimatedWorstCaseMs(); got != 6000 {
		t.Errorf("EstimatedWorstCaseMs = %d, want 6000", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := NewPlan("clone", "http://h")
	p.Steps = []Step{{ID: "a", Action: ActionHTTPRequest, Params: map[string]interface{}{"method": "GET", "path": "/"}}}

	c, err := p.Clone()
	if err != nil {
		t.Fatalf("Clone: %v", err)
	}
	c.Steps[0].Params["method"] = "DELETE"
	if p.Steps[0].Params["method"] != "GET" {
		t.Error("Clone must not share param maps with the original")
	}
}

func TestCanonicalRoundTrip(t *testing.T) {
	p := NewPlan("round", "http://h")
	p.Steps = []Step{{
		ID:     "a",
		Action: ActionHTTPRequest,
		Params: map[string]interface{}{"method": "GET", "path": "/health"},
		Assertions: []Assertion{
			{Type: AssertStatusRange, Operator: OpEq, Value: "4xx"},
		},
	}}

	raw, err := p.MarshalCanonical()
	if err != nil {
		t.Fatalf("MarshalCanonical: %v", err)
	}
	var back Plan
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Steps[0].Assertions[0].Type != AssertStatusRange {
		t.Errorf("assertion type lost in round trip: %+v", back.Steps[0].Assertions)
	}
}
