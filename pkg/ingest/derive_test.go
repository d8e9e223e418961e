package ingest

import (
	"testing"

	"github.com/aqakit/brain/pkg/utdl"
)

func TestGenerateNegativeCases(t *testing.T) {
	spec := parseUserService(t)
	result := GenerateNegativeCases(spec, NegativeOptions{})

	if result.EndpointsAnalyzed != 1 {
		t.Errorf("endpoints analyzed = %d, want 1 (only POST /users has a body)", result.EndpointsAnalyzed)
	}
	if result.FieldsAnalyzed != 3 {
		t.Errorf("fields analyzed = %d, want 3", result.FieldsAnalyzed)
	}
	if len(result.Cases) == 0 {
		t.Fatal("no cases generated")
	}

	var sawOmit bool
	for _, c := range result.Cases {
		if c.Method != "POST" || c.Path != "/users" {
			t.Errorf("case bound to %s %s", c.Method, c.Path)
		}
		if c.Type == CaseMissingRequired && c.Field == "email" {
			sawOmit = true
			if c.Value != OmitField || c.ExpectedStatus != 400 {
				t.Errorf("omit case = %+v", c)
			}
		}
	}
	if !sawOmit {
		t.Error("required email field produced no omission case")
	}
}

func TestNegativeCaseFilters(t *testing.T) {
	spec := parseUserService(t)

	only := GenerateNegativeCases(spec, NegativeOptions{IncludeTypes: []string{CaseMissingRequired}})
	if len(only.Cases) != 1 || only.Cases[0].Type != CaseMissingRequired {
		t.Errorf("filtered cases = %+v", only.Cases)
	}

	excluded := GenerateNegativeCases(spec, NegativeOptions{ExcludePaths: []string{"/users"}})
	if len(excluded.Cases) != 0 || excluded.EndpointsAnalyzed != 0 {
		t.Errorf("excluded path still analyzed: %+v", excluded)
	}

	formats := GenerateNegativeCases(spec, NegativeOptions{IncludeTypes: []string{CaseInvalidFormat}})
	for _, c := range formats.Cases {
		if c.Field != "email" || c.ExpectedStatus != 422 {
			t.Errorf("format case = %+v", c)
		}
	}
	if len(formats.Cases) == 0 {
		t.Error("email format produced no violations")
	}

	enums := GenerateNegativeCases(spec, NegativeOptions{IncludeTypes: []string{CaseEnumViolation}})
	if len(enums.Cases) == 0 {
		t.Fatal("role enum produced no violations")
	}
	for _, c := range enums.Cases {
		if c.ExpectedStatus != 0 {
			t.Errorf("enum case should have no specific status: %+v", c)
		}
	}
}

func TestNegativeCasesPerFieldCap(t *testing.T) {
	spec := parseUserService(t)
	result := GenerateNegativeCases(spec, NegativeOptions{MaxCasesPerField: 1})

	perField := map[string]int{}
	for _, c := range result.Cases {
		if c.Type != CaseMissingRequired {
			perField[c.Field]++
		}
	}
	for field, n := range perField {
		if n > 1 {
			t.Errorf("field %s has %d cases, cap is 1", field, n)
		}
	}
}

func TestNegativeSteps(t *testing.T) {
	spec := parseUserService(t)
	cases := []NegativeCase{
		{Type: CaseMissingRequired, Field: "email", Description: "omit email",
			Value: OmitField, ExpectedStatus: 400, Path: "/users", Method: "POST"},
		{Type: CaseEnumViolation, Field: "role", Description: "bad role",
			Value: "__not_in_enum__", Path: "/users", Method: "POST"},
	}
	steps := NegativeSteps(spec, cases)
	if len(steps) != 2 {
		t.Fatalf("steps = %d", len(steps))
	}

	if steps[0].ID != "neg-001" || steps[1].ID != "neg-002" {
		t.Errorf("ids = %s, %s", steps[0].ID, steps[1].ID)
	}

	body := steps[0].Params["body"].(map[string]interface{})
	if _, present := body["email"]; present {
		t.Error("omission case still carries the email field")
	}
	if a := steps[0].Assertions[0]; a.Type != utdl.AssertStatusCode || a.Value != 400 {
		t.Errorf("assertion = %+v", a)
	}

	body = steps[1].Params["body"].(map[string]interface{})
	if body["role"] != "__not_in_enum__" {
		t.Errorf("mutated body = %v", body)
	}
	if a := steps[1].Assertions[0]; a.Type != utdl.AssertStatusRange || a.Value != "4xx" {
		t.Errorf("assertion = %+v", a)
	}
}

func TestApplyMutationNested(t *testing.T) {
	body := map[string]interface{}{
		"user": map[string]interface{}{
			"address": map[string]interface{}{"city": "Lisbon"},
		},
		"items": []interface{}{
			map[string]interface{}{"sku": "a-1"},
		},
	}
	applyMutation(body, "user.address.city", 42)
	applyMutation(body, "items[].sku", OmitField)

	city := body["user"].(map[string]interface{})["address"].(map[string]interface{})["city"]
	if city != 42 {
		t.Errorf("city = %v", city)
	}
	item := body["items"].([]interface{})[0].(map[string]interface{})
	if _, present := item["sku"]; present {
		t.Error("sku should be removed from the first item")
	}
}

func TestGenerateRobustnessSteps(t *testing.T) {
	spec := parseUserService(t)
	steps := GenerateRobustnessSteps(spec)

	// POST /users is the only non-GET endpoint: one wrong header, one extra
	// field, two malformed payloads, one oversized value.
	if len(steps) != 5 {
		t.Fatalf("steps = %d, want 5", len(steps))
	}
	if steps[0].ID != "rob-001" || steps[4].ID != "rob-005" {
		t.Errorf("ids = %s..%s", steps[0].ID, steps[4].ID)
	}

	for _, s := range steps {
		if s.Params["method"] != "POST" || s.Params["path"] != "/users" {
			t.Errorf("step %s bound to %v %v", s.ID, s.Params["method"], s.Params["path"])
		}
		if a := s.Assertions[0]; a.Type != utdl.AssertStatusRange || a.Value != "4xx" {
			t.Errorf("step %s assertion = %+v", s.ID, a)
		}
	}

	headers := steps[0].Params["headers"].(map[string]interface{})
	if headers["Content-Type"] != "text/plain" {
		t.Errorf("invalid_header content type = %v", headers["Content-Type"])
	}

	polluted := steps[1].Params["body"].(map[string]interface{})
	if _, ok := polluted["__proto__"]; !ok {
		t.Error("extra_field body lacks __proto__")
	}

	if raw, ok := steps[2].Params["raw_body"].(string); !ok || raw == "" {
		t.Error("malformed_json step should carry raw_body")
	}

	oversized := steps[4].Params["body"].(map[string]interface{})
	found := false
	for _, v := range oversized {
		if s, ok := v.(string); ok && len(s) >= oversizedValueBytes {
			found = true
		}
	}
	if !found {
		t.Error("oversized step carries no oversized string")
	}
}

func TestLatencySLATable(t *testing.T) {
	tests := []struct {
		method, path string
		want         int
	}{
		{"GET", "/users", defaultReadSLAMs},
		{"POST", "/users", defaultWriteSLAMs},
		{"POST", "/auth/login", 1500},
		{"GET", "/health", 200},
		{"GET", "/users/search", 1000},
		{"POST", "/reports/export", 2000},
	}
	for _, tt := range tests {
		if got := LatencySLAMs(tt.method, tt.path); got != tt.want {
			t.Errorf("LatencySLAMs(%s %s) = %d, want %d", tt.method, tt.path, got, tt.want)
		}
	}
	if LatencySLAMs("GET", "/users") >= LatencySLAMs("POST", "/users") {
		t.Error("reads must have tighter budgets than writes")
	}
}

func TestInjectLatencyAssertions(t *testing.T) {
	steps := []utdl.Step{
		{ID: "s1", Action: utdl.ActionHTTPRequest,
			Params: map[string]interface{}{"method": "GET", "path": "/users"}},
		{ID: "s2", Action: utdl.ActionHTTPRequest,
			Params: map[string]interface{}{"method": "POST", "path": "/users"},
			Assertions: []utdl.Assertion{
				{Type: utdl.AssertLatency, Operator: utdl.OpLt, Value: 50},
			}},
		{ID: "s3", Action: utdl.ActionWait},
	}

	if n := InjectLatencyAssertions(steps); n != 1 {
		t.Errorf("injected = %d, want 1", n)
	}
	if len(steps[0].Assertions) != 1 || steps[0].Assertions[0].Type != utdl.AssertLatency {
		t.Errorf("s1 assertions = %+v", steps[0].Assertions)
	}
	// Existing budgets stay untouched.
	if len(steps[1].Assertions) != 1 || steps[1].Assertions[0].Value != 50 {
		t.Errorf("s2 assertions = %+v", steps[1].Assertions)
	}
	if len(steps[2].Assertions) != 0 {
		t.Errorf("wait step gained assertions: %+v", steps[2].Assertions)
	}

	if n := InjectLatencyAssertions(steps); n != 0 {
		t.Errorf("second pass injected %d", n)
	}
}

func TestSampleBodyPrefersDeclaredValues(t *testing.T) {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"email": map[string]interface{}{"type": "string", "format": "email"},
			"role":  map[string]interface{}{"type": "string", "enum": []interface{}{"admin", "user"}},
			"count": map[string]interface{}{"type": "integer", "example": float64(7)},
		},
	}
	body := sampleBody(schema)
	if body["email"] != "user@example.com" {
		t.Errorf("email = %v", body["email"])
	}
	if body["role"] != "admin" {
		t.Errorf("role = %v", body["role"])
	}
	if body["count"] != float64(7) {
		t.Errorf("count = %v", body["count"])
	}
}
