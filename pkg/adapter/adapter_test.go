package adapter

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/aqakit/brain/pkg/diag"
	"github.com/aqakit/brain/pkg/validator"
)

func TestNormalizeAliases(t *testing.T) {
	raw := map[string]interface{}{
		"base_url": "http://localhost:9000",
		"tests": []interface{}{
			map[string]interface{}{
				"id":     "check",
				"method": "get",
				"url":    "/status",
				"assertions": []interface{}{
					map[string]interface{}{"type": "status", "expected": float64(200)},
				},
				"exports": []interface{}{
					map[string]interface{}{"from": "body", "json_path": "$.token", "as": "token"},
				},
			},
		},
	}

	got, err := New().Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	steps := got["steps"].([]interface{})
	if len(steps) != 1 {
		t.Fatalf("steps = %d, want 1", len(steps))
	}
	step := steps[0].(map[string]interface{})
	if step["action"] != "http_request" {
		t.Errorf("action = %v", step["action"])
	}
	params := step["params"].(map[string]interface{})
	if params["method"] != "GET" || params["path"] != "/status" {
		t.Errorf("params = %v", params)
	}

	assertion := step["assertions"].([]interface{})[0].(map[string]interface{})
	if assertion["type"] != "status_code" || assertion["operator"] != "eq" || assertion["value"] != float64(200) {
		t.Errorf("assertion = %v", assertion)
	}

	extract := step["extract"].([]interface{})[0].(map[string]interface{})
	if extract["source"] != "body" || extract["path"] != "$.token" || extract["target"] != "token" {
		t.Errorf("extract = %v", extract)
	}

	cfg := got["config"].(map[string]interface{})
	if cfg["base_url"] != "http://localhost:9000" {
		t.Errorf("base_url should be hoisted from the root, got %v", cfg["base_url"])
	}
}

func TestNormalizedPlanValidates(t *testing.T) {
	raw := map[string]interface{}{
		"scenarios": []interface{}{
			map[string]interface{}{
				"id": "ping",
				"http": map[string]interface{}{
					"method": "get", "endpoint": "/ping",
				},
				"expected": map[string]interface{}{"status": float64(204)},
			},
		},
	}
	normalized, err := New().Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	text, _ := json.Marshal(normalized)
	res := validator.New().ValidateJSON(string(text))
	if !res.OK {
		t.Errorf("normalized plan should validate, got %v", res.ErrorStrings())
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	raw := map[string]interface{}{
		"tests": []interface{}{
			map[string]interface{}{
				"id":     "a",
				"method": "POST",
				"path":   "/items",
				"assertions": []interface{}{
					map[string]interface{}{"type": "code", "expect": float64(201)},
				},
			},
		},
	}
	a := New()
	once, err := a.Normalize(raw)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	twice, err := a.Normalize(once)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("normalize is not idempotent:\nonce:  %v\ntwice: %v", once, twice)
	}
}

func TestNormalizeNoSteps(t *testing.T) {
	_, err := New().Normalize(map[string]interface{}{"meta": map[string]interface{}{"name": "x"}})
	if err == nil {
		t.Fatal("expected error for step-less plan")
	}
	var se *diag.StructuredError
	if !errors.As(err, &se) || se.Code != diag.CodeNormalizationFailed {
		t.Errorf("expected E6005, got %v", err)
	}
}

func TestNormalizeWaitAliases(t *testing.T) {
	raw := map[string]interface{}{
		"steps": []interface{}{
			map[string]interface{}{"id": "pause", "action": "wait", "params": map[string]interface{}{"ms": float64(250)}},
		},
	}
	got, err := New().Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	params := got["steps"].([]interface{})[0].(map[string]interface{})["params"].(map[string]interface{})
	if params["duration_ms"] != float64(250) {
		t.Errorf("duration_ms = %v, want 250", params["duration_ms"])
	}
}

func TestNormalizeExpectedHeaders(t *testing.T) {
	raw := map[string]interface{}{
		"steps": []interface{}{
			map[string]interface{}{
				"id": "a", "method": "GET", "path": "/",
				"expected": map[string]interface{}{
					"status":  float64(200),
					"headers": map[string]interface{}{"Content-Type": "application/json"},
				},
			},
		},
	}
	got, err := New().Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	assertions := got["steps"].([]interface{})[0].(map[string]interface{})["assertions"].([]interface{})
	if len(assertions) != 2 {
		t.Fatalf("assertions = %d, want 2", len(assertions))
	}
	var sawHeader bool
	for _, raw := range assertions {
		a := raw.(map[string]interface{})
		if a["type"] == "header" && a["path"] == "Content-Type" {
			sawHeader = true
		}
	}
	if !sawHeader {
		t.Error("expected a header assertion derived from expected.headers")
	}
}

func TestLoadAndNormalizeYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	content := `
base_url: http://localhost:7000
tests:
  - id: list
    method: GET
    endpoint: /things
    assertions:
      - type: status
        expected: 200
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := New().LoadAndNormalize(path)
	if err != nil {
		t.Fatalf("LoadAndNormalize: %v", err)
	}
	if len(got["steps"].([]interface{})) != 1 {
		t.Error("yaml plan should normalize to one step")
	}
}
