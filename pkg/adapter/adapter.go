package adapter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/aqakit/brain/pkg/diag"
	"github.com/aqakit/brain/pkg/utdl"
)

// stepsAliases are top-level keys accepted in place of "steps".
var stepsAliases = []string{"tests", "scenarios", "cases", "test_cases"}

// assertionTypeAliases map legacy assertion type names to canonical ones.
var assertionTypeAliases = map[string]string{
	"status":        utdl.AssertStatusCode,
	"code":          utdl.AssertStatusCode,
	"http_status":   utdl.AssertStatusCode,
	"body":          utdl.AssertJSONBody,
	"response_body": utdl.AssertJSONBody,
	"json":          utdl.AssertJSONBody,
	"response_time": utdl.AssertLatency,
	"duration":      utdl.AssertLatency,
	"time":          utdl.AssertLatency,
}

// Adapter rewrites near-UTDL documents into canonical form. It carries no
// state; the zero value is usable.
type Adapter struct{}

// New returns an Adapter.
func New() *Adapter {
	return &Adapter{}
}

// Normalize rewrites a raw document into canonical UTDL. The input map is
// not modified. Returns E6005 when no steps can be derived.
func (a *Adapter) Normalize(plan map[string]interface{}) (map[string]interface{}, error) {
	result := map[string]interface{}{}

	if sv, ok := plan["spec_version"].(string); ok && sv != "" {
		result["spec_version"] = sv
	} else {
		result["spec_version"] = utdl.SpecVersion
	}
	result["meta"] = a.normalizeMeta(asMap(plan["meta"]))
	result["config"] = a.normalizeConfig(plan)

	steps := a.extractSteps(plan)
	if len(steps) == 0 {
		return nil, diag.New(diag.CodeNormalizationFailed,
			"plan has no steps (or tests/scenarios/cases) to normalize").
			WithSuggestion("add a non-empty steps array")
	}
	normalized := make([]interface{}, 0, len(steps))
	for _, s := range steps {
		normalized = append(normalized, a.normalizeStep(asMap(s)))
	}
	result["steps"] = normalized
	return result, nil
}

// NormalizeJSON parses text as JSON and normalizes it.
func (a *Adapter) NormalizeJSON(text string) (map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(stripBOM(text)), &raw); err != nil {
		return nil, diag.Wrap(diag.CodeInvalidJSON, "plan is not valid JSON", err)
	}
	return a.Normalize(raw)
}

// LoadAndNormalize reads a JSON or YAML plan file (by extension, with a
// JSON-first fallback) and normalizes it. A UTF-8 BOM is stripped.
func (a *Adapter) LoadAndNormalize(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan file: %w", err)
	}
	content := stripBOM(string(data))

	var raw map[string]interface{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal([]byte(content), &raw); err != nil {
			return nil, diag.Wrap(diag.CodeInvalidJSON, "plan file is not valid YAML", err)
		}
	default:
		if jsonErr := json.Unmarshal([]byte(content), &raw); jsonErr != nil {
			if err := yaml.Unmarshal([]byte(content), &raw); err != nil {
				return nil, diag.Wrap(diag.CodeInvalidJSON, "plan file is neither valid JSON nor YAML", jsonErr)
			}
		}
	}
	return a.Normalize(raw)
}

func (a *Adapter) normalizeMeta(meta map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"id":         stringOr(meta["id"], uuid.NewString()),
		"name":       stringOr(meta["name"], "Auto-generated Test Plan"),
		"tags":       sliceOr(meta["tags"]),
		"created_at": stringOr(meta["created_at"], time.Now().UTC().Format(time.RFC3339)),
	}
	if d, ok := meta["description"].(string); ok && d != "" {
		out["description"] = d
	}
	return out
}

func (a *Adapter) normalizeConfig(plan map[string]interface{}) map[string]interface{} {
	cfg := asMap(plan["config"])
	baseURL := stringOr(cfg["base_url"], "")
	if baseURL == "" {
		baseURL = stringOr(plan["base_url"], "https://api.example.com")
	}
	return map[string]interface{}{
		"base_url":       baseURL,
		"timeout_ms":     numberOr(cfg["timeout_ms"], 30000),
		"global_headers": mapOr(cfg["global_headers"]),
		"variables":      mapOr(cfg["variables"]),
	}
}

func (a *Adapter) extractSteps(plan map[string]interface{}) []interface{} {
	if s, ok := plan["steps"].([]interface{}); ok {
		return s
	}
	for _, alias := range stepsAliases {
		if s, ok := plan[alias].([]interface{}); ok {
			return s
		}
	}
	return nil
}

func (a *Adapter) normalizeStep(step map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"id": stringOr(step["id"], uuid.NewString()),
	}
	if d, ok := step["description"]; ok {
		out["description"] = d
	}
	if deps, ok := step["depends_on"]; ok {
		out["depends_on"] = deps
	}

	switch {
	case step["http"] != nil:
		out["action"] = utdl.ActionHTTPRequest
		out["params"] = a.normalizeHTTPParams(asMap(step["http"]))
	case step["action"] != nil:
		if action, ok := step["action"].(map[string]interface{}); ok {
			// Action given as an object carrying its own params.
			typ := stringOr(action["type"], "http")
			if typ == "http" || typ == utdl.ActionHTTPRequest {
				out["action"] = utdl.ActionHTTPRequest
				out["params"] = a.normalizeHTTPParams(action)
			} else {
				out["action"] = typ
				params := map[string]interface{}{}
				for k, v := range action {
					if k != "type" {
						params[k] = v
					}
				}
				out["params"] = params
			}
		} else {
			action := stringOr(step["action"], utdl.ActionHTTPRequest)
			out["action"] = action
			out["params"] = a.normalizeParams(asMap(step["params"]), action)
		}
	case step["method"] != nil || step["path"] != nil:
		// Bare request fields at the step level.
		out["action"] = utdl.ActionHTTPRequest
		out["params"] = a.normalizeHTTPParams(step)
	default:
		out["action"] = utdl.ActionHTTPRequest
		out["params"] = mapOr(step["params"])
	}

	assertions, _ := step["assertions"].([]interface{})
	if len(assertions) == 0 {
		if expected := asMap(step["expected"]); len(expected) > 0 {
			assertions = a.expectedToAssertions(expected)
		}
	}
	if len(assertions) > 0 {
		normalized := make([]interface{}, 0, len(assertions))
		for _, raw := range assertions {
			normalized = append(normalized, a.normalizeAssertion(asMap(raw)))
		}
		out["assertions"] = normalized
	}

	extractions := firstSlice(step, "extract", "exports", "extractions")
	if len(extractions) > 0 {
		normalized := make([]interface{}, 0, len(extractions))
		for _, raw := range extractions {
			normalized = append(normalized, a.normalizeExtraction(asMap(raw)))
		}
		out["extract"] = normalized
	}

	if rp, ok := step["recovery_policy"]; ok {
		out["recovery_policy"] = rp
	} else if rp, ok := step["recovery"]; ok {
		out["recovery_policy"] = rp
	}
	return out
}

func (a *Adapter) normalizeParams(params map[string]interface{}, action string) map[string]interface{} {
	switch action {
	case utdl.ActionHTTPRequest:
		return a.normalizeHTTPParams(params)
	case utdl.ActionWait, utdl.ActionSleep:
		duration := numberOr(params["duration_ms"], 0)
		if duration == 0 {
			duration = numberOr(params["ms"], 0)
		}
		if duration == 0 {
			duration = numberOr(params["duration"], 1000)
		}
		return map[string]interface{}{"duration_ms": duration}
	default:
		return params
	}
}

func (a *Adapter) normalizeHTTPParams(params map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"method": strings.ToUpper(stringOr(params["method"], "GET")),
	}
	path := stringOr(params["path"], "")
	for _, alias := range []string{"url", "endpoint", "uri"} {
		if path != "" {
			break
		}
		path = stringOr(params[alias], "")
	}
	if path == "" {
		path = "/"
	}
	out["path"] = path

	if h, ok := params["headers"]; ok {
		out["headers"] = h
	}
	if b, ok := params["body"]; ok {
		out["body"] = b
	} else if b, ok := params["data"]; ok {
		out["body"] = b
	} else if b, ok := params["json"]; ok {
		out["body"] = b
	}
	if q, ok := params["query"]; ok {
		out["query"] = q
	} else if q, ok := params["query_params"]; ok {
		out["query"] = q
	}
	return out
}

// expectedToAssertions converts the legacy {"expected": {...}} shape into
// an assertions array.
func (a *Adapter) expectedToAssertions(expected map[string]interface{}) []interface{} {
	var out []interface{}
	status := expected["status_code"]
	if status == nil {
		status = expected["status"]
	}
	if status != nil {
		out = append(out, map[string]interface{}{
			"type": utdl.AssertStatusCode, "operator": utdl.OpEq, "value": status,
		})
	}
	if body, ok := expected["body"]; ok {
		if bodyMap, isMap := body.(map[string]interface{}); isMap {
			out = append(out, map[string]interface{}{
				"type": utdl.AssertJSONBody, "operator": utdl.OpEq, "value": bodyMap,
			})
		} else {
			out = append(out, map[string]interface{}{
				"type": utdl.AssertJSONBody, "operator": utdl.OpContains, "value": body,
			})
		}
	}
	if headers := asMap(expected["headers"]); len(headers) > 0 {
		for name, value := range headers {
			out = append(out, map[string]interface{}{
				"type": utdl.AssertHeader, "operator": utdl.OpEq, "path": name, "value": value,
			})
		}
	}
	return out
}

func (a *Adapter) normalizeAssertion(assertion map[string]interface{}) map[string]interface{} {
	rawType := stringOr(assertion["type"], utdl.AssertStatusCode)
	typ := rawType
	if canonical, ok := assertionTypeAliases[rawType]; ok {
		typ = canonical
	}
	out := map[string]interface{}{
		"type":     typ,
		"operator": stringOr(assertion["operator"], utdl.OpEq),
	}
	value := assertion["value"]
	if value == nil {
		value = assertion["expected"]
	}
	if value == nil {
		value = assertion["expect"]
	}
	if value == nil {
		value = assertion["expected_value"]
	}
	if value != nil {
		out["value"] = value
	}
	if p, ok := assertion["path"]; ok {
		out["path"] = p
	} else if name, ok := assertion["name"]; ok && typ == utdl.AssertHeader {
		out["path"] = name
	}
	return out
}

func (a *Adapter) normalizeExtraction(extraction map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{
		"source": stringOr(extraction["source"], stringOr(extraction["from"], "body")),
	}
	path := stringOr(extraction["path"], "")
	if path == "" {
		path = stringOr(extraction["json_path"], "")
	}
	if path == "" {
		path = stringOr(extraction["jsonpath"], "")
	}
	if path != "" {
		out["path"] = path
	}
	target := ""
	for _, key := range []string{"target", "name", "as", "to", "variable", "var"} {
		if target = stringOr(extraction[key], ""); target != "" {
			break
		}
	}
	if target == "" {
		target = "extracted_" + uuid.NewString()[:8]
	}
	out["target"] = target
	return out
}

func stripBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}

func asMap(v interface{}) map[string]interface{} {
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

func mapOr(v interface{}) map[string]interface{} {
	return asMap(v)
}

func sliceOr(v interface{}) []interface{} {
	if s, ok := v.([]interface{}); ok {
		return s
	}
	return []interface{}{}
}

func firstSlice(m map[string]interface{}, keys ...string) []interface{} {
	for _, k := range keys {
		if s, ok := m[k].([]interface{}); ok && len(s) > 0 {
			return s
		}
	}
	return nil
}

func stringOr(v interface{}, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func numberOr(v interface{}, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		if n != 0 {
			return n
		}
	case int:
		if n != 0 {
			return float64(n)
		}
	case int64:
		if n != 0 {
			return float64(n)
		}
	}
	return fallback
}
