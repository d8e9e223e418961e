package ingest

import (
	"fmt"
	"strings"

	"github.com/aqakit/brain/pkg/utdl"
)

// Robustness case types.
const (
	RobustInvalidHeader  = "invalid_header"
	RobustExtraField     = "extra_field"
	RobustMalformedJSON  = "malformed_json"
	RobustOversizedValue = "oversized_value"
)

const oversizedValueBytes = 100 * 1024

// GenerateRobustnessSteps derives protocol-abuse steps for every non-GET
// endpoint: wrong Content-Type, injected extra fields (including __proto__),
// malformed JSON payloads, and an oversized string value. All of them assert
// a 4xx response.
func GenerateRobustnessSteps(spec *Spec) []utdl.Step {
	var steps []utdl.Step
	n := 0
	add := func(ep Endpoint, kind, desc string, params map[string]interface{}) {
		n++
		params["method"] = ep.Method
		params["path"] = ep.Path
		steps = append(steps, utdl.Step{
			ID:          fmt.Sprintf("rob-%03d", n),
			Action:      utdl.ActionHTTPRequest,
			Description: fmt.Sprintf("Robustness (%s): %s", kind, desc),
			Params:      params,
			Assertions: []utdl.Assertion{
				{Type: utdl.AssertStatusRange, Operator: utdl.OpEq, Value: "4xx"},
			},
		})
	}

	for _, ep := range spec.Endpoints {
		if ep.Method == "GET" {
			continue
		}
		body := map[string]interface{}{}
		if ep.HasJSONBody() {
			body = sampleBody(ep.RequestBody.Schema)
		}

		add(ep, RobustInvalidHeader, "JSON body with text/plain Content-Type", map[string]interface{}{
			"headers": map[string]interface{}{"Content-Type": "text/plain"},
			"body":    cloneBody(body),
		})

		polluted := cloneBody(body)
		polluted["unexpected_extra_field"] = "unexpected"
		polluted["__proto__"] = map[string]interface{}{"polluted": true}
		add(ep, RobustExtraField, "undeclared fields including __proto__", map[string]interface{}{
			"headers": map[string]interface{}{"Content-Type": "application/json"},
			"body":    polluted,
		})

		add(ep, RobustMalformedJSON, "truncated JSON payload", map[string]interface{}{
			"headers":  map[string]interface{}{"Content-Type": "application/json"},
			"raw_body": `{"truncated": "val`,
		})
		add(ep, RobustMalformedJSON, "unbalanced braces", map[string]interface{}{
			"headers":  map[string]interface{}{"Content-Type": "application/json"},
			"raw_body": `{"a": {"b": 1}`,
		})

		oversized := cloneBody(body)
		oversized[firstStringKey(oversized)] = strings.Repeat("A", oversizedValueBytes)
		add(ep, RobustOversizedValue, fmt.Sprintf("%d KB string value", oversizedValueBytes/1024), map[string]interface{}{
			"headers": map[string]interface{}{"Content-Type": "application/json"},
			"body":    oversized,
		})
	}
	return steps
}

// firstStringKey picks a stable target field for the oversized payload,
// preferring an existing string field.
func firstStringKey(body map[string]interface{}) string {
	var first string
	for k, v := range body {
		if _, ok := v.(string); ok {
			if first == "" || k < first {
				first = k
			}
		}
	}
	if first != "" {
		return first
	}
	return "payload"
}
