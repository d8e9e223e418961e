package ingest

import (
	"fmt"
	"sort"
	"strings"
)

// Spec is the flattened view of an OpenAPI document. It carries only what
// plan generation and derivation need; the full document is not retained.
type Spec struct {
	Title      string           `json:"title"`
	BaseURL    string           `json:"base_url"`
	Endpoints  []Endpoint       `json:"endpoints"`
	Validation Validation       `json:"validation"`
	Security   SecurityAnalysis `json:"security"`
}

// Endpoint is one path+method pair.
type Endpoint struct {
	Path        string                  `json:"path"`
	Method      string                  `json:"method"`
	Summary     string                  `json:"summary,omitempty"`
	Description string                  `json:"description,omitempty"`
	Parameters  []Parameter             `json:"parameters,omitempty"`
	RequestBody *RequestBody            `json:"request_body,omitempty"`
	Responses   map[string]ResponseInfo `json:"responses,omitempty"`
}

// Parameter is a flattened operation parameter.
type Parameter struct {
	Name     string `json:"name"`
	In       string `json:"in"`
	Required bool   `json:"required"`
	Type     string `json:"type,omitempty"`
}

// RequestBody holds the JSON body schema of an operation, if any. The schema
// is kept in its generic JSON form so derivation does not depend on the
// parser's schema types.
type RequestBody struct {
	Required bool                   `json:"required"`
	Schema   map[string]interface{} `json:"schema,omitempty"`
}

// ResponseInfo describes one declared response code.
type ResponseInfo struct {
	Description string `json:"description,omitempty"`
}

// Validation is the outcome of validating the source document.
type Validation struct {
	Valid    bool     `json:"is_valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Key returns the "METHOD /path" form used to index endpoint-level data.
func (e Endpoint) Key() string {
	return e.Method + " " + e.Path
}

// HasJSONBody reports whether the endpoint declares a JSON request schema.
func (e Endpoint) HasJSONBody() bool {
	return e.RequestBody != nil && len(e.RequestBody.Schema) > 0
}

// RequirementText renders the flattened spec as the requirement block handed
// to the generator prompt.
func (s *Spec) RequirementText() string {
	var b strings.Builder
	title := s.Title
	if title == "" {
		title = "API"
	}
	fmt.Fprintf(&b, "API: %s\n", title)
	if s.BaseURL != "" {
		fmt.Fprintf(&b, "Base URL: %s\n", s.BaseURL)
	}
	b.WriteString("\nEndpoints:\n")

	for _, ep := range s.Endpoints {
		fmt.Fprintf(&b, "\n- %s %s\n", ep.Method, ep.Path)
		if ep.Summary != "" {
			fmt.Fprintf(&b, "  Summary: %s\n", ep.Summary)
		}
		if len(ep.Parameters) > 0 {
			names := make([]string, len(ep.Parameters))
			for i, p := range ep.Parameters {
				names[i] = p.Name
			}
			fmt.Fprintf(&b, "  Parameters: %s\n", strings.Join(names, ", "))
		}
		if ep.HasJSONBody() {
			b.WriteString("  Accepts JSON body\n")
		}
		if len(ep.Responses) > 0 {
			codes := make([]string, 0, len(ep.Responses))
			for code := range ep.Responses {
				codes = append(codes, code)
			}
			sort.Strings(codes)
			fmt.Fprintf(&b, "  Response codes: %s\n", strings.Join(codes, ", "))
		}
	}
	return b.String()
}
