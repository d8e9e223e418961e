package ingest

import (
	"fmt"
	"strings"

	"github.com/aqakit/brain/pkg/utdl"
)

// Negative case types.
const (
	CaseMissingRequired = "missing_required"
	CaseInvalidType     = "invalid_type"
	CaseLimitExceeded   = "limit_exceeded"
	CaseInvalidFormat   = "invalid_format"
	CaseEmptyValue      = "empty_value"
	CaseNullValue       = "null_value"
	CaseEnumViolation   = "enum_violation"
)

// OmitField marks a case whose mutation removes the field instead of
// replacing its value.
const OmitField = "__OMIT__"

var allCaseTypes = []string{
	CaseMissingRequired, CaseInvalidType, CaseLimitExceeded,
	CaseInvalidFormat, CaseEmptyValue, CaseNullValue, CaseEnumViolation,
}

// NegativeCase is one invalid-input scenario derived from a body schema.
type NegativeCase struct {
	Type        string      `json:"case_type"`
	Field       string      `json:"field_name"`
	Description string      `json:"description"`
	Value       interface{} `json:"invalid_value"`
	// ExpectedStatus of 0 means no specific code is known; the derived step
	// then asserts status_range 4xx instead.
	ExpectedStatus int    `json:"expected_status,omitempty"`
	Path           string `json:"endpoint_path"`
	Method         string `json:"endpoint_method"`
}

// NegativeOptions bounds case generation.
type NegativeOptions struct {
	// IncludeTypes restricts which case types are generated. Empty means all.
	IncludeTypes []string
	// ExcludePaths names endpoint paths to skip.
	ExcludePaths []string
	// MaxCasesPerField caps non-omission cases per field. Zero means 3.
	MaxCasesPerField int
}

// NegativeResult is the outcome of a negative-case pass over a spec.
type NegativeResult struct {
	Cases             []NegativeCase `json:"cases"`
	EndpointsAnalyzed int            `json:"endpoints_analyzed"`
	FieldsAnalyzed    int            `json:"fields_analyzed"`
}

// GenerateNegativeCases walks every POST/PUT/PATCH endpoint carrying a JSON
// body schema and produces invalid mutations per field.
func GenerateNegativeCases(spec *Spec, opts NegativeOptions) *NegativeResult {
	maxPerField := opts.MaxCasesPerField
	if maxPerField <= 0 {
		maxPerField = 3
	}
	include := map[string]bool{}
	if len(opts.IncludeTypes) == 0 {
		for _, t := range allCaseTypes {
			include[t] = true
		}
	} else {
		for _, t := range opts.IncludeTypes {
			include[t] = true
		}
	}
	excluded := map[string]bool{}
	for _, p := range opts.ExcludePaths {
		excluded[p] = true
	}

	result := &NegativeResult{}
	for _, ep := range spec.Endpoints {
		if !mutatesBody(ep.Method) || !ep.HasJSONBody() || excluded[ep.Path] {
			continue
		}
		result.EndpointsAnalyzed++

		fields := extractSchemaFields(ep.RequestBody.Schema, "", requiredSet(ep.RequestBody.Schema))
		result.FieldsAnalyzed += len(fields)

		for _, f := range fields {
			if f.Required && include[CaseMissingRequired] {
				result.Cases = append(result.Cases, NegativeCase{
					Type:           CaseMissingRequired,
					Field:          f.Path,
					Description:    fmt.Sprintf("omit required field %q", f.Path),
					Value:          OmitField,
					ExpectedStatus: 400,
					Path:           ep.Path,
					Method:         ep.Method,
				})
			}
			taken := 0
			for _, cand := range invalidValuesFor(f) {
				if !include[cand.caseType] || taken >= maxPerField {
					continue
				}
				result.Cases = append(result.Cases, NegativeCase{
					Type:           cand.caseType,
					Field:          f.Path,
					Description:    fmt.Sprintf("%s for %q", cand.description, f.Path),
					Value:          cand.value,
					ExpectedStatus: expectedStatusFor(cand.caseType),
					Path:           ep.Path,
					Method:         ep.Method,
				})
				taken++
			}
		}
	}
	return result
}

// NegativeSteps turns cases into executable steps. Each step sends the
// endpoint's sample body with one field mutated (or removed) and asserts a
// 4xx outcome.
func NegativeSteps(spec *Spec, cases []NegativeCase) []utdl.Step {
	bodies := map[string]map[string]interface{}{}
	for _, ep := range spec.Endpoints {
		if ep.HasJSONBody() {
			bodies[ep.Key()] = sampleBody(ep.RequestBody.Schema)
		}
	}

	steps := make([]utdl.Step, 0, len(cases))
	for i, c := range cases {
		body := cloneBody(bodies[c.Method+" "+c.Path])
		applyMutation(body, c.Field, c.Value)

		assertion := utdl.Assertion{Type: utdl.AssertStatusRange, Operator: utdl.OpEq, Value: "4xx"}
		if c.ExpectedStatus > 0 {
			assertion = utdl.Assertion{Type: utdl.AssertStatusCode, Operator: utdl.OpEq, Value: c.ExpectedStatus}
		}

		steps = append(steps, utdl.Step{
			ID:          fmt.Sprintf("neg-%03d", i+1),
			Action:      utdl.ActionHTTPRequest,
			Description: "Negative: " + c.Description,
			Params: map[string]interface{}{
				"method":  c.Method,
				"path":    c.Path,
				"headers": map[string]interface{}{"Content-Type": "application/json"},
				"body":    body,
			},
			Assertions: []utdl.Assertion{assertion},
		})
	}
	return steps
}

func mutatesBody(method string) bool {
	switch method {
	case "POST", "PUT", "PATCH":
		return true
	}
	return false
}

func expectedStatusFor(caseType string) int {
	switch caseType {
	case CaseInvalidFormat:
		return 422
	case CaseEnumViolation:
		return 0
	default:
		return 400
	}
}

// schemaField is one leaf (or array/object node) of a body schema.
type schemaField struct {
	Path     string
	Type     string
	Format   string
	Required bool

	MinLength, MaxLength *float64
	Minimum, Maximum     *float64
	ExclusiveMin         bool
	ExclusiveMax         bool
	MinItems, MaxItems   *float64
	Enum                 []interface{}
	Nullable             bool
}

func requiredSet(schema map[string]interface{}) map[string]bool {
	out := map[string]bool{}
	if req, ok := schema["required"].([]interface{}); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				out[s] = true
			}
		}
	}
	return out
}

// extractSchemaFields flattens nested objects with dotted paths; array item
// fields get a "[]" suffix on the array segment.
func extractSchemaFields(schema map[string]interface{}, prefix string, required map[string]bool) []schemaField {
	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return nil
	}
	var fields []schemaField
	for name, raw := range props {
		prop, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		f := schemaField{
			Path:     path,
			Type:     stringAt(prop, "type"),
			Format:   stringAt(prop, "format"),
			Required: required[name],
			Nullable: boolAt(prop, "nullable"),
		}
		f.MinLength = numberAt(prop, "minLength")
		f.MaxLength = numberAt(prop, "maxLength")
		f.Minimum = numberAt(prop, "minimum")
		f.Maximum = numberAt(prop, "maximum")
		f.MinItems = numberAt(prop, "minItems")
		f.MaxItems = numberAt(prop, "maxItems")
		f.ExclusiveMin = exclusiveAt(prop, "exclusiveMinimum")
		f.ExclusiveMax = exclusiveAt(prop, "exclusiveMaximum")
		// 3.1 documents put the bound value on the exclusive keyword itself.
		if f.Minimum == nil && f.ExclusiveMin {
			f.Minimum = numberAt(prop, "exclusiveMinimum")
		}
		if f.Maximum == nil && f.ExclusiveMax {
			f.Maximum = numberAt(prop, "exclusiveMaximum")
		}
		if e, ok := prop["enum"].([]interface{}); ok {
			f.Enum = e
		}
		fields = append(fields, f)

		switch f.Type {
		case "object":
			fields = append(fields, extractSchemaFields(prop, path, requiredSet(prop))...)
		case "array":
			if items, ok := prop["items"].(map[string]interface{}); ok {
				fields = append(fields, extractSchemaFields(items, path+"[]", requiredSet(items))...)
			}
		}
	}
	return fields
}

type invalidCandidate struct {
	caseType    string
	value       interface{}
	description string
}

// invalidValuesFor enumerates mutations for one field, ordered so type
// confusion comes first.
func invalidValuesFor(f schemaField) []invalidCandidate {
	var out []invalidCandidate

	switch f.Type {
	case "string":
		out = append(out,
			invalidCandidate{CaseInvalidType, 12345, "numeric value in string field"},
			invalidCandidate{CaseInvalidType, true, "boolean value in string field"},
			invalidCandidate{CaseInvalidType, []interface{}{"array"}, "array value in string field"},
		)
		if f.MinLength != nil && *f.MinLength > 0 {
			out = append(out, invalidCandidate{CaseEmptyValue, "", "empty string below minLength"})
			if *f.MinLength > 1 {
				out = append(out, invalidCandidate{
					CaseLimitExceeded,
					strings.Repeat("x", int(*f.MinLength)-1),
					"string shorter than minLength",
				})
			}
		}
		if f.MaxLength != nil {
			out = append(out, invalidCandidate{
				CaseLimitExceeded,
				strings.Repeat("x", int(*f.MaxLength)+10),
				"string longer than maxLength",
			})
		}
		out = append(out, formatViolations(f.Format)...)
	case "integer":
		out = append(out,
			invalidCandidate{CaseInvalidType, "not_a_number", "string value in integer field"},
			invalidCandidate{CaseInvalidType, 3.14, "float value in integer field"},
			invalidCandidate{CaseInvalidType, true, "boolean value in integer field"},
		)
		out = append(out, boundViolations(f, 1)...)
	case "number":
		out = append(out,
			invalidCandidate{CaseInvalidType, "not_a_number", "string value in number field"},
			invalidCandidate{CaseInvalidType, true, "boolean value in number field"},
		)
		out = append(out, boundViolations(f, 0.1)...)
	case "boolean":
		out = append(out,
			invalidCandidate{CaseInvalidType, "true", "string value in boolean field"},
			invalidCandidate{CaseInvalidType, 1, "numeric value in boolean field"},
			invalidCandidate{CaseInvalidType, "yes", "yes/no literal in boolean field"},
		)
	case "array":
		out = append(out,
			invalidCandidate{CaseInvalidType, "not_an_array", "string value in array field"},
			invalidCandidate{CaseInvalidType, map[string]interface{}{}, "object value in array field"},
		)
		if f.MinItems != nil && *f.MinItems > 0 {
			out = append(out, invalidCandidate{CaseEmptyValue, []interface{}{}, "empty array below minItems"})
		}
		if f.MaxItems != nil {
			n := int(*f.MaxItems) + 1
			items := make([]interface{}, n)
			for i := range items {
				items[i] = i
			}
			out = append(out, invalidCandidate{CaseLimitExceeded, items, "array longer than maxItems"})
		}
	case "object":
		out = append(out,
			invalidCandidate{CaseInvalidType, "not_an_object", "string value in object field"},
			invalidCandidate{CaseInvalidType, []interface{}{"array"}, "array value in object field"},
		)
	}

	if len(f.Enum) > 0 {
		out = append(out, invalidCandidate{CaseEnumViolation, "__not_in_enum__", "value outside the enum"})
		if s, ok := f.Enum[0].(string); ok && s != "" && strings.ToUpper(s) != s {
			out = append(out, invalidCandidate{CaseEnumViolation, strings.ToUpper(s), "enum value with wrong case"})
		}
	}
	if !f.Nullable {
		out = append(out, invalidCandidate{CaseNullValue, nil, "null in non-nullable field"})
	}
	return out
}

func formatViolations(format string) []invalidCandidate {
	switch format {
	case "email":
		return []invalidCandidate{
			{CaseInvalidFormat, "not-an-email", "malformed email"},
			{CaseInvalidFormat, "@missing-local.com", "email without local part"},
			{CaseInvalidFormat, "missing-domain@", "email without domain"},
		}
	case "uuid":
		return []invalidCandidate{
			{CaseInvalidFormat, "not-a-uuid", "malformed uuid"},
			{CaseInvalidFormat, "12345", "numeric string as uuid"},
		}
	case "date":
		return []invalidCandidate{
			{CaseInvalidFormat, "not-a-date", "malformed date"},
			{CaseInvalidFormat, "2024-13-45", "out-of-range date"},
		}
	case "date-time":
		return []invalidCandidate{
			{CaseInvalidFormat, "not-a-datetime", "malformed datetime"},
			{CaseInvalidFormat, "2024-01-01", "date where datetime expected"},
		}
	case "uri":
		return []invalidCandidate{
			{CaseInvalidFormat, "not-a-uri", "malformed uri"},
			{CaseInvalidFormat, "ftp://", "truncated uri"},
		}
	}
	return nil
}

// boundViolations produces values just past the declared numeric bounds.
// Exclusive bounds are violated by the bound value itself.
func boundViolations(f schemaField, delta float64) []invalidCandidate {
	var out []invalidCandidate
	if f.Minimum != nil {
		v := *f.Minimum - delta
		desc := "value below minimum"
		if f.ExclusiveMin {
			v = *f.Minimum
			desc = "value equal to exclusive minimum"
		}
		out = append(out, invalidCandidate{CaseLimitExceeded, numeric(f.Type, v), desc})
	}
	if f.Maximum != nil {
		v := *f.Maximum + delta
		desc := "value above maximum"
		if f.ExclusiveMax {
			v = *f.Maximum
			desc = "value equal to exclusive maximum"
		}
		out = append(out, invalidCandidate{CaseLimitExceeded, numeric(f.Type, v), desc})
	}
	return out
}

func numeric(fieldType string, v float64) interface{} {
	if fieldType == "integer" {
		return int(v)
	}
	return v
}

// sampleBody builds a plausible valid body from a schema, preferring
// examples, defaults and enum members over synthetic values.
func sampleBody(schema map[string]interface{}) map[string]interface{} {
	props, ok := schema["properties"].(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(props))
	for name, raw := range props {
		prop, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		out[name] = sampleValue(prop)
	}
	return out
}

func sampleValue(prop map[string]interface{}) interface{} {
	if ex, ok := prop["example"]; ok {
		return ex
	}
	if def, ok := prop["default"]; ok {
		return def
	}
	if enum, ok := prop["enum"].([]interface{}); ok && len(enum) > 0 {
		return enum[0]
	}
	switch stringAt(prop, "type") {
	case "string":
		switch stringAt(prop, "format") {
		case "email":
			return "user@example.com"
		case "uuid":
			return "00000000-0000-0000-0000-000000000000"
		case "date":
			return "2024-01-01"
		case "date-time":
			return "2024-01-01T00:00:00Z"
		case "uri":
			return "https://example.com"
		}
		return "example"
	case "integer":
		if m := numberAt(prop, "minimum"); m != nil {
			return int(*m) + 1
		}
		return 1
	case "number":
		if m := numberAt(prop, "minimum"); m != nil {
			return *m + 1
		}
		return 1.5
	case "boolean":
		return true
	case "array":
		if items, ok := prop["items"].(map[string]interface{}); ok {
			return []interface{}{sampleValue(items)}
		}
		return []interface{}{}
	case "object":
		return sampleBody(prop)
	}
	return "example"
}

func cloneBody(body map[string]interface{}) map[string]interface{} {
	if body == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(body))
	for k, v := range body {
		switch t := v.(type) {
		case map[string]interface{}:
			out[k] = cloneBody(t)
		case []interface{}:
			items := make([]interface{}, len(t))
			for i, item := range t {
				if m, ok := item.(map[string]interface{}); ok {
					items[i] = cloneBody(m)
				} else {
					items[i] = item
				}
			}
			out[k] = items
		default:
			out[k] = v
		}
	}
	return out
}

// applyMutation sets or removes the dotted field path in place. Array
// segments carry a "[]" suffix and descend into the first element.
func applyMutation(body map[string]interface{}, fieldPath string, value interface{}) {
	segments := strings.Split(fieldPath, ".")
	current := body
	for i, seg := range segments {
		isArray := strings.HasSuffix(seg, "[]")
		key := strings.TrimSuffix(seg, "[]")
		last := i == len(segments)-1

		if last && !isArray {
			if value == OmitField {
				delete(current, key)
			} else {
				current[key] = value
			}
			return
		}

		next := current[key]
		if isArray {
			arr, ok := next.([]interface{})
			if !ok || len(arr) == 0 {
				return
			}
			if last {
				if value == OmitField {
					delete(current, key)
				} else {
					current[key] = value
				}
				return
			}
			m, ok := arr[0].(map[string]interface{})
			if !ok {
				return
			}
			current = m
			continue
		}
		m, ok := next.(map[string]interface{})
		if !ok {
			return
		}
		current = m
	}
}

func stringAt(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func boolAt(m map[string]interface{}, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func numberAt(m map[string]interface{}, key string) *float64 {
	if f, ok := m[key].(float64); ok {
		return &f
	}
	return nil
}

// exclusiveAt accepts both the 3.0 boolean and the 3.1 numeric form.
func exclusiveAt(m map[string]interface{}, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case float64:
		return true
	}
	return false
}
