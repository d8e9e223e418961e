package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/aqakit/brain/pkg/diag"
)

// ParseOptions controls document validation.
type ParseOptions struct {
	// Validate runs the full OpenAPI validator and records its findings.
	Validate bool
	// Strict turns validation findings into a hard error.
	Strict bool
}

// Methods flattened from the document, in presentation order.
var flattenMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH"}

var fetchClient = &http.Client{Timeout: 30 * time.Second}

// Parse loads an OpenAPI document from a local path or an HTTP(S) URL.
func Parse(ctx context.Context, source string, opts ParseOptions) (*Spec, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return parseURL(ctx, source, opts)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, diag.Wrap(diag.CodeInvalidSwagger, fmt.Sprintf("cannot read spec file %s", source), err)
	}
	return ParseBytes(ctx, data, opts)
}

// ParseDocument flattens an already-decoded OpenAPI document.
func ParseDocument(ctx context.Context, doc map[string]interface{}, opts ParseOptions) (*Spec, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, diag.Wrap(diag.CodeInvalidSwagger, "cannot re-encode spec document", err)
	}
	return ParseBytes(ctx, raw, opts)
}

func parseURL(ctx context.Context, source string, opts ParseOptions) (*Spec, error) {
	if _, err := url.Parse(source); err != nil {
		return nil, diag.Wrap(diag.CodeInvalidSwagger, "invalid spec URL", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, diag.Wrap(diag.CodeInvalidSwagger, "cannot build spec request", err)
	}
	resp, err := fetchClient.Do(req)
	if err != nil {
		return nil, diag.Wrap(diag.CodeInvalidSwagger, "failed to fetch spec", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, diag.Newf(diag.CodeInvalidSwagger, "spec fetch returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, diag.Wrap(diag.CodeInvalidSwagger, "failed to read spec body", err)
	}
	return ParseBytes(ctx, data, opts)
}

// ParseBytes parses raw JSON or YAML spec content, accepting both Swagger 2.0
// and OpenAPI 3.x documents.
func ParseBytes(ctx context.Context, data []byte, opts ParseOptions) (*Spec, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, diag.New(diag.CodeInvalidSwagger, "spec document is empty")
	}

	var generic map[string]interface{}
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, diag.Wrap(diag.CodeInvalidSwagger, "spec is neither valid JSON nor YAML", err)
	}

	doc, err := loadDocument(ctx, data, generic)
	if err != nil {
		return nil, err
	}

	spec := flatten(doc)
	spec.Validation = validateDocument(ctx, doc, generic, opts)
	if opts.Strict && !spec.Validation.Valid {
		return nil, diag.New(diag.CodeInvalidSwagger,
			"spec failed strict validation: "+strings.Join(spec.Validation.Errors, "; "))
	}
	return spec, nil
}

func loadDocument(ctx context.Context, data []byte, generic map[string]interface{}) (*openapi3.T, error) {
	if _, isV2 := generic["swagger"]; isV2 {
		raw, err := json.Marshal(generic)
		if err != nil {
			return nil, diag.Wrap(diag.CodeInvalidSwagger, "cannot normalize Swagger 2.0 document", err)
		}
		var v2 openapi2.T
		if err := json.Unmarshal(raw, &v2); err != nil {
			return nil, diag.Wrap(diag.CodeInvalidSwagger, "invalid Swagger 2.0 document", err)
		}
		doc, err := openapi2conv.ToV3(&v2)
		if err != nil {
			return nil, diag.Wrap(diag.CodeInvalidSwagger, "cannot convert Swagger 2.0 to OpenAPI 3", err)
		}
		return doc, nil
	}

	loader := &openapi3.Loader{Context: ctx, IsExternalRefsAllowed: true}
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, diag.Wrap(diag.CodeInvalidSwagger, "invalid OpenAPI document", err)
	}
	return doc, nil
}

func validateDocument(ctx context.Context, doc *openapi3.T, generic map[string]interface{}, opts ParseOptions) Validation {
	v := Validation{Valid: true}

	if _, ok := generic["openapi"]; !ok {
		if _, ok := generic["swagger"]; !ok {
			v.Errors = append(v.Errors, "missing openapi/swagger version field")
		}
	}
	if _, ok := generic["info"]; !ok {
		v.Warnings = append(v.Warnings, "missing info section")
	}
	if _, ok := generic["paths"]; !ok {
		v.Warnings = append(v.Warnings, "missing paths section")
	}

	if opts.Validate {
		if err := doc.Validate(ctx); err != nil {
			v.Errors = append(v.Errors, err.Error())
		}
	}
	v.Valid = len(v.Errors) == 0
	return v
}

func flatten(doc *openapi3.T) *Spec {
	spec := &Spec{Title: "API"}
	if doc.Info != nil && doc.Info.Title != "" {
		spec.Title = doc.Info.Title
	}
	if len(doc.Servers) > 0 {
		spec.BaseURL = doc.Servers[0].URL
	}
	spec.Security = detectSecurity(doc)

	if doc.Paths == nil {
		return spec
	}
	paths := make([]string, 0, doc.Paths.Len())
	for p := range doc.Paths.Map() {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		item := doc.Paths.Value(path)
		if item == nil {
			continue
		}
		ops := item.Operations()
		for _, method := range flattenMethods {
			op, ok := ops[method]
			if !ok || op == nil {
				continue
			}
			spec.Endpoints = append(spec.Endpoints, flattenOperation(path, method, item, op))
		}
	}
	return spec
}

func flattenOperation(path, method string, item *openapi3.PathItem, op *openapi3.Operation) Endpoint {
	ep := Endpoint{
		Path:        path,
		Method:      method,
		Summary:     op.Summary,
		Description: op.Description,
	}

	for _, ref := range append(append(openapi3.Parameters{}, item.Parameters...), op.Parameters...) {
		if ref == nil || ref.Value == nil {
			continue
		}
		p := ref.Value
		ep.Parameters = append(ep.Parameters, Parameter{
			Name:     p.Name,
			In:       p.In,
			Required: p.Required,
			Type:     schemaType(schemaOf(p.Schema)),
		})
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		if mt := op.RequestBody.Value.Content.Get("application/json"); mt != nil {
			ep.RequestBody = &RequestBody{
				Required: op.RequestBody.Value.Required,
				Schema:   schemaToMap(schemaOf(mt.Schema)),
			}
		}
	}

	if op.Responses != nil {
		ep.Responses = make(map[string]ResponseInfo, op.Responses.Len())
		for code, ref := range op.Responses.Map() {
			info := ResponseInfo{}
			if ref != nil && ref.Value != nil && ref.Value.Description != nil {
				info.Description = *ref.Value.Description
			}
			ep.Responses[code] = info
		}
	}
	return ep
}

func schemaOf(ref *openapi3.SchemaRef) *openapi3.Schema {
	if ref == nil {
		return nil
	}
	return ref.Value
}

func schemaType(s *openapi3.Schema) string {
	if s == nil || s.Type == nil {
		return ""
	}
	if ts := s.Type.Slice(); len(ts) > 0 {
		return ts[0]
	}
	return ""
}

// schemaToMap renders a schema in its generic JSON form so derivation code
// stays independent of the parser's types.
func schemaToMap(s *openapi3.Schema) map[string]interface{} {
	if s == nil {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
