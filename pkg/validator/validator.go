package validator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	playground "github.com/go-playground/validator/v10"

	"github.com/aqakit/brain/pkg/diag"
	"github.com/aqakit/brain/pkg/utdl"
)

// Mode selects the strictness of validation.
type Mode string

const (
	// ModeDefault blocks on errors and surfaces warnings.
	ModeDefault Mode = "default"

	// ModeStrict promotes every warning to an error.
	ModeStrict Mode = "strict"

	// ModeLenient demotes unknown dependencies, non-standard actions and
	// empty plans to warnings.
	ModeLenient Mode = "lenient"
)

// ParseMode maps a string to a Mode, defaulting to ModeDefault.
func ParseMode(s string) Mode {
	switch strings.ToLower(s) {
	case string(ModeStrict):
		return ModeStrict
	case string(ModeLenient):
		return ModeLenient
	default:
		return ModeDefault
	}
}

// Result is the outcome of validating one plan.
type Result struct {
	OK       bool                    `json:"ok"`
	Plan     *utdl.Plan              `json:"-"`
	Errors   []*diag.StructuredError `json:"errors"`
	Warnings []*diag.StructuredError `json:"warnings"`
	Stats    utdl.Stats              `json:"stats"`
}

// ErrorStrings renders the errors as plain messages.
func (r *Result) ErrorStrings() []string {
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.Error()
	}
	return out
}

// Validator checks UTDL plans against structural and semantic rules.
type Validator struct {
	mode   Mode
	limits diag.Limits
	check  *playground.Validate
}

// Option configures a Validator.
type Option func(*Validator)

// WithMode sets the strictness mode.
func WithMode(m Mode) Option {
	return func(v *Validator) { v.mode = m }
}

// WithLimits overrides the executor limits.
func WithLimits(l diag.Limits) Option {
	return func(v *Validator) { v.limits = l }
}

// New creates a Validator with default mode and env-derived limits.
func New(opts ...Option) *Validator {
	v := &Validator{
		mode:   ModeDefault,
		limits: diag.LimitsFromEnv(),
		check:  playground.New(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

var knownActions = map[string]bool{
	utdl.ActionHTTPRequest: true,
	utdl.ActionWait:        true,
	utdl.ActionSleep:       true,
}

var planRootKeys = map[string]bool{
	"spec_version": true,
	"meta":         true,
	"config":       true,
	"steps":        true,
}

// ValidateJSON parses text as JSON and validates the resulting plan. Strict
// mode rejects top-level keys outside the plan schema; the other modes
// ignore them.
func (v *Validator) ValidateJSON(text string) *Result {
	var plan utdl.Plan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return &Result{
			OK: false,
			Errors: []*diag.StructuredError{
				diag.Wrap(diag.CodeInvalidJSON, "plan is not valid JSON", err),
			},
		}
	}
	res := v.Validate(&plan)
	if v.mode == ModeStrict {
		for _, key := range unknownRootKeys(text) {
			res.Errors = append(res.Errors, diag.Newf(diag.CodeInvalidJSON,
				"unknown top-level key %q", key).
				WithPath("$."+key).
				WithSuggestion("allowed top-level keys are spec_version, meta, config and steps"))
		}
		if len(res.Errors) > 0 {
			res.OK = false
		}
	}
	return res
}

func unknownRootKeys(text string) []string {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil
	}
	var extra []string
	for key := range raw {
		if !planRootKeys[key] {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	return extra
}

// Validate runs the full pipeline over a decoded plan. The plan is not
// mutated beyond default application; on success Result.Plan carries it.
func (v *Validator) Validate(plan *utdl.Plan) *Result {
	plan.ApplyDefaults()

	var errs, warns []*diag.StructuredError
	add := func(e *diag.StructuredError) {
		if e.IsWarning() {
			warns = append(warns, e)
		} else {
			errs = append(errs, e)
		}
	}

	// Field-level shape constraints.
	for _, e := range v.shapeErrors(plan) {
		add(e)
	}

	// Spec version gate.
	if plan.SpecVersion != utdl.SpecVersion {
		add(diag.Newf(diag.CodeUnsupportedSpecVersion,
			"spec_version %q is not supported, expected %q", plan.SpecVersion, utdl.SpecVersion).
			WithPath("$.spec_version"))
	}

	// Step ID uniqueness and emptiness.
	firstIndex := make(map[string]int, len(plan.Steps))
	for i, s := range plan.Steps {
		if s.ID == "" {
			add(diag.New(diag.CodeEmptyStepID, "step ID is empty or whitespace").
				WithPath(fmt.Sprintf("$.steps[%d].id", i)))
			continue
		}
		if prev, dup := firstIndex[s.ID]; dup {
			add(diag.NewDuplicateStepID(s.ID, prev, i))
		} else {
			firstIndex[s.ID] = i
		}
	}

	// Dependency integrity.
	ids := plan.StepIDs()
	for i, s := range plan.Steps {
		for _, dep := range s.DependsOn {
			if dep == s.ID {
				add(diag.NewSelfDependency(s.ID, i))
				continue
			}
			if _, ok := firstIndex[dep]; !ok {
				e := diag.NewUnknownDependency(s.ID, dep, i, ids)
				if v.mode == ModeLenient {
					e = e.WithSeverity(diag.SeverityWarning)
				}
				add(e)
			}
		}
	}

	// Cycle detection.
	graph := buildDepGraph(plan.Steps)
	if cycle := graph.findCycle(); cycle != nil {
		add(diag.NewCircularDependency(cycle))
	}

	// Per-step action and param sanity.
	for i, s := range plan.Steps {
		v.checkStep(i, &s, add)
	}

	// Executor limits.
	v.checkLimits(plan, graph, add)

	// Empty plan.
	if len(plan.Steps) == 0 {
		e := diag.New(diag.CodeEmptyPlan, "plan has no steps")
		if v.mode == ModeLenient {
			e = e.WithSeverity(diag.SeverityWarning)
		}
		add(e)
	}

	if v.mode == ModeStrict {
		for _, w := range warns {
			errs = append(errs, w.WithSeverity(diag.SeverityError))
		}
		warns = nil
	}

	res := &Result{
		OK:       len(errs) == 0,
		Errors:   errs,
		Warnings: warns,
		Stats:    plan.Stats(),
	}
	if res.OK {
		res.Plan = plan
	}
	return res
}

// shapeErrors maps struct-tag violations to structured diagnostics keyed by
// JSON pointer.
func (v *Validator) shapeErrors(plan *utdl.Plan) []*diag.StructuredError {
	err := v.check.Struct(plan)
	if err == nil {
		return nil
	}
	verrs, ok := err.(playground.ValidationErrors)
	if !ok {
		return []*diag.StructuredError{diag.Wrap(diag.CodeInternalError, "shape validation failed", err)}
	}
	out := make([]*diag.StructuredError, 0, len(verrs))
	for _, fe := range verrs {
		code := diag.CodeMissingRequiredField
		msg := fmt.Sprintf("field %s failed constraint %q", fe.Field(), fe.Tag())
		switch fe.Tag() {
		case "required":
			msg = fmt.Sprintf("required field %s is missing", fe.Field())
		case "oneof":
			code = diag.CodeInvalidAssertionType
			msg = fmt.Sprintf("field %s has value %v, allowed: %s", fe.Field(), fe.Value(), fe.Param())
		case "url":
			code = diag.CodeMissingBaseURL
			msg = fmt.Sprintf("field %s must be an absolute URL, got %v", fe.Field(), fe.Value())
		}
		out = append(out, diag.New(code, msg).WithPath(namespaceToPointer(fe.Namespace())))
	}
	return out
}

// checkStep validates a single step's action, params and assertions.
func (v *Validator) checkStep(i int, s *utdl.Step, add func(*diag.StructuredError)) {
	if s.Action != "" && !knownActions[s.Action] {
		add(diag.Newf(diag.CodeUnknownAction,
			"step %q uses non-standard action %q", s.ID, s.Action).
			WithPath(fmt.Sprintf("$.steps[%d].action", i)).
			WithSuggestion("standard actions: http_request, wait"))
	}

	if s.Action == utdl.ActionHTTPRequest {
		method, _ := s.Params["method"].(string)
		if method == "" {
			add(diag.Newf(diag.CodeMissingRequiredField,
				"step %q is an http_request without params.method", s.ID).
				WithPath(fmt.Sprintf("$.steps[%d].params.method", i)))
		} else if !validMethods[strings.ToUpper(method)] {
			add(diag.Newf(diag.CodeInvalidHTTPMethod,
				"step %q uses invalid HTTP method %q", s.ID, method).
				WithPath(fmt.Sprintf("$.steps[%d].params.method", i)))
		}
		if _, ok := s.Params["path"]; !ok {
			if _, ok := s.Params["url"]; !ok {
				add(diag.Newf(diag.CodeMissingRequiredField,
					"step %q is an http_request without params.path", s.ID).
					WithPath(fmt.Sprintf("$.steps[%d].params.path", i)))
			}
		}
	}

	for j, a := range s.Assertions {
		switch a.Type {
		case utdl.AssertJSONBody, utdl.AssertHeader:
			if a.Path == "" {
				add(diag.Newf(diag.CodeMissingAssertionField,
					"assertion of type %q requires a path", a.Type).
					WithPath(fmt.Sprintf("$.steps[%d].assertions[%d].path", i, j)))
			}
		}
		if a.Type == utdl.AssertJSONBody && a.Path != "" && !strings.HasPrefix(a.Path, "$") {
			add(diag.Newf(diag.CodeInvalidJSONPath,
				"assertion path %q is not a JSONPath expression", a.Path).
				WithPath(fmt.Sprintf("$.steps[%d].assertions[%d].path", i, j)).
				WithSuggestion("JSONPath expressions start with $, e.g. $.data.id"))
		}
	}

	for j, e := range s.Extract {
		if e.Source == "body" && e.Path != "" && !strings.HasPrefix(e.Path, "$") {
			add(diag.Newf(diag.CodeInvalidJSONPath,
				"extraction path %q is not a JSONPath expression", e.Path).
				WithPath(fmt.Sprintf("$.steps[%d].extract[%d].path", i, j)).
				WithSuggestion("JSONPath expressions start with $, e.g. $.token"))
		}
	}
}

// checkLimits compares the plan against executor bounds. Hard bounds
// (step count, retry budget, per-step timeout) are errors; estimates
// (parallelism, worst-case wall clock) are warnings.
func (v *Validator) checkLimits(plan *utdl.Plan, graph *depGraph, add func(*diag.StructuredError)) {
	if n := len(plan.Steps); n > v.limits.MaxSteps {
		add(diag.Newf(diag.CodeMaxStepsExceeded,
			"plan has %d steps, executor limit is %d", n, v.limits.MaxSteps).
			WithPath("$.steps"))
	}
	if budget := plan.RetryBudget(); budget > v.limits.MaxRetriesTotal {
		add(diag.Newf(diag.CodeMaxRetriesExceeded,
			"total retry budget %d exceeds executor limit %d", budget, v.limits.MaxRetriesTotal).
			WithPath("$.steps"))
	}
	if plan.Config.TimeoutMs > v.limits.MaxStepTimeoutSecs*1000 {
		add(diag.Newf(diag.CodeExecutionTimeoutExceeded,
			"timeout_ms %d exceeds per-step limit of %ds", plan.Config.TimeoutMs, v.limits.MaxStepTimeoutSecs).
			WithPath("$.config.timeout_ms"))
	}
	if roots := graph.rootCount(); roots > v.limits.MaxParallel {
		add(diag.Newf(diag.CodePlanExceedsMaxParallel,
			"%d steps have no dependencies and may run in parallel, limit is %d", roots, v.limits.MaxParallel).
			WithPath("$.steps").
			WithSeverity(diag.SeverityWarning))
	}
	if est := plan.EstimatedWorstCaseMs(); est > int64(v.limits.MaxExecutionSecs)*1000 {
		add(diag.Newf(diag.CodePlanExceedsTimeout,
			"estimated worst-case execution of %dms exceeds the %ds budget", est, v.limits.MaxExecutionSecs).
			WithPath("$.steps").
			WithSeverity(diag.SeverityWarning))
	}
}

// namespaceToPointer converts a validator namespace like
// "Plan.Steps[2].Assertions[0].Type" into "$.steps[2].assertions[0].type".
func namespaceToPointer(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 0 && parts[0] == "Plan" {
		parts = parts[1:]
	}
	for i, p := range parts {
		idx := ""
		if b := strings.IndexByte(p, '['); b >= 0 {
			idx = p[b:]
			p = p[:b]
		}
		parts[i] = fieldToJSON(p) + idx
	}
	return "$." + strings.Join(parts, ".")
}

var fieldJSONNames = map[string]string{
	"SpecVersion":    "spec_version",
	"Meta":           "meta",
	"Config":         "config",
	"Steps":          "steps",
	"ID":             "id",
	"Name":           "name",
	"Description":    "description",
	"Tags":           "tags",
	"CreatedAt":      "created_at",
	"BaseURL":        "base_url",
	"TimeoutMs":      "timeout_ms",
	"GlobalHeaders":  "global_headers",
	"Variables":      "variables",
	"Action":         "action",
	"DependsOn":      "depends_on",
	"Params":         "params",
	"Assertions":     "assertions",
	"Extract":        "extract",
	"RecoveryPolicy": "recovery_policy",
	"Type":           "type",
	"Operator":       "operator",
	"Value":          "value",
	"Path":           "path",
	"Source":         "source",
	"Target":         "target",
	"Strategy":       "strategy",
	"MaxAttempts":    "max_attempts",
	"BackoffMs":      "backoff_ms",
	"BackoffFactor":  "backoff_factor",
}

func fieldToJSON(name string) string {
	if j, ok := fieldJSONNames[name]; ok {
		return j
	}
	return strings.ToLower(name)
}
