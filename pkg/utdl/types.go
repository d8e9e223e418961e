package utdl

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SpecVersion is the only plan language version this control plane accepts.
const SpecVersion = "0.1"

// Step actions.
const (
	ActionHTTPRequest = "http_request"
	ActionWait        = "wait"
	// ActionSleep is tolerated as an alias of wait for older plans.
	ActionSleep = "sleep"
)

// Assertion types.
const (
	AssertStatusCode  = "status_code"
	AssertJSONBody    = "json_body"
	AssertHeader      = "header"
	AssertLatency     = "latency"
	AssertStatusRange = "status_range"
)

// Assertion operators.
const (
	OpEq       = "eq"
	OpNeq      = "neq"
	OpLt       = "lt"
	OpGt       = "gt"
	OpContains = "contains"
)

// Recovery strategies.
const (
	RecoveryRetry    = "retry"
	RecoveryFailFast = "fail_fast"
	RecoveryIgnore   = "ignore"
)

// Plan is the root of a UTDL document.
type Plan struct {
	SpecVersion string `json:"spec_version" validate:"required"`
	Meta        Meta   `json:"meta" validate:"required"`
	Config      Config `json:"config" validate:"required"`
	Steps       []Step `json:"steps"`
}

// Meta carries plan identity and provenance.
type Meta struct {
	ID          string    `json:"id,omitempty"`
	Name        string    `json:"name" validate:"required"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

// Config holds execution-wide settings.
type Config struct {
	BaseURL       string                 `json:"base_url" validate:"required,url"`
	TimeoutMs     int                    `json:"timeout_ms,omitempty" validate:"omitempty,gte=100"`
	GlobalHeaders map[string]string      `json:"global_headers,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
}

// Step is one executor action, chiefly an HTTP request.
type Step struct {
	ID             string                 `json:"id" validate:"required"`
	Action         string                 `json:"action" validate:"required"`
	Description    string                 `json:"description,omitempty"`
	DependsOn      []string               `json:"depends_on,omitempty"`
	Params         map[string]interface{} `json:"params,omitempty"`
	Assertions     []Assertion            `json:"assertions,omitempty"`
	Extract        []Extraction           `json:"extract,omitempty"`
	RecoveryPolicy *RecoveryPolicy        `json:"recovery_policy,omitempty"`
}

// Assertion checks one property of a step's response.
type Assertion struct {
	Type     string      `json:"type" validate:"required,oneof=status_code json_body header latency status_range"`
	Operator string      `json:"operator" validate:"required,oneof=eq neq lt gt contains"`
	Value    interface{} `json:"value"`
	// Path is a JSONPath for json_body or a header name for header.
	Path string `json:"path,omitempty"`
}

// Extraction captures a response value into a named variable.
type Extraction struct {
	Source string `json:"source" validate:"required,oneof=body header"`
	Path   string `json:"path" validate:"required"`
	Target string `json:"target" validate:"required"`
}

// RecoveryPolicy controls step retry behavior on transient failures.
type RecoveryPolicy struct {
	Strategy      string  `json:"strategy,omitempty" validate:"omitempty,oneof=retry fail_fast ignore"`
	MaxAttempts   int     `json:"max_attempts,omitempty" validate:"omitempty,gte=1,lte=10"`
	BackoffMs     int     `json:"backoff_ms,omitempty" validate:"omitempty,gte=0"`
	BackoffFactor float64 `json:"backoff_factor,omitempty" validate:"omitempty,gte=1"`
}

// Defaults.
const (
	DefaultTimeoutMs     = 5000
	DefaultMaxAttempts   = 3
	DefaultBackoffMs     = 500
	DefaultBackoffFactor = 2.0
)

// NewPlan returns a plan skeleton with identity and defaults filled in.
func NewPlan(name, baseURL string) *Plan {
	p := &Plan{
		SpecVersion: SpecVersion,
		Meta: Meta{
			ID:        uuid.NewString(),
			Name:      name,
			CreatedAt: time.Now().UTC(),
		},
		Config: Config{
			BaseURL:   baseURL,
			TimeoutMs: DefaultTimeoutMs,
		},
	}
	return p
}

// ApplyDefaults fills generated identity and default values in place. It is
// idempotent and never overwrites caller-supplied values.
func (p *Plan) ApplyDefaults() {
	if p.SpecVersion == "" {
		p.SpecVersion = SpecVersion
	}
	if p.Meta.ID == "" {
		p.Meta.ID = uuid.NewString()
	}
	if p.Meta.CreatedAt.IsZero() {
		p.Meta.CreatedAt = time.Now().UTC()
	}
	if p.Config.TimeoutMs == 0 {
		p.Config.TimeoutMs = DefaultTimeoutMs
	}
	for i := range p.Steps {
		p.Steps[i].ID = strings.TrimSpace(p.Steps[i].ID)
		if rp := p.Steps[i].RecoveryPolicy; rp != nil {
			if rp.Strategy == "" {
				rp.Strategy = RecoveryFailFast
			}
			if rp.MaxAttempts == 0 {
				rp.MaxAttempts = DefaultMaxAttempts
			}
			if rp.BackoffMs == 0 {
				rp.BackoffMs = DefaultBackoffMs
			}
			if rp.BackoffFactor == 0 {
				rp.BackoffFactor = DefaultBackoffFactor
			}
		}
	}
}

// StepIDs returns the IDs of all steps in declared order.
func (p *Plan) StepIDs() []string {
	ids := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		ids[i] = s.ID
	}
	return ids
}

// Stats summarizes a plan for display and API responses.
type Stats struct {
	Steps       int `json:"steps"`
	Assertions  int `json:"assertions"`
	Extractions int `json:"extractions"`
}

// Stats counts steps, assertions and extractions.
func (p *Plan) Stats() Stats {
	st := Stats{Steps: len(p.Steps)}
	for _, s := range p.Steps {
		st.Assertions += len(s.Assertions)
		st.Extractions += len(s.Extract)
	}
	return st
}

// MarshalCanonical renders the plan as indented JSON, the form persisted by
// the cache, version store, and handed to the executor.
func (p *Plan) MarshalCanonical() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// Clone deep-copies the plan through its JSON form. Version store writes
// rely on this so stored payloads never alias caller memory.
func (p *Plan) Clone() (*Plan, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var out Plan
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetryBudget sums max_attempts over all steps, counting steps without a
// recovery policy as a single attempt.
func (p *Plan) RetryBudget() int {
	total := 0
	for _, s := range p.Steps {
		if s.RecoveryPolicy != nil && s.RecoveryPolicy.MaxAttempts > 0 {
			total += s.RecoveryPolicy.MaxAttempts
		} else {
			total++
		}
	}
	return total
}

// EstimatedWorstCaseMs estimates the worst-case serial execution time:
// per-step timeout times attempts, summed over the plan.
func (p *Plan) EstimatedWorstCaseMs() int64 {
	timeout := p.Config.TimeoutMs
	if timeout == 0 {
		timeout = DefaultTimeoutMs
	}
	var total int64
	for _, s := range p.Steps {
		attempts := 1
		if s.RecoveryPolicy != nil && s.RecoveryPolicy.MaxAttempts > 0 {
			attempts = s.RecoveryPolicy.MaxAttempts
		}
		total += int64(timeout) * int64(attempts)
	}
	return total
}
