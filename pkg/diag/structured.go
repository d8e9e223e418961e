package diag

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// StructuredError is a diagnostic with a stable code, a JSON pointer into
// the offending document, and an optional actionable suggestion. It is the
// only error shape surfaced to users; plain wrapped errors stay internal.
type StructuredError struct {
	// Code is the numeric code in the shared E-space.
	Code Code `json:"code"`

	// Message is the human-readable description.
	Message string `json:"message"`

	// Path is a JSON pointer into the plan document, e.g. "$.steps[2].id".
	Path string `json:"path,omitempty"`

	// Suggestion is an actionable hint, e.g. nearest matching step IDs.
	Suggestion string `json:"suggestion,omitempty"`

	// Context carries extra machine-readable fields.
	Context map[string]interface{} `json:"context,omitempty"`

	// Severity defaults to the code's severity when empty.
	Severity Severity `json:"severity"`

	// Err is the underlying cause, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.Path != "" {
		fmt.Fprintf(&b, " at %s", e.Path)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *StructuredError) Unwrap() error {
	return e.Err
}

// Is matches on code so errors.Is works against catalog sentinels.
func (e *StructuredError) Is(target error) bool {
	t, ok := target.(*StructuredError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// IsWarning reports whether the diagnostic is non-blocking.
func (e *StructuredError) IsWarning() bool {
	return e.Severity == SeverityWarning || e.Severity == SeverityInfo || e.Severity == SeverityHint
}

// WithPath sets the JSON pointer.
func (e *StructuredError) WithPath(path string) *StructuredError {
	e.Path = path
	return e
}

// WithSuggestion sets the suggestion text.
func (e *StructuredError) WithSuggestion(s string) *StructuredError {
	e.Suggestion = s
	return e
}

// WithSeverity overrides the code's default severity.
func (e *StructuredError) WithSeverity(s Severity) *StructuredError {
	e.Severity = s
	return e
}

// WithContext adds one context field.
func (e *StructuredError) WithContext(key string, value interface{}) *StructuredError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a StructuredError with the code's default severity.
func New(code Code, message string) *StructuredError {
	return &StructuredError{
		Code:     code,
		Message:  message,
		Severity: code.DefaultSeverity(),
	}
}

// Newf creates a StructuredError with a formatted message.
func Newf(code Code, format string, args ...interface{}) *StructuredError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a StructuredError around an underlying cause.
func Wrap(code Code, message string, err error) *StructuredError {
	se := New(code, message)
	se.Err = err
	return se
}

// AsStructured extracts a StructuredError from an error chain. When the
// chain carries none, the error is wrapped as an internal error so callers
// always get a typed envelope.
func AsStructured(err error) *StructuredError {
	var se *StructuredError
	if errors.As(err, &se) {
		return se
	}
	return Wrap(CodeInternalError, "unexpected internal error", err)
}

// CodeOf returns the code carried by err, or CodeInternalError.
func CodeOf(err error) Code {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeInternalError
}

// NewUnknownDependency builds the E1005 diagnostic for a depends_on entry
// that references no existing step, suggesting the closest known IDs.
func NewUnknownDependency(stepID, dep string, stepIndex int, known []string) *StructuredError {
	se := Newf(CodeUnknownDependency,
		"step %q depends on %q, which does not exist in the plan", stepID, dep).
		WithPath(fmt.Sprintf("$.steps[%d].depends_on", stepIndex)).
		WithContext("step_id", stepID).
		WithContext("dependency", dep)
	if matches := ClosestMatches(dep, known, 3); len(matches) > 0 {
		se = se.WithSuggestion("did you mean: " + strings.Join(matches, ", "))
	}
	return se
}

// NewCircularDependency builds the E1006 diagnostic carrying the cycle path.
func NewCircularDependency(cycle []string) *StructuredError {
	return Newf(CodeCircularDependency,
		"circular dependency detected: %s", strings.Join(cycle, " -> ")).
		WithPath("$.steps").
		WithContext("cycle", cycle).
		WithSuggestion("break the cycle by removing one of the depends_on entries")
}

// NewDuplicateStepID builds the E1013 diagnostic naming both occurrences.
func NewDuplicateStepID(id string, firstIndex, secondIndex int) *StructuredError {
	return Newf(CodeDuplicateStepID,
		"step ID %q is used by steps %d and %d", id, firstIndex, secondIndex).
		WithPath(fmt.Sprintf("$.steps[%d].id", secondIndex)).
		WithContext("step_id", id).
		WithSuggestion(fmt.Sprintf("rename one occurrence, e.g. %q", id+"_2"))
}

// NewSelfDependency builds the E1014 diagnostic.
func NewSelfDependency(stepID string, stepIndex int) *StructuredError {
	return Newf(CodeSelfDependency, "step %q depends on itself", stepID).
		WithPath(fmt.Sprintf("$.steps[%d].depends_on", stepIndex)).
		WithContext("step_id", stepID)
}

// ClosestMatches returns up to limit candidates ranked by edit distance,
// keeping only reasonably close ones.
func ClosestMatches(target string, candidates []string, limit int) []string {
	type scored struct {
		id   string
		dist int
	}
	maxDist := len(target)/2 + 1
	if maxDist < 2 {
		maxDist = 2
	}
	var ranked []scored
	for _, c := range candidates {
		if c == target {
			continue
		}
		d := levenshtein(strings.ToLower(target), strings.ToLower(c))
		if d <= maxDist {
			ranked = append(ranked, scored{c, d})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].dist < ranked[j].dist })
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]string, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.id)
	}
	return out
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = minInt(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
