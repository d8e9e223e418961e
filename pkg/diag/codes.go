package diag

import "fmt"

// Category groups error codes by their thousands digit.
type Category int

const (
	CategoryValidation    Category = 1
	CategoryHTTP          Category = 2
	CategoryAssertion     Category = 3
	CategoryConfiguration Category = 4
	CategoryInternal      Category = 5
	CategoryGeneration    Category = 6
)

// String returns a human-readable category name.
func (c Category) String() string {
	switch c {
	case CategoryValidation:
		return "validation"
	case CategoryHTTP:
		return "http"
	case CategoryAssertion:
		return "assertion"
	case CategoryConfiguration:
		return "configuration"
	case CategoryInternal:
		return "internal"
	case CategoryGeneration:
		return "generation"
	default:
		return "unknown"
	}
}

// Severity classifies how a diagnostic should be treated by callers.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityHint    Severity = "hint"
)

// Code is a numeric diagnostic code in the shared E-space.
type Code int

// Validation and parsing codes (E1xxx).
const (
	CodeEmptyPlan                Code = 1001
	CodeUnsupportedSpecVersion   Code = 1002
	CodeUnknownAction            Code = 1003
	CodeMissingRequiredField     Code = 1004
	CodeUnknownDependency        Code = 1005
	CodeCircularDependency       Code = 1006
	CodeInvalidHTTPMethod        Code = 1007
	CodeEmptyStepID              Code = 1008
	CodeInvalidJSON              Code = 1009
	CodeMaxStepsExceeded         Code = 1010
	CodeMaxRetriesExceeded       Code = 1011
	CodeExecutionTimeoutExceeded Code = 1012
	CodeDuplicateStepID          Code = 1013
	CodeSelfDependency           Code = 1014
	CodeInvalidAssertionType     Code = 1015
	CodeMissingAssertionField    Code = 1016
	CodeInvalidRegex             Code = 1017
	CodeInvalidJSONPath          Code = 1018
)

// Configuration and environment codes (E4xxx).
const (
	CodeMissingBaseURL Code = 4001
	CodeRunnerNotFound Code = 4002
	CodeInvalidSwagger Code = 4003
	CodeLLMAPIError    Code = 4004
	CodeMissingAPIKey  Code = 4005
)

// Internal codes (E5xxx).
const (
	CodeInternalError    Code = 5001
	CodeExecutionTimeout Code = 5002
	CodeCacheError       Code = 5003
)

// Control-plane codes (E6xxx).
const (
	CodePlanExceedsMaxSteps    Code = 6001
	CodePlanExceedsMaxParallel Code = 6002
	CodePlanExceedsMaxRetries  Code = 6003
	CodePlanExceedsTimeout     Code = 6004
	CodeNormalizationFailed    Code = 6005
	CodeGenerationFailed       Code = 6006
	CodeVersionNotFound        Code = 6007
)

// Category returns the category derived from the thousands digit.
func (c Code) Category() Category {
	cat := Category(int(c) / 1000)
	if cat < CategoryValidation || cat > CategoryGeneration {
		return CategoryInternal
	}
	return cat
}

// String renders the code in the wire format, e.g. "E1006".
func (c Code) String() string {
	return fmt.Sprintf("E%04d", int(c))
}

// Name returns the stable symbolic name for a code, or "UNKNOWN".
func (c Code) Name() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "UNKNOWN"
}

// DefaultSeverity returns the severity a code carries unless overridden.
// Only UNKNOWN_ACTION defaults to a warning.
func (c Code) DefaultSeverity() Severity {
	if c == CodeUnknownAction {
		return SeverityWarning
	}
	return SeverityError
}

var codeNames = map[Code]string{
	CodeEmptyPlan:                "EMPTY_PLAN",
	CodeUnsupportedSpecVersion:   "UNSUPPORTED_SPEC_VERSION",
	CodeUnknownAction:            "UNKNOWN_ACTION",
	CodeMissingRequiredField:     "MISSING_REQUIRED_FIELD",
	CodeUnknownDependency:        "UNKNOWN_DEPENDENCY",
	CodeCircularDependency:       "CIRCULAR_DEPENDENCY",
	CodeInvalidHTTPMethod:        "INVALID_HTTP_METHOD",
	CodeEmptyStepID:              "EMPTY_STEP_ID",
	CodeInvalidJSON:              "INVALID_JSON",
	CodeMaxStepsExceeded:         "MAX_STEPS_EXCEEDED",
	CodeMaxRetriesExceeded:       "MAX_RETRIES_EXCEEDED",
	CodeExecutionTimeoutExceeded: "EXECUTION_TIMEOUT_EXCEEDED",
	CodeDuplicateStepID:          "DUPLICATE_STEP_ID",
	CodeSelfDependency:           "SELF_DEPENDENCY",
	CodeInvalidAssertionType:     "INVALID_ASSERTION_TYPE",
	CodeMissingAssertionField:    "MISSING_ASSERTION_FIELD",
	CodeInvalidRegex:             "INVALID_REGEX",
	CodeInvalidJSONPath:          "INVALID_JSONPATH",
	CodeMissingBaseURL:           "MISSING_BASE_URL",
	CodeRunnerNotFound:           "RUNNER_NOT_FOUND",
	CodeInvalidSwagger:           "INVALID_SWAGGER",
	CodeLLMAPIError:              "LLM_API_ERROR",
	CodeMissingAPIKey:            "MISSING_API_KEY",
	CodeInternalError:            "INTERNAL_ERROR",
	CodeExecutionTimeout:         "EXECUTION_TIMEOUT",
	CodeCacheError:               "CACHE_ERROR",
	CodePlanExceedsMaxSteps:      "PLAN_EXCEEDS_MAX_STEPS",
	CodePlanExceedsMaxParallel:   "PLAN_EXCEEDS_MAX_PARALLEL",
	CodePlanExceedsMaxRetries:    "PLAN_EXCEEDS_MAX_RETRIES",
	CodePlanExceedsTimeout:       "PLAN_EXCEEDS_TIMEOUT",
	CodeNormalizationFailed:      "NORMALIZATION_FAILED",
	CodeGenerationFailed:         "GENERATION_FAILED",
	CodeVersionNotFound:          "VERSION_NOT_FOUND",
}
