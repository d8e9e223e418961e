package llm

import "context"

// Back-end names.
const (
	BackendOpenAI    = "openai"
	BackendXAI       = "xai"
	BackendAnthropic = "anthropic"
)

// DefaultModels maps each back-end to the model used when none is configured.
var DefaultModels = map[string]string{
	BackendOpenAI:    "gpt-4o",
	BackendXAI:       "grok-2-latest",
	BackendAnthropic: "claude-3-5-sonnet-20241022",
}

// BackendOrder is the fallback preference when the configured provider is
// unavailable.
var BackendOrder = []string{BackendOpenAI, BackendXAI, BackendAnthropic}

const xaiBaseURL = "https://api.x.ai/v1"

// API key environment variables per back-end.
var keyEnvVars = map[string]string{
	BackendOpenAI:    "OPENAI_API_KEY",
	BackendXAI:       "XAI_API_KEY",
	BackendAnthropic: "ANTHROPIC_API_KEY",
}

// Request is one completion call.
type Request struct {
	Prompt       string
	SystemPrompt string
	Temperature  float64
	// MaxTokens of 0 lets the back-end decide.
	MaxTokens int
	// Extra carries back-end specific knobs; unknown keys are ignored.
	Extra map[string]interface{}
}

// Response is the provider-agnostic completion result.
type Response struct {
	Text      string                 `json:"text"`
	Model     string                 `json:"model"`
	Provider  string                 `json:"provider"`
	Tokens    int                    `json:"tokens"`
	LatencyMs int64                  `json:"latency_ms"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Provider generates completions. Implementations are safe for concurrent
// use.
type Provider interface {
	// Name identifies the provider ("mock" or the active back-end).
	Name() string
	// Available reports whether the provider can serve calls right now.
	Available() bool
	// Generate runs one completion.
	Generate(ctx context.Context, req Request) (*Response, error)
}
