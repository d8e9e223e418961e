package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aqakit/brain/pkg/diag"
)

// Real multiplexes concrete back-ends in preference order. Each back-end
// sits behind its own circuit breaker; when fallback is enabled a failed
// call moves on to the next back-end, and the name of the last back-end
// that answered is remembered.
type Real struct {
	backends []backend
	breakers map[string]*gobreaker.CircuitBreaker
	fallback bool

	mu   sync.Mutex
	last string
}

// RealConfig selects and orders the back-ends.
type RealConfig struct {
	// Provider is the preferred back-end. Empty means the first configured
	// one in BackendOrder.
	Provider string
	// Model overrides the preferred back-end's default model.
	Model string
	// Fallback enables trying the remaining back-ends on failure.
	Fallback bool
}

// NewReal builds a real provider from the API keys present in the
// environment. At least one back-end must be configured.
func NewReal(cfg RealConfig) (*Real, error) {
	order := backendPreference(cfg.Provider)

	var backends []backend
	var missing []string
	for _, name := range order {
		key := os.Getenv(keyEnvVars[name])
		if key == "" {
			missing = append(missing, keyEnvVars[name])
			continue
		}
		model := DefaultModels[name]
		if name == cfg.Provider && cfg.Model != "" {
			model = cfg.Model
		}
		b, err := buildBackend(name, model, key)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}
	if len(backends) == 0 {
		return nil, diag.New(diag.CodeMissingAPIKey,
			"no LLM back-end configured; set one of "+strings.Join(missing, ", "))
	}

	breakers := make(map[string]*gobreaker.CircuitBreaker, len(backends))
	for _, b := range backends {
		breakers[b.name()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "llm-" + b.name(),
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
	}
	return &Real{backends: backends, breakers: breakers, fallback: cfg.Fallback}, nil
}

func buildBackend(name, model, key string) (backend, error) {
	switch name {
	case BackendOpenAI:
		return newOpenAIBackend(BackendOpenAI, model, "", key)
	case BackendXAI:
		return newOpenAIBackend(BackendXAI, model, xaiBaseURL, key)
	case BackendAnthropic:
		return newAnthropicBackend(model, key), nil
	}
	return nil, diag.Newf(diag.CodeMissingAPIKey, "unknown LLM back-end %q", name)
}

func backendPreference(preferred string) []string {
	if preferred == "" {
		return BackendOrder
	}
	order := []string{preferred}
	for _, name := range BackendOrder {
		if name != preferred {
			order = append(order, name)
		}
	}
	return order
}

// newRealFromBackends wires pre-built back-ends; tests use it to avoid
// network clients.
func newRealFromBackends(backends []backend, fallback bool) *Real {
	breakers := make(map[string]*gobreaker.CircuitBreaker, len(backends))
	for _, b := range backends {
		breakers[b.name()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "llm-" + b.name(),
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
	}
	return &Real{backends: backends, breakers: breakers, fallback: fallback}
}

// Name returns "real" until a call succeeds, then the last successful
// back-end.
func (r *Real) Name() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last != "" {
		return r.last
	}
	return "real"
}

// LastBackend returns the back-end that served the most recent successful
// call, or empty if none has yet.
func (r *Real) LastBackend() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Real) Available() bool { return len(r.backends) > 0 }

type backendResult struct {
	text   string
	tokens int
}

func (r *Real) Generate(ctx context.Context, req Request) (*Response, error) {
	var attempts []string
	for i, b := range r.backends {
		if i > 0 && !r.fallback {
			break
		}
		start := time.Now()
		out, err := r.breakers[b.name()].Execute(func() (interface{}, error) {
			text, tokens, err := b.generate(ctx, req)
			if err != nil {
				return nil, err
			}
			return backendResult{text: text, tokens: tokens}, nil
		})
		if err != nil {
			attempts = append(attempts, fmt.Sprintf("%s (%s): %v", b.name(), b.model(), err))
			continue
		}
		result := out.(backendResult)

		r.mu.Lock()
		r.last = b.name()
		r.mu.Unlock()

		return &Response{
			Text:      result.text,
			Model:     b.model(),
			Provider:  b.name(),
			Tokens:    result.tokens,
			LatencyMs: time.Since(start).Milliseconds(),
			Metadata:  map[string]interface{}{"attempts": len(attempts) + 1},
		}, nil
	}
	return nil, diag.New(diag.CodeLLMAPIError,
		"all LLM back-ends failed: "+strings.Join(attempts, "; "))
}
