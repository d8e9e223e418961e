package generator

import (
	"context"
	"strings"
	"time"

	"github.com/aqakit/brain/pkg/adapter"
	"github.com/aqakit/brain/pkg/cache"
	"github.com/aqakit/brain/pkg/diag"
	"github.com/aqakit/brain/pkg/llm"
	"github.com/aqakit/brain/pkg/telemetry"
	"github.com/aqakit/brain/pkg/utdl"
	"github.com/aqakit/brain/pkg/validator"
)

const (
	// DefaultMaxAttempts bounds the correction loop, first call included.
	DefaultMaxAttempts = 3
	// maxAttemptsCeiling is the hard upper bound regardless of config.
	maxAttemptsCeiling = 10

	DefaultTemperature = 0.2
)

// Generator produces validated plans from requirement text.
type Generator struct {
	provider  llm.Provider
	validator *validator.Validator
	adapter   *adapter.Adapter
	cache     *cache.Cache

	// cacheProvider/cacheModel identify the configured back-end in cache
	// keys so entries are not shared across back-ends.
	cacheProvider string
	cacheModel    string

	maxAttempts int
	temperature float64
	maxTokens   int

	tel *telemetry.Telemetry
}

// Option configures a Generator.
type Option func(*Generator)

// WithCache enables plan caching under the given back-end identity.
func WithCache(c *cache.Cache, provider, model string) Option {
	return func(g *Generator) {
		g.cache = c
		g.cacheProvider = provider
		g.cacheModel = model
	}
}

// WithValidator replaces the default validator.
func WithValidator(v *validator.Validator) Option {
	return func(g *Generator) { g.validator = v }
}

// WithMaxAttempts bounds the correction loop.
func WithMaxAttempts(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxAttempts = n
		}
		if g.maxAttempts > maxAttemptsCeiling {
			g.maxAttempts = maxAttemptsCeiling
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = t }
}

// WithMaxTokens caps the completion size.
func WithMaxTokens(n int) Option {
	return func(g *Generator) { g.maxTokens = n }
}

// WithTelemetry wires metrics and generation events.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(g *Generator) { g.tel = t }
}

// New builds a Generator around a provider.
func New(provider llm.Provider, opts ...Option) *Generator {
	g := &Generator{
		provider:    provider,
		validator:   validator.New(),
		adapter:     adapter.New(),
		maxAttempts: DefaultMaxAttempts,
		temperature: DefaultTemperature,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Metadata describes how a plan was produced.
type Metadata struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Tokens    int    `json:"tokens"`
	Cached    bool   `json:"cached"`
	Attempts  int    `json:"attempts"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// Result is a generated plan with its provenance.
type Result struct {
	Plan     *utdl.Plan `json:"plan"`
	Metadata Metadata   `json:"metadata"`
}

// GenerateOptions tunes one generation call.
type GenerateOptions struct {
	// SkipCache bypasses the cache for both lookup and store.
	SkipCache bool
}

// Generate runs the full pipeline: cache lookup, model call, JSON
// extraction, normalization, validation, and a bounded correction loop. The
// generator never repairs a plan itself; it only accepts or rejects model
// output.
func (g *Generator) Generate(ctx context.Context, requirement, baseURL string, opts GenerateOptions) (*Result, error) {
	start := time.Now()
	fingerprint := cache.Fingerprint(requirement, baseURL, g.cacheProvider, g.cacheModel)
	g.publishGenerationStarted(fingerprint)

	if g.cache != nil && !opts.SkipCache {
		plan, hit, err := g.cache.Get(fingerprint)
		if err == nil && hit {
			g.recordCacheHit()
			g.finish(fingerprint, plan, true, start)
			return &Result{
				Plan: plan,
				Metadata: Metadata{
					Provider:  g.cacheProvider,
					Model:     g.cacheModel,
					Cached:    true,
					ElapsedMs: time.Since(start).Milliseconds(),
				},
			}, nil
		}
		if err == nil {
			g.recordCacheMiss()
		}
	}

	prompt := userPrompt(requirement, baseURL)
	var (
		lastDiagnostics []string
		lastJSON        string
		meta            Metadata
	)

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if attempt > 1 {
			g.recordCorrectionAttempt()
			prompt = correctionPrompt(lastDiagnostics, lastJSON)
		}
		meta.Attempts = attempt

		callStart := time.Now()
		resp, err := g.provider.Generate(ctx, llm.Request{
			Prompt:       prompt,
			SystemPrompt: systemPrompt,
			Temperature:  g.temperature,
			MaxTokens:    g.maxTokens,
		})
		if err != nil {
			g.recordLLMCall("error", time.Since(callStart))
			return nil, err
		}
		g.recordLLMCall("ok", time.Since(callStart))
		g.recordTokens(resp.Tokens)
		meta.Provider = resp.Provider
		meta.Model = resp.Model
		meta.Tokens += resp.Tokens

		text, err := ExtractJSON(resp.Text)
		if err != nil {
			lastDiagnostics = []string{"the reply contained no JSON object"}
			lastJSON = truncateForPrompt(resp.Text)
			continue
		}
		lastJSON = text

		result := g.validateText(text)
		if result.OK {
			plan := result.Plan
			if g.cache != nil && !opts.SkipCache {
				if err := g.cache.Put(fingerprint, plan, requirement, baseURL, g.cacheProvider, g.cacheModel); err == nil {
					g.recordCacheStore()
				}
			}
			meta.ElapsedMs = time.Since(start).Milliseconds()
			g.recordGeneration(meta.Provider, "ok", false, time.Since(start))
			g.finish(fingerprint, plan, false, start)
			return &Result{Plan: plan, Metadata: meta}, nil
		}

		lastDiagnostics = result.ErrorStrings()
	}

	g.recordGeneration(meta.Provider, "failed", false, time.Since(start))
	return nil, diag.Newf(diag.CodeGenerationFailed,
		"plan generation failed after %d attempts: %s",
		g.maxAttempts, strings.Join(lastDiagnostics, "; "))
}

// validateText runs adapter normalization before validation so the model may
// answer in near-UTDL shapes.
func (g *Generator) validateText(text string) *validator.Result {
	normalized, err := g.adapter.NormalizeJSON(text)
	if err != nil {
		// Fall back to validating the raw text; the validator produces the
		// diagnostics fed back to the model.
		return g.validator.ValidateJSON(text)
	}
	raw, err := marshal(normalized)
	if err != nil {
		return g.validator.ValidateJSON(text)
	}
	return g.validator.ValidateJSON(raw)
}

func truncateForPrompt(s string) string {
	const max = 2000
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
