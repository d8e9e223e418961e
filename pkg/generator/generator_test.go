package generator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aqakit/brain/pkg/cache"
	"github.com/aqakit/brain/pkg/diag"
	"github.com/aqakit/brain/pkg/llm"
)

const validPlanJSON = `{
  "spec_version": "0.1",
  "meta": {"name": "Scripted"},
  "config": {"base_url": "http://localhost:8000"},
  "steps": [
    {
      "id": "s1",
      "action": "http_request",
      "params": {"method": "GET", "path": "/"},
      "assertions": [{"type": "status_code", "operator": "eq", "value": 200}]
    }
  ]
}`

// emptyPlanJSON fails validation: a plan must have steps.
const emptyPlanJSON = `{
  "spec_version": "0.1",
  "meta": {"name": "Empty"},
  "config": {"base_url": "http://localhost:8000"},
  "steps": []
}`

type scriptedProvider struct {
	replies []string
	prompts []string
}

func (s *scriptedProvider) Name() string    { return "scripted" }
func (s *scriptedProvider) Available() bool { return true }

func (s *scriptedProvider) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.prompts = append(s.prompts, req.Prompt)
	i := len(s.prompts) - 1
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	}
	return &llm.Response{
		Text:     s.replies[i],
		Provider: "scripted",
		Model:    "scripted-1",
		Tokens:   10,
	}, nil
}

func TestGenerateWithMock(t *testing.T) {
	g := New(llm.NewMock())
	result, err := g.Generate(context.Background(), "test the login flow", "http://localhost:8000", GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Plan == nil || len(result.Plan.Steps) == 0 {
		t.Fatal("no plan produced")
	}
	if result.Metadata.Provider != "mock" || result.Metadata.Cached || result.Metadata.Attempts != 1 {
		t.Errorf("metadata = %+v", result.Metadata)
	}
	if result.Metadata.Tokens == 0 || result.Metadata.Model == "" {
		t.Errorf("metadata = %+v", result.Metadata)
	}
}

func TestGenerateCacheRoundTrip(t *testing.T) {
	c, err := cache.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	mock := llm.NewMock()
	g := New(mock, WithCache(c, "mock", "mock-template-v1"))

	first, err := g.Generate(context.Background(), "health check", "http://localhost:8000", GenerateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if first.Metadata.Cached {
		t.Error("first call should not be cached")
	}

	second, err := g.Generate(context.Background(), "health check", "http://localhost:8000", GenerateOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !second.Metadata.Cached {
		t.Error("second call should hit the cache")
	}
	if mock.CallCount() != 1 {
		t.Errorf("provider calls = %d, want 1", mock.CallCount())
	}
	if len(second.Plan.Steps) != len(first.Plan.Steps) {
		t.Errorf("cached plan differs: %d vs %d steps", len(second.Plan.Steps), len(first.Plan.Steps))
	}

	// SkipCache forces a fresh call and does not store.
	third, err := g.Generate(context.Background(), "health check", "http://localhost:8000", GenerateOptions{SkipCache: true})
	if err != nil {
		t.Fatal(err)
	}
	if third.Metadata.Cached {
		t.Error("skip-cache call reported a hit")
	}
	if mock.CallCount() != 2 {
		t.Errorf("provider calls = %d, want 2", mock.CallCount())
	}
}

func TestCorrectionLoopRecovers(t *testing.T) {
	p := &scriptedProvider{replies: []string{emptyPlanJSON, validPlanJSON}}
	g := New(p)

	result, err := g.Generate(context.Background(), "whatever", "http://localhost:8000", GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Metadata.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", result.Metadata.Attempts)
	}
	if len(p.prompts) != 2 {
		t.Fatalf("prompts = %d", len(p.prompts))
	}
	if !strings.Contains(p.prompts[1], "failed validation") {
		t.Errorf("second prompt is not a correction prompt:\n%s", p.prompts[1])
	}
	// The correction prompt carries the previous JSON back to the model.
	if !strings.Contains(p.prompts[1], `"Empty"`) {
		t.Error("correction prompt lacks the previous plan")
	}
}

func TestCorrectionLoopHandlesNonJSON(t *testing.T) {
	p := &scriptedProvider{replies: []string{"I cannot answer that.", validPlanJSON}}
	g := New(p)

	result, err := g.Generate(context.Background(), "whatever", "http://localhost:8000", GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.Metadata.Attempts != 2 {
		t.Errorf("attempts = %d", result.Metadata.Attempts)
	}
}

func TestGenerationExhausted(t *testing.T) {
	p := &scriptedProvider{replies: []string{emptyPlanJSON}}
	g := New(p, WithMaxAttempts(2))

	_, err := g.Generate(context.Background(), "whatever", "http://localhost:8000", GenerateOptions{})
	var se *diag.StructuredError
	if !errors.As(err, &se) || se.Code != diag.CodeGenerationFailed {
		t.Fatalf("error = %v", err)
	}
	if len(p.prompts) != 2 {
		t.Errorf("provider calls = %d, want 2", len(p.prompts))
	}
	if !strings.Contains(err.Error(), "2 attempts") {
		t.Errorf("error message = %v", err)
	}
}

func TestProviderErrorIsFatal(t *testing.T) {
	mock := llm.NewMock()
	mock.FailNextCall()
	g := New(mock)

	if _, err := g.Generate(context.Background(), "x", "http://localhost:8000", GenerateOptions{}); err == nil {
		t.Fatal("provider failure must surface")
	}
	// A transport failure is not a correction case.
	if mock.CallCount() != 1 {
		t.Errorf("provider calls = %d, want 1", mock.CallCount())
	}
}

func TestMaxAttemptsCeiling(t *testing.T) {
	g := New(llm.NewMock(), WithMaxAttempts(50))
	if g.maxAttempts != maxAttemptsCeiling {
		t.Errorf("maxAttempts = %d, want %d", g.maxAttempts, maxAttemptsCeiling)
	}
}
