package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Mock is an offline provider that answers with canned UTDL plans selected
// by prompt keywords. It records call count and last prompt so tests can
// assert on generator behavior, and can be told to fail its next call.
type Mock struct {
	mu         sync.Mutex
	callCount  int
	lastPrompt string
	failNext   bool
	latency    time.Duration
}

// MockOption customizes a Mock.
type MockOption func(*Mock)

// WithSimulatedLatency makes every call sleep before answering.
func WithSimulatedLatency(d time.Duration) MockOption {
	return func(m *Mock) { m.latency = d }
}

// NewMock returns a mock provider.
func NewMock(opts ...MockOption) *Mock {
	m := &Mock{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Available() bool { return true }

// FailNextCall makes the next Generate return an error.
func (m *Mock) FailNextCall() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = true
}

// CallCount returns how many times Generate ran.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastPrompt returns the prompt of the most recent call.
func (m *Mock) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrompt
}

func (m *Mock) Generate(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.callCount++
	m.lastPrompt = req.Prompt
	fail := m.failNext
	m.failNext = false
	latency := m.latency
	m.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, fmt.Errorf("mock provider: simulated failure")
	}

	start := time.Now()
	text := selectTemplate(req.Prompt)
	return &Response{
		Text:      text,
		Model:     "mock-template-v1",
		Provider:  "mock",
		Tokens:    len(text) / 4,
		LatencyMs: time.Since(start).Milliseconds() + latency.Milliseconds(),
		Metadata:  map[string]interface{}{"template": templateNameFor(req.Prompt)},
	}, nil
}

// Keyword routing: first match wins, otherwise the default template.
var templateKeywords = []struct {
	name     string
	keywords []string
}{
	{"login", []string{"login", "signin", "authentication", "auth"}},
	{"crud", []string{"crud", "create", "update", "delete"}},
	{"health", []string{"health", "ping", "status"}},
}

func templateNameFor(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, t := range templateKeywords {
		for _, kw := range t.keywords {
			if strings.Contains(lower, kw) {
				return t.name
			}
		}
	}
	return "default"
}

func selectTemplate(prompt string) string {
	switch templateNameFor(prompt) {
	case "login":
		return loginTemplate
	case "crud":
		return crudTemplate
	case "health":
		return healthTemplate
	}
	return defaultTemplate
}

const loginTemplate = "```json\n" + `{
  "spec_version": "0.1",
  "meta": {"name": "Login flow"},
  "config": {"base_url": "http://localhost:8000"},
  "steps": [
    {
      "id": "login",
      "action": "http_request",
      "params": {
        "method": "POST",
        "path": "/auth/login",
        "body": {"username": "${USERNAME}", "password": "${PASSWORD}"}
      },
      "assertions": [
        {"type": "status_code", "operator": "eq", "value": 200}
      ],
      "extract": [
        {"source": "body", "path": "$.access_token", "target": "access_token"}
      ]
    },
    {
      "id": "me",
      "action": "http_request",
      "depends_on": ["login"],
      "params": {
        "method": "GET",
        "path": "/auth/me",
        "headers": {"Authorization": "Bearer ${access_token}"}
      },
      "assertions": [
        {"type": "status_code", "operator": "eq", "value": 200}
      ]
    }
  ]
}` + "\n```"

const crudTemplate = "```json\n" + `{
  "spec_version": "0.1",
  "meta": {"name": "Resource CRUD"},
  "config": {"base_url": "http://localhost:8000"},
  "steps": [
    {
      "id": "create",
      "action": "http_request",
      "params": {
        "method": "POST",
        "path": "/items",
        "body": {"name": "example"}
      },
      "assertions": [
        {"type": "status_code", "operator": "eq", "value": 201}
      ],
      "extract": [
        {"source": "body", "path": "$.id", "target": "item_id"}
      ]
    },
    {
      "id": "read",
      "action": "http_request",
      "depends_on": ["create"],
      "params": {"method": "GET", "path": "/items/${item_id}"},
      "assertions": [
        {"type": "status_code", "operator": "eq", "value": 200}
      ]
    },
    {
      "id": "update",
      "action": "http_request",
      "depends_on": ["read"],
      "params": {
        "method": "PUT",
        "path": "/items/${item_id}",
        "body": {"name": "renamed"}
      },
      "assertions": [
        {"type": "status_code", "operator": "eq", "value": 200}
      ]
    },
    {
      "id": "delete",
      "action": "http_request",
      "depends_on": ["update"],
      "params": {"method": "DELETE", "path": "/items/${item_id}"},
      "assertions": [
        {"type": "status_code", "operator": "eq", "value": 204}
      ]
    }
  ]
}` + "\n```"

const healthTemplate = "```json\n" + `{
  "spec_version": "0.1",
  "meta": {"name": "Health check"},
  "config": {"base_url": "http://localhost:8000"},
  "steps": [
    {
      "id": "health",
      "action": "http_request",
      "params": {"method": "GET", "path": "/health"},
      "assertions": [
        {"type": "status_code", "operator": "eq", "value": 200},
        {"type": "latency", "operator": "lt", "value": 200}
      ]
    }
  ]
}` + "\n```"

const defaultTemplate = "```json\n" + `{
  "spec_version": "0.1",
  "meta": {"name": "Smoke test"},
  "config": {"base_url": "http://localhost:8000"},
  "steps": [
    {
      "id": "root",
      "action": "http_request",
      "params": {"method": "GET", "path": "/"},
      "assertions": [
        {"type": "status_range", "operator": "eq", "value": "2xx"}
      ]
    }
  ]
}` + "\n```"
