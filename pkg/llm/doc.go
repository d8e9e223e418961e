// Package llm is the language-model provider layer. It defines the Provider
// interface consumed by the generator and ships two implementations: a mock
// provider with keyword-matched plan templates for offline work and tests,
// and a real provider that multiplexes OpenAI-compatible and Anthropic
// back-ends with circuit breaking and ordered fallback.
package llm
