package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// backend is one concrete API the real provider can call.
type backend interface {
	name() string
	model() string
	generate(ctx context.Context, req Request) (text string, tokens int, err error)
}

const anthropicDefaultMaxTokens = 4096

// openAIBackend talks to any OpenAI-compatible chat API. xAI reuses it with
// its own base URL.
type openAIBackend struct {
	backendName string
	modelName   string
	client      *openai.LLM
}

func newOpenAIBackend(name, model, baseURL, apiKey string) (*openAIBackend, error) {
	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("configure %s client: %w", name, err)
	}
	return &openAIBackend{backendName: name, modelName: model, client: client}, nil
}

func (b *openAIBackend) name() string  { return b.backendName }
func (b *openAIBackend) model() string { return b.modelName }

func (b *openAIBackend) generate(ctx context.Context, req Request) (string, int, error) {
	var messages []llms.MessageContent
	if req.SystemPrompt != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	callOpts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := b.client.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return "", 0, err
	}
	if len(resp.Choices) == 0 {
		return "", 0, fmt.Errorf("%s returned no choices", b.backendName)
	}
	choice := resp.Choices[0]
	return choice.Content, totalTokens(choice.GenerationInfo), nil
}

func totalTokens(info map[string]any) int {
	for _, key := range []string{"TotalTokens", "total_tokens"} {
		switch v := info[key].(type) {
		case int:
			return v
		case float64:
			return int(v)
		}
	}
	return 0
}

// anthropicBackend talks to the Anthropic Messages API.
type anthropicBackend struct {
	modelName string
	client    anthropic.Client
}

func newAnthropicBackend(model, apiKey string) *anthropicBackend {
	return &anthropicBackend{
		modelName: model,
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

func (b *anthropicBackend) name() string  { return BackendAnthropic }
func (b *anthropicBackend) model() string { return b.modelName }

func (b *anthropicBackend) generate(ctx context.Context, req Request) (string, int, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(b.modelName),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	msg, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", 0, err
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	tokens := int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
	return sb.String(), tokens, nil
}
