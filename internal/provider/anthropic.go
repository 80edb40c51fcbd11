package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider creates chat sessions backed by the Anthropic Messages
// API. Like OpenAI, the API is stateless and history is replayed per send.
type AnthropicProvider struct {
	client    anthropic.Client
	modelName string
	maxTokens int64
}

// NewAnthropicProvider creates an Anthropic-backed provider.
func NewAnthropicProvider(apiKey, modelName string, maxOutputTokens int) *AnthropicProvider {
	return &AnthropicProvider{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
		maxTokens: int64(maxOutputTokens),
	}
}

// Name implements Provider.
func (p *AnthropicProvider) Name() string { return "anthropic" }

// NewSession implements Provider.
func (p *AnthropicProvider) NewSession(_ context.Context, systemPrompt string) (ChatSession, error) {
	return &anthropicSession{provider: p, systemPrompt: systemPrompt}, nil
}

type anthropicSession struct {
	provider     *AnthropicProvider
	systemPrompt string
	mu           sync.Mutex
	history      []anthropic.MessageParam
}

func (s *anthropicSession) SendMessage(ctx context.Context, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := append(s.history, anthropic.NewUserMessage(anthropic.NewTextBlock(message)))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(s.provider.modelName),
		Messages:  messages,
		MaxTokens: s.provider.maxTokens,
	}
	if s.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: s.systemPrompt}}
	}

	resp, err := s.provider.client.Messages.New(ctx, params)
	if err != nil {
		return "", Classify(fmt.Errorf("Anthropic API error: %w", err))
	}

	reply := ""
	for _, block := range resp.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			reply += b.Text
		}
	}
	if reply == "" {
		return "", fmt.Errorf("Anthropic API returned no text content")
	}

	s.history = append(messages, anthropic.MessageParam{
		Role: anthropic.MessageParamRoleAssistant,
		Content: []anthropic.ContentBlockParamUnion{
			anthropic.NewTextBlock(reply),
		},
	})

	return reply, nil
}
