package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider creates chat sessions backed by the OpenAI chat
// completions API. The API itself is stateless, so each session replays
// its accumulated history on every send.
type OpenAIProvider struct {
	client    openai.Client
	modelName string
	maxTokens int64
}

// NewOpenAIProvider creates an OpenAI-backed provider.
func NewOpenAIProvider(apiKey, modelName string, maxOutputTokens int) *OpenAIProvider {
	return &OpenAIProvider{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		modelName: modelName,
		maxTokens: int64(maxOutputTokens),
	}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// NewSession implements Provider.
func (p *OpenAIProvider) NewSession(_ context.Context, systemPrompt string) (ChatSession, error) {
	s := &openaiSession{provider: p}
	if systemPrompt != "" {
		s.history = append(s.history, openai.SystemMessage(systemPrompt))
	}
	return s, nil
}

type openaiSession struct {
	provider *OpenAIProvider
	mu       sync.Mutex
	history  []openai.ChatCompletionMessageParamUnion
}

func (s *openaiSession) SendMessage(ctx context.Context, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := append(s.history, openai.UserMessage(message))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(s.provider.modelName),
		Messages: messages,
	}
	if s.provider.maxTokens > 0 {
		params.MaxTokens = openai.Int(s.provider.maxTokens)
	}

	resp, err := s.provider.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", Classify(fmt.Errorf("OpenAI API error: %w", err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI API returned no choices")
	}

	reply := resp.Choices[0].Message.Content

	// Record the turn only after a successful exchange so a failed send
	// does not poison the transcript.
	s.history = append(messages, openai.AssistantMessage(reply))

	return reply, nil
}
