package provider

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider creates chat sessions backed by the Gemini API.
type GeminiProvider struct {
	client          *genai.Client
	modelName       string
	maxOutputTokens int32
}

// NewGeminiProvider creates a Gemini-backed provider. The API key comes from
// configuration, never from source.
func NewGeminiProvider(ctx context.Context, apiKey, modelName string, maxOutputTokens int) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	return &GeminiProvider{
		client:          client,
		modelName:       modelName,
		maxOutputTokens: int32(maxOutputTokens),
	}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return "gemini" }

// NewSession implements Provider. The system instruction pins the mentor
// persona; history starts empty.
func (p *GeminiProvider) NewSession(ctx context.Context, systemPrompt string) (ChatSession, error) {
	config := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		}
	}
	if p.maxOutputTokens > 0 {
		config.MaxOutputTokens = p.maxOutputTokens
	}

	chat, err := p.client.Chats.Create(ctx, p.modelName, config, nil)
	if err != nil {
		return nil, &InitError{Backend: p.Name(), Err: err}
	}

	return &geminiSession{chat: chat}, nil
}

type geminiSession struct {
	chat *genai.Chat
}

func (s *geminiSession) SendMessage(ctx context.Context, message string) (string, error) {
	if s.chat == nil {
		return "", fmt.Errorf("Gemini session is not initialized")
	}

	resp, err := s.chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return "", Classify(fmt.Errorf("Gemini API SendMessage error: %w", err))
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("Gemini API returned no valid candidates")
	}

	if part := resp.Candidates[0].Content.Parts[0]; part != nil && part.Text != "" {
		return part.Text, nil
	}
	return "", fmt.Errorf("Gemini API response part was not text")
}
