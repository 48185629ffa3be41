package clients

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aiwf/engine/common/config"
)

// AIClient is the contract the ai.* node handlers expect from a model
// provider. A nil AIClient puts those handlers into fallback mode.
type AIClient interface {
	// Complete sends a system + user prompt and returns the model's text.
	Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error)
}

// OpenAIClient implements AIClient on the OpenAI chat completions API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a provider client, or nil when no API key is
// configured.
func NewOpenAIClient(cfg *config.Config) *OpenAIClient {
	if cfg.Providers.OpenAIKey == "" {
		return nil
	}
	return &OpenAIClient{
		client: openai.NewClient(cfg.Providers.OpenAIKey),
		model:  openai.GPT3Dot5Turbo,
	}
}

// Complete implements AIClient.
func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: 0.3,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
