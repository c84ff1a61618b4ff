package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/tinygreenhouse/sprout/internal/config"
)

// callTimeout bounds a single provider round-trip. A timed-out call surfaces
// as a provider error to the caller, never as a canned fallback.
const callTimeout = 60 * time.Second

// OpenAIEmbedder implements EmbeddingProvider against the OpenAI embeddings
// API (or any compatible endpoint via base URL override).
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// OpenAIChat implements ChatProvider against the OpenAI chat completions API.
type OpenAIChat struct {
	client *openai.Client
	model  string
}

func newClient(cfg *config.Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// NewEmbedder builds the embedding provider named by cfg.Provider.
func NewEmbedder(cfg *config.Config) (EmbeddingProvider, error) {
	switch strings.ToLower(cfg.Provider) {
	case config.ProviderOpenAI:
		return &OpenAIEmbedder{client: newClient(cfg), model: cfg.EmbedModel}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}

// NewChat builds the chat provider named by cfg.Provider.
func NewChat(cfg *config.Config) (ChatProvider, error) {
	switch strings.ToLower(cfg.Provider) {
	case config.ProviderOpenAI:
		return &OpenAIChat{client: newClient(cfg), model: cfg.ChatModel}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, cfg.Provider)
	}
}

// Embed returns the embedding vector for one text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, ErrNoEmbeddingData
	}
	return resp.Data[0].Embedding, nil
}

// Ping embeds a constant probe string.
func (e *OpenAIEmbedder) Ping(ctx context.Context) error {
	_, err := e.Embed(ctx, "ping")
	return err
}

// Complete runs one system/user exchange and returns the trimmed reply.
func (c *OpenAIChat) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: req.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, Content: req.User},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrNoCompletionContent
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Ping runs a minimal zero-temperature completion.
func (c *OpenAIChat) Ping(ctx context.Context) error {
	_, err := c.Complete(ctx, CompletionRequest{
		System: "You are a diagnostics probe.",
		User:   "Reply with OK.",
	})
	return err
}
