// Package provider defines the model-backend capability interfaces the
// assistant consumes and their OpenAI-compatible implementation.
//
// The rest of the codebase depends only on EmbeddingProvider and ChatProvider;
// tests substitute deterministic fakes.
package provider

import (
	"context"
	"errors"
)

var (
	// ErrNoEmbeddingData indicates the embedding backend returned an empty
	// response for a non-empty input.
	ErrNoEmbeddingData = errors.New("embedding provider returned no data")

	// ErrNoCompletionContent indicates the chat backend returned a response
	// with no message content.
	ErrNoCompletionContent = errors.New("chat provider returned no content")

	// ErrUnsupportedProvider indicates a provider name with no implementation.
	ErrUnsupportedProvider = errors.New("unsupported provider")
)

// EmbeddingProvider turns text into a fixed-dimension vector.
type EmbeddingProvider interface {
	// Embed returns the embedding for one text. The vector width is fixed per
	// provider configuration; callers validate it against the store schema.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Ping performs a minimal real call against the backend. It fails when
	// the backend is unreachable or the credentials are invalid.
	Ping(ctx context.Context) error
}

// CompletionRequest is one grounded chat exchange: a system prompt carrying
// the guardrails and a user prompt carrying question, sources and snapshot.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float32
}

// ChatProvider produces a completion for a system/user prompt pair.
type ChatProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Ping(ctx context.Context) error
}
