package provider

import (
	"errors"
	"testing"

	"github.com/tinygreenhouse/sprout/internal/config"
)

func testConfig(provider string) *config.Config {
	return &config.Config{
		Provider:     provider,
		EmbedModel:   "text-embedding-3-small",
		ChatModel:    "gpt-4o-mini",
		OpenAIAPIKey: "sk-test",
	}
}

func TestNewEmbedderSelectsProvider(t *testing.T) {
	e, err := NewEmbedder(testConfig("openai"))
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}
	if _, ok := e.(*OpenAIEmbedder); !ok {
		t.Errorf("got %T, want *OpenAIEmbedder", e)
	}

	// Provider matching is case-insensitive.
	if _, err := NewEmbedder(testConfig("OpenAI")); err != nil {
		t.Errorf("mixed-case provider rejected: %v", err)
	}
}

func TestNewEmbedderUnsupportedProvider(t *testing.T) {
	_, err := NewEmbedder(testConfig("llamacpp"))
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Errorf("got %v, want ErrUnsupportedProvider", err)
	}
}

func TestNewChatSelectsProvider(t *testing.T) {
	c, err := NewChat(testConfig("openai"))
	if err != nil {
		t.Fatalf("NewChat: %v", err)
	}
	if _, ok := c.(*OpenAIChat); !ok {
		t.Errorf("got %T, want *OpenAIChat", c)
	}
}

func TestNewChatUnsupportedProvider(t *testing.T) {
	_, err := NewChat(testConfig("gemini"))
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Errorf("got %v, want ErrUnsupportedProvider", err)
	}
}
