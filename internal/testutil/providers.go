package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/tinygreenhouse/sprout/internal/knowledge"
	"github.com/tinygreenhouse/sprout/internal/provider"
)

// FakeEmbedder is a deterministic EmbeddingProvider for tests. The same text
// always embeds to the same unit vector, and different texts almost surely
// differ, so similarity search behaves sensibly without a real backend.
type FakeEmbedder struct {
	mu    sync.Mutex
	calls []string

	// Fixed maps specific texts to preset vectors, overriding the derived
	// embedding. Useful for forcing exact scores.
	Fixed map[string][]float32

	// Err, when set, is returned by every Embed call.
	Err error
}

// Embed returns a deterministic unit vector derived from text.
func (f *FakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	if v, ok := f.Fixed[text]; ok {
		return v, nil
	}
	return DeterministicVector(text), nil
}

// Ping reports the configured error, if any.
func (f *FakeEmbedder) Ping(context.Context) error {
	return f.Err
}

// Calls returns every text passed to Embed, in order.
func (f *FakeEmbedder) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// DeterministicVector derives a normalized embedding of the store's dimension
// from text, stable across runs.
func DeterministicVector(text string) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, knowledge.Dimension)
	var norm float64
	for i := range vec {
		// xorshift64 keeps the sequence cheap and reproducible.
		seed ^= seed << 13
		seed ^= seed >> 7
		seed ^= seed << 17
		v := float64(int64(seed%2000)-1000) / 1000.0
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// FakeChat is a scripted ChatProvider for tests. It records every request
// and replies with Reply or Err.
type FakeChat struct {
	mu    sync.Mutex
	calls []provider.CompletionRequest

	Reply string
	Err   error
}

// Complete records the request and returns the scripted reply.
func (f *FakeChat) Complete(_ context.Context, req provider.CompletionRequest) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.Err != nil {
		return "", f.Err
	}
	if f.Reply == "" {
		return "ok", nil
	}
	return f.Reply, nil
}

// Ping reports the configured error, if any.
func (f *FakeChat) Ping(context.Context) error {
	return f.Err
}

// Calls returns every completion request, in order.
func (f *FakeChat) Calls() []provider.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]provider.CompletionRequest, len(f.calls))
	copy(out, f.calls)
	return out
}
