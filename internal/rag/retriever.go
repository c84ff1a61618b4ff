// Package rag provides similarity retrieval over the seeded chunk store.
package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinygreenhouse/sprout/internal/knowledge"
	"github.com/tinygreenhouse/sprout/internal/provider"
)

// Searcher is the store surface the retriever needs. *knowledge.Store
// satisfies it.
type Searcher interface {
	Search(ctx context.Context, q knowledge.SearchQuery) ([]knowledge.RetrievedChunk, error)
}

// Query is one retrieval request. Stage empty means no stage filter; TopK
// zero or negative falls back to the configured default.
type Query struct {
	Text   string
	CropID string
	Lang   string
	Stage  string
	TopK   int
}

// Retriever embeds a query once and delegates to the vector store.
type Retriever struct {
	embedder    provider.EmbeddingProvider
	store       Searcher
	defaultTopK int
	logger      *slog.Logger
}

// NewRetriever creates a Retriever. defaultTopK must be positive; a nil
// logger falls back to slog.Default().
func NewRetriever(embedder provider.EmbeddingProvider, store Searcher, defaultTopK int, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder:    embedder,
		store:       store,
		defaultTopK: defaultTopK,
		logger:      logger,
	}
}

// Retrieve embeds q.Text exactly once, then returns the nearest chunks for
// the crop, language and optional stage. An empty result is not an error;
// embedding failures propagate.
func (r *Retriever) Retrieve(ctx context.Context, q Query) ([]knowledge.RetrievedChunk, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = r.defaultTopK
	}

	embedding, err := r.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := r.store.Search(ctx, knowledge.SearchQuery{
		Embedding: embedding,
		CropID:    q.CropID,
		Lang:      q.Lang,
		Stage:     q.Stage,
		Limit:     topK,
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("retrieved chunks",
		"crop_id", q.CropID,
		"lang", q.Lang,
		"stage", q.Stage,
		"top_k", topK,
		"results", len(results))

	return results, nil
}
