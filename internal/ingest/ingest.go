// Package ingest discovers crop seed documents, chunks and embeds them, and
// commits them to the vector store with the replace-then-insert sequence that
// keeps re-ingestion idempotent.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/time/rate"

	"github.com/tinygreenhouse/sprout/internal/chunk"
	"github.com/tinygreenhouse/sprout/internal/knowledge"
	"github.com/tinygreenhouse/sprout/internal/provider"
)

// Store is the write surface the pipeline needs. *knowledge.Store satisfies
// it.
type Store interface {
	DeleteSources(ctx context.Context, sourcePaths []string) error
	InsertChunks(ctx context.Context, chunks []knowledge.Chunk) error
}

// Summary reports what one IngestAll run did.
type Summary struct {
	Documents int // seed YAML files processed
	Chunks    int // chunks inserted
	Skipped   int // documents skipped (bad metadata or no chunkable text)
	Failed    int // document groups that errored; others still committed
}

// Pipeline ingests seed documents one source group at a time, so a failure
// on one crop does not block others.
type Pipeline struct {
	embedder provider.EmbeddingProvider
	store    Store
	pacer    *rate.Limiter
	logger   *slog.Logger
}

// NewPipeline creates a Pipeline. embedRatePerSec throttles embedding calls;
// zero or negative disables pacing. A nil logger falls back to slog.Default().
func NewPipeline(embedder provider.EmbeddingProvider, store Store, embedRatePerSec float64, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	var pacer *rate.Limiter
	if embedRatePerSec > 0 {
		pacer = rate.NewLimiter(rate.Limit(embedRatePerSec), 1)
	}
	return &Pipeline{
		embedder: embedder,
		store:    store,
		pacer:    pacer,
		logger:   logger,
	}
}

// IngestAll processes every seed document under root. Layout: one directory
// per crop beneath <root>/crops, each holding seed YAML files plus optional
// companion markdown whose filename starts with the YAML's base name.
//
// Per-document failures are logged and counted, not fatal. The returned
// error covers only discovery problems and context cancellation.
func (p *Pipeline) IngestAll(ctx context.Context, root string) (Summary, error) {
	var summary Summary

	seeds, err := discoverSeeds(root)
	if err != nil {
		return summary, err
	}
	if len(seeds) == 0 {
		p.logger.Warn("no seed files found", "root", root)
		return summary, nil
	}

	for _, yamlPath := range seeds {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		rel := relPath(root, yamlPath)
		inserted, err := p.ingestDocument(ctx, root, yamlPath)
		switch {
		case errors.Is(err, errSkipped):
			summary.Skipped++
		case err != nil:
			summary.Failed++
			p.logger.Error("ingesting seed document failed", "source", rel, "error", err)
		default:
			summary.Documents++
			summary.Chunks += inserted
		}
	}

	p.logger.Info("ingestion complete",
		"documents", summary.Documents,
		"chunks", summary.Chunks,
		"skipped", summary.Skipped,
		"failed", summary.Failed)

	return summary, nil
}

// errSkipped marks a document the pipeline deliberately left alone.
var errSkipped = errors.New("document skipped")

func (p *Pipeline) ingestDocument(ctx context.Context, root, yamlPath string) (int, error) {
	rel := relPath(root, yamlPath)
	p.logger.Info("processing seed document", "source", rel)

	raw, err := os.ReadFile(yamlPath)
	if err != nil {
		return 0, fmt.Errorf("reading seed file: %w", err)
	}
	doc, err := chunk.ParseSeedDoc(raw)
	if err != nil {
		return 0, err
	}
	if doc.Crop.ID == "" || doc.Crop.Variety == "" {
		p.logger.Warn("skipping seed document, missing crop metadata", "source", rel)
		return 0, errSkipped
	}

	rawChunks := chunk.BuildSeedChunks(doc, rel)

	lang := doc.Crop.Lang
	if lang == "" {
		lang = "en"
	}
	companions, err := companionMarkdown(yamlPath)
	if err != nil {
		return 0, err
	}
	for _, mdPath := range companions {
		text, err := os.ReadFile(mdPath)
		if err != nil {
			return 0, fmt.Errorf("reading companion markdown: %w", err)
		}
		rawChunks = append(rawChunks, chunk.BuildMarkdownChunks(string(text), doc.Crop.ID, lang, relPath(root, mdPath))...)
	}

	// Zero chunks means nothing to replace: leaving prior rows in place
	// beats delete-and-leave-empty.
	if len(rawChunks) == 0 {
		p.logger.Warn("no chunkable text found, skipping", "source", rel)
		return 0, errSkipped
	}

	inserts := make([]knowledge.Chunk, 0, len(rawChunks))
	for _, rc := range rawChunks {
		if p.pacer != nil {
			if err := p.pacer.Wait(ctx); err != nil {
				return 0, err
			}
		}
		embedding, err := p.embedder.Embed(ctx, rc.Text)
		if err != nil {
			return 0, fmt.Errorf("embedding chunk from %s: %w", rc.SourcePath, err)
		}
		inserts = append(inserts, knowledge.Chunk{
			CropID:     rc.CropID,
			Stage:      rc.Stage,
			Lang:       rc.Lang,
			SourcePath: rc.SourcePath,
			Text:       rc.Text,
			Embedding:  embedding,
		})
	}

	// Replace-then-insert: the delete must complete before the inserts so a
	// re-run reproduces the same row set instead of accumulating.
	if err := p.store.DeleteSources(ctx, sourcePaths(inserts)); err != nil {
		return 0, err
	}
	if err := p.store.InsertChunks(ctx, inserts); err != nil {
		return 0, err
	}

	p.logger.Info("inserted chunks", "source", rel, "count", len(inserts))
	return len(inserts), nil
}

// discoverSeeds lists every seed YAML beneath <root>/crops/<crop>/, sorted
// for deterministic processing order.
func discoverSeeds(root string) ([]string, error) {
	cropsDir := filepath.Join(root, "crops")
	entries, err := os.ReadDir(cropsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading crops directory: %w", err)
	}

	var seeds []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		cropPath := filepath.Join(cropsDir, entry.Name())
		files, err := os.ReadDir(cropPath)
		if err != nil {
			return nil, fmt.Errorf("reading crop directory %s: %w", entry.Name(), err)
		}
		for _, file := range files {
			if !file.IsDir() && filepath.Ext(file.Name()) == ".yaml" {
				seeds = append(seeds, filepath.Join(cropPath, file.Name()))
			}
		}
	}
	sort.Strings(seeds)
	return seeds, nil
}

// companionMarkdown lists markdown files beside yamlPath whose names start
// with its base name.
func companionMarkdown(yamlPath string) ([]string, error) {
	dir := filepath.Dir(yamlPath)
	base := strings.TrimSuffix(filepath.Base(yamlPath), ".yaml")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading seed directory: %w", err)
	}

	var matches []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".md" {
			continue
		}
		if strings.HasPrefix(entry.Name(), base) {
			matches = append(matches, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(matches)
	return matches, nil
}

func sourcePaths(chunks []knowledge.Chunk) []string {
	seen := make(map[string]struct{})
	var paths []string
	for _, c := range chunks {
		if _, ok := seen[c.SourcePath]; ok {
			continue
		}
		seen[c.SourcePath] = struct{}{}
		paths = append(paths, c.SourcePath)
	}
	return paths
}

// relPath renders yamlPath relative to the seed root for storage as a stable
// source identifier; falls back to the slash-normalized absolute path.
func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
