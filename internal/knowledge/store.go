// Package knowledge owns the persistent vector store for assistant seed chunks.
//
// Chunks live in the rag_chunks table (PostgreSQL + pgvector) and are written
// exclusively by the ingestion pipeline through the replace-by-source sequence:
// DeleteSources followed by InsertChunks for the same source paths. Re-running
// ingestion against an unchanged document set therefore produces the same row
// set, not an accumulating superset.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"
)

var (
	// ErrEmptyEmbedding indicates a chunk arrived with a zero-length vector.
	ErrEmptyEmbedding = errors.New("empty embedding vector")

	// ErrDimensionMismatch indicates an embedding whose width differs from the
	// rag_chunks schema. This is a configuration fault, not a data fault.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// searchTimeout bounds a single vector search so a cold ivfflat index cannot
// stall request handling indefinitely.
const searchTimeout = 10 * time.Second

// DB is the database surface Store needs. *pgxpool.Pool satisfies it; tests
// substitute fakes. Interface defined by the consumer, not the provider.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store manages chunk rows and cosine-similarity search.
//
// Store is safe for concurrent use; all state lives in the database.
type Store struct {
	db     DB
	logger *slog.Logger
}

// NewStore creates a Store. A nil logger falls back to slog.Default().
func NewStore(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// quantize rounds every vector component to 8 decimal places before storage.
// Repeated ingest/retrieve round-trips then reproduce identical column values
// instead of accumulating float formatting drift.
func quantize(vals []float32) []float32 {
	out := make([]float32, len(vals))
	for i, v := range vals {
		out[i] = float32(math.Round(float64(v)*1e8) / 1e8)
	}
	return out
}

// vectorParam validates and converts an embedding into a pgvector query value.
func vectorParam(vals []float32) (pgvector.Vector, error) {
	if len(vals) == 0 {
		return pgvector.Vector{}, ErrEmptyEmbedding
	}
	if len(vals) != Dimension {
		return pgvector.Vector{}, fmt.Errorf("%w: got %d, schema is %d", ErrDimensionMismatch, len(vals), Dimension)
	}
	return pgvector.NewVector(quantize(vals)), nil
}

// stageParam maps the empty-string stage convention onto SQL NULL.
func stageParam(stage string) any {
	if stage == "" {
		return nil
	}
	return stage
}

// InsertChunks bulk-inserts chunks in a single batch. Every embedding must be
// non-empty and exactly Dimension wide; the whole batch is rejected otherwise.
func (s *Store) InsertChunks(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	const stmt = `
		INSERT INTO rag_chunks (crop_id, stage, lang, source_path, chunk, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)`

	batch := &pgx.Batch{}
	for _, c := range chunks {
		vec, err := vectorParam(c.Embedding)
		if err != nil {
			return fmt.Errorf("chunk for %q: %w", c.SourcePath, err)
		}
		batch.Queue(stmt, c.CropID, stageParam(c.Stage), c.Lang, c.SourcePath, c.Text, vec)
	}

	results := s.db.SendBatch(ctx, batch)
	defer func() {
		if err := results.Close(); err != nil {
			s.logger.Warn("closing insert batch", "error", err)
		}
	}()

	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("inserting chunks: %w", err)
		}
	}

	s.logger.Debug("inserted chunks", "count", len(chunks))
	return nil
}

// DeleteSources removes every chunk whose source path is in the given set.
// Run before InsertChunks for the same sources; this ordering is what makes
// re-ingestion idempotent. An empty set is a no-op.
func (s *Store) DeleteSources(ctx context.Context, sourcePaths []string) error {
	if len(sourcePaths) == 0 {
		return nil
	}

	tag, err := s.db.Exec(ctx,
		`DELETE FROM rag_chunks WHERE source_path = ANY($1::text[])`, sourcePaths)
	if err != nil {
		return fmt.Errorf("deleting chunks for sources: %w", err)
	}

	s.logger.Debug("deleted chunks", "sources", len(sourcePaths), "rows", tag.RowsAffected())
	return nil
}

// Search returns the q.Limit nearest chunks by cosine distance among rows
// matching q.CropID and q.Lang. When q.Stage is set, rows must either carry
// that stage or no stage at all: stage-agnostic guidance stays eligible for
// every stage. Results are ordered by descending similarity; ties fall back
// to index order. An empty result is not an error.
func (s *Store) Search(ctx context.Context, q SearchQuery) ([]RetrievedChunk, error) {
	vec, err := vectorParam(q.Embedding)
	if err != nil {
		return nil, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	rows, err := s.db.Query(queryCtx, `
		SELECT
			id,
			crop_id,
			stage,
			lang,
			source_path,
			chunk,
			1 - (embedding <=> $1) AS score
		FROM rag_chunks
		WHERE crop_id = $2
		  AND lang = $3
		  AND (
			$4::text IS NULL
			OR stage = $4
			OR stage IS NULL
		  )
		ORDER BY embedding <=> $1
		LIMIT $5`,
		vec, q.CropID, q.Lang, stageParam(q.Stage), q.Limit)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search query timeout: %w", err)
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	var results []RetrievedChunk
	for rows.Next() {
		var (
			rc    RetrievedChunk
			stage pgtype.Text
		)
		if err := rows.Scan(&rc.ID, &rc.CropID, &stage, &rc.Lang, &rc.SourcePath, &rc.Text, &rc.Score); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		if stage.Valid {
			rc.Stage = stage.String
		}
		results = append(results, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}

	return results, nil
}

// CountBySource returns the number of stored chunks for one source path.
func (s *Store) CountBySource(ctx context.Context, sourcePath string) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM rag_chunks WHERE source_path = $1`, sourcePath).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting chunks for %q: %w", sourcePath, err)
	}
	return count, nil
}

// Health is a trivial connectivity probe, independent of schema state.
func (s *Store) Health(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("vector store health check: %w", err)
	}
	return nil
}
