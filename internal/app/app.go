// Package app wires configuration, database, providers and the assistant
// core into a single explicit dependency graph constructed once at startup.
// No component reaches for globals; everything flows through App.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/tinygreenhouse/sprout/db"
	"github.com/tinygreenhouse/sprout/internal/assist"
	"github.com/tinygreenhouse/sprout/internal/config"
	"github.com/tinygreenhouse/sprout/internal/ingest"
	"github.com/tinygreenhouse/sprout/internal/knowledge"
	"github.com/tinygreenhouse/sprout/internal/log"
	"github.com/tinygreenhouse/sprout/internal/profile"
	"github.com/tinygreenhouse/sprout/internal/provider"
	"github.com/tinygreenhouse/sprout/internal/rag"
	"github.com/tinygreenhouse/sprout/internal/ratelimit"
)

// App holds every long-lived component of the assistant service.
type App struct {
	Config      *config.Config
	Logger      log.Logger
	Pool        *pgxpool.Pool
	Store       *knowledge.Store
	Embedder    provider.EmbeddingProvider
	Chat        provider.ChatProvider
	Retriever   *rag.Retriever
	Limiter     *ratelimit.Limiter
	Profiles    *profile.Resolver
	Synthesizer *assist.Synthesizer
	Pipeline    *ingest.Pipeline
}

// Setup validates configuration, migrates the database, and constructs the
// full component graph. Call Close when done.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	pool, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embedder, err := provider.NewEmbedder(cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	chat, err := provider.NewChat(cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	profiles, err := profile.NewResolver()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("loading profile defaults: %w", err)
	}

	store := knowledge.NewStore(pool, logger)
	retriever := rag.NewRetriever(embedder, store, cfg.TopK, logger)
	synth := assist.NewSynthesizer(retriever, chat, profiles, assist.Config{
		MinQueryLength: cfg.MinQueryLength,
		ScoreFloor:     cfg.ScoreFloor,
		Temperature:    cfg.Temperature,
	}, logger)

	return &App{
		Config:      cfg,
		Logger:      logger,
		Pool:        pool,
		Store:       store,
		Embedder:    embedder,
		Chat:        chat,
		Retriever:   retriever,
		Limiter:     ratelimit.NewLimiter(),
		Profiles:    profiles,
		Synthesizer: synth,
		Pipeline:    ingest.NewPipeline(embedder, store, cfg.EmbedRatePerSec, logger),
	}, nil
}

// Close releases the App's resources.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// providePool migrates the schema, then opens a tuned connection pool with
// pgvector types registered on every connection.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
