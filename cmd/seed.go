package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/tinygreenhouse/sprout/internal/app"
	"github.com/tinygreenhouse/sprout/internal/config"
	"github.com/tinygreenhouse/sprout/internal/log"
)

// runSeed ingests every seed document under the seed root. An optional
// positional argument overrides the configured root.
func runSeed(logger log.Logger, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.SeedRoot = firstArg(args, cfg.SeedRoot)

	application, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("setting up application: %w", err)
	}
	defer application.Close()

	logger.Info("seeding vector store", "root", cfg.SeedRoot)
	summary, err := application.Pipeline.IngestAll(ctx, cfg.SeedRoot)
	if err != nil {
		return fmt.Errorf("ingesting seed documents: %w", err)
	}

	if summary.Failed > 0 {
		return fmt.Errorf("seeding finished with %d failed document(s)", summary.Failed)
	}

	fmt.Printf("Seeded %d chunk(s) from %d document(s), skipped %d.\n",
		summary.Chunks, summary.Documents, summary.Skipped)
	return nil
}
