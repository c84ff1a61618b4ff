package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/tinygreenhouse/sprout/internal/api"
	"github.com/tinygreenhouse/sprout/internal/app"
	"github.com/tinygreenhouse/sprout/internal/config"
	"github.com/tinygreenhouse/sprout/internal/log"
)

const shutdownTimeout = 10 * time.Second

// runServe starts the HTTP API server and blocks until SIGINT/SIGTERM. An
// optional positional argument overrides the configured listen address.
func runServe(logger log.Logger, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.ListenAddr = firstArg(args, cfg.ListenAddr)

	application, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("setting up application: %w", err)
	}
	defer application.Close()

	logProviderHealth(ctx, application, logger)

	server, err := api.NewServer(api.ServerConfig{
		Logger:      logger,
		Synthesizer: application.Synthesizer,
		Retriever:   application.Retriever,
		Limiter:     application.Limiter,
		Store:       application.Store,
		Embedder:    application.Embedder,
		Chat:        application.Chat,
		RateLimit:   cfg.AssistRateLimit,
		RateWindow:  cfg.AssistRateWindow(),
		RAGDebug:    cfg.RAGDebug,
		TrustProxy:  cfg.TrustProxy,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.ListenAddr, "rag_debug", cfg.RAGDebug)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	return nil
}

// logProviderHealth pings the model backends once at startup. Failures are
// logged, not fatal; the /ready probe keeps reporting them.
func logProviderHealth(ctx context.Context, application *app.App, logger log.Logger) {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := application.Embedder.Ping(pingCtx); err != nil {
		logger.Warn("embedding provider unreachable", "error", err)
	} else {
		logger.Info("embedding provider ready")
	}
	if err := application.Chat.Ping(pingCtx); err != nil {
		logger.Warn("chat provider unreachable", "error", err)
	} else {
		logger.Info("chat provider ready")
	}
}
