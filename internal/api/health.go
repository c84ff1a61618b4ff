package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is the readiness probe surface for the vector store.
// *knowledge.Store satisfies it.
type Pinger interface {
	Health(ctx context.Context) error
}

// ProviderPinger is the readiness probe surface for model backends. The
// provider implementations satisfy it.
type ProviderPinger interface {
	Ping(ctx context.Context) error
}

// readyResponse reports overall readiness plus the outcome of each probe.
type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// health is a liveness probe. Returns 200 OK with {"status":"ok"}.
func health(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}
}

// readiness probes the vector store and the model backends. Nil probes are
// skipped, so the server can run in degraded debug setups.
func readiness(store Pinger, embedder, chat ProviderPinger, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := make(map[string]string)
		ready := true
		probe := func(name string, fn func(context.Context) error) {
			if err := fn(ctx); err != nil {
				logger.Warn("readiness probe failed", "check", name, "error", err)
				checks[name] = "unavailable"
				ready = false
				return
			}
			checks[name] = "ok"
		}

		if store != nil {
			probe("store", store.Health)
		}
		if embedder != nil {
			probe("embedding", embedder.Ping)
		}
		if chat != nil {
			probe("chat", chat.Ping)
		}

		if !ready {
			writeJSON(w, http.StatusServiceUnavailable, readyResponse{Status: "not_ready", Checks: checks}, logger)
			return
		}
		writeJSON(w, http.StatusOK, readyResponse{Status: "ready", Checks: checks}, logger)
	}
}
