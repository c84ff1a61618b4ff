// Package api is the JSON HTTP surface over the assistant core: the assist
// endpoint, an optional retrieval debug endpoint, and health probes.
package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tinygreenhouse/sprout/internal/assist"
	"github.com/tinygreenhouse/sprout/internal/rag"
	"github.com/tinygreenhouse/sprout/internal/ratelimit"
)

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger      *slog.Logger
	Synthesizer *assist.Synthesizer  // Required
	Retriever   *rag.Retriever       // Required when RAGDebug is set
	Limiter     *ratelimit.Limiter   // Required
	Store       Pinger               // Optional: nil skips the store readiness probe
	Embedder    ProviderPinger       // Optional: nil skips the embedding readiness probe
	Chat        ProviderPinger       // Optional: nil skips the chat readiness probe
	RateLimit   int                  // Assist requests per user per window
	RateWindow  time.Duration        // Assist rate window
	RAGDebug    bool                 // Registers POST /api/rag/search
	TrustProxy  bool                 // Trust X-Real-IP/X-Forwarded-For headers
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Synthesizer == nil {
		return nil, errors.New("synthesizer is required")
	}
	if cfg.Limiter == nil {
		return nil, errors.New("rate limiter is required")
	}
	if cfg.RAGDebug && cfg.Retriever == nil {
		return nil, errors.New("retriever is required when rag debug is enabled")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ah := &assistHandler{
		synth:      cfg.Synthesizer,
		limiter:    cfg.Limiter,
		rateLimit:  cfg.RateLimit,
		rateWindow: cfg.RateWindow,
		logger:     logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/assist", ah.send)

	if cfg.RAGDebug {
		sh := &searchHandler{retriever: cfg.Retriever, logger: logger}
		mux.HandleFunc("POST /api/rag/search", sh.search)
	}

	// Middleware stack (outermost first):
	//   Recovery → RequestID → Logging → User → Routes
	// RequestID must be before Logging so request_id is available in log
	// attributes.
	var handler http.Handler = mux
	handler = userMiddleware(cfg.TrustProxy)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Store, cfg.Embedder, cfg.Chat, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
