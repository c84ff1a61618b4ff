package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tinygreenhouse/sprout/internal/assist"
	"github.com/tinygreenhouse/sprout/internal/ratelimit"
)

// maxAssistBodyBytes bounds the request body to keep hostile payloads out of
// the JSON decoder.
const maxAssistBodyBytes = 64 * 1024

// assistRequest is the POST /api/assist body. Optional fields override the
// caller's stored profile for this request only.
type assistRequest struct {
	Message     string   `json:"message"`
	CropID      string   `json:"cropId,omitempty"`
	Variety     string   `json:"variety,omitempty"`
	TopK        int      `json:"topK,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
}

type assistHandler struct {
	synth      *assist.Synthesizer
	limiter    *ratelimit.Limiter
	rateLimit  int
	rateWindow time.Duration
	logger     *slog.Logger
}

// send handles POST /api/assist.
func (h *assistHandler) send(w http.ResponseWriter, r *http.Request) {
	uid, ok := userIDFromContext(r.Context())
	if !ok || uid == "" {
		writeError(w, http.StatusUnauthorized, "user_required", "user identity required", h.logger)
		return
	}

	if err := h.limiter.Check("assist:"+uid, h.rateLimit, h.rateWindow); err != nil {
		var rlErr *ratelimit.Error
		if errors.As(err, &rlErr) {
			w.Header().Set("Retry-After", strconv.Itoa(rlErr.RetryAfterSeconds))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "assistant rate limit exceeded", h.logger)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}

	var req assistRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxAssistBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", h.logger)
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "message is required", h.logger)
		return
	}

	answer, err := h.synth.BuildAnswer(r.Context(), uid, req.Message, assist.Options{
		CropID:      req.CropID,
		Variety:     req.Variety,
		TopK:        req.TopK,
		Temperature: req.Temperature,
	})
	if err != nil {
		requestID, _ := requestIDFromContext(r.Context())
		h.logger.Error("building assistant answer", "error", err, "user", uid, "request_id", requestID)
		writeError(w, http.StatusBadGateway, "provider_error", "assistant backend unavailable", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, answer, h.logger)
}
