package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tinygreenhouse/sprout/internal/knowledge"
	"github.com/tinygreenhouse/sprout/internal/rag"
)

// searchRequest is the POST /api/rag/search body. The endpoint is a debug
// surface, registered only when rag_debug is enabled.
type searchRequest struct {
	Query  string `json:"query"`
	CropID string `json:"cropId"`
	Lang   string `json:"lang,omitempty"`
	Stage  string `json:"stage,omitempty"`
	TopK   int    `json:"topK,omitempty"`
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	ID         int64   `json:"id"`
	CropID     string  `json:"cropId"`
	Stage      string  `json:"stage,omitempty"`
	Lang       string  `json:"lang"`
	SourcePath string  `json:"sourcePath"`
	Chunk      string  `json:"chunk"`
	Score      float64 `json:"score"`
}

type searchHandler struct {
	retriever *rag.Retriever
	logger    *slog.Logger
}

// search handles POST /api/rag/search.
func (h *searchHandler) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxAssistBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", h.logger)
		return
	}
	if req.Query == "" || req.CropID == "" {
		writeError(w, http.StatusBadRequest, "invalid_body", "query and cropId are required", h.logger)
		return
	}
	if req.Lang == "" {
		req.Lang = "en"
	}

	chunks, err := h.retriever.Retrieve(r.Context(), rag.Query{
		Text:   req.Query,
		CropID: req.CropID,
		Lang:   req.Lang,
		Stage:  req.Stage,
		TopK:   req.TopK,
	})
	if err != nil {
		h.logger.Error("debug search failed", "error", err, "crop_id", req.CropID)
		writeError(w, http.StatusBadGateway, "provider_error", "retrieval backend unavailable", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{Results: toSearchResults(chunks)}, h.logger)
}

func toSearchResults(chunks []knowledge.RetrievedChunk) []searchResult {
	results := make([]searchResult, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, searchResult{
			ID:         c.ID,
			CropID:     c.CropID,
			Stage:      c.Stage,
			Lang:       c.Lang,
			SourcePath: c.SourcePath,
			Chunk:      c.Text,
			Score:      c.Score,
		})
	}
	return results
}
