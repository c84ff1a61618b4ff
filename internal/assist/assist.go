// Package assist builds grounded assistant answers from retrieved seed
// chunks, the caller's greenhouse profile and the latest telemetry.
//
// Answering is a small state machine evaluated in order: too-short query,
// retrieval, no matches, low confidence, grounded synthesis. The first three
// gates short-circuit to canned fallback text as ordinary control flow; only
// genuine provider failures surface as errors. A fallback therefore always
// means "we chose not to answer", never "the model failed".
package assist

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tinygreenhouse/sprout/internal/knowledge"
	"github.com/tinygreenhouse/sprout/internal/profile"
	"github.com/tinygreenhouse/sprout/internal/provider"
	"github.com/tinygreenhouse/sprout/internal/rag"
)

// Kind tags which state machine branch produced an answer.
type Kind string

const (
	KindGrounded      Kind = "grounded"
	KindTooShort      Kind = "too_short"
	KindNoData        Kind = "no_data"
	KindLowConfidence Kind = "low_confidence"
)

// Fallback texts for the gating branches. Tests assert on these.
const (
	// fallbackCapabilityHint answers queries we decline to ground: too short
	// to embed meaningfully, or retrieved with too little confidence.
	fallbackCapabilityHint = "Could you give me a bit more to work with? " +
		"Ask about watering, climate, nutrients, or what to expect at your crop's current growth stage, " +
		"and I will answer from the seeded growing notes."

	// fallbackNoData answers queries for crops with no seeded material.
	fallbackNoData = "I do not have enough seed data for this crop yet. " +
		"Please add notes under data/rag and re-run the seeder."
)

// Meta echoes the resolved retrieval context back to the caller.
type Meta struct {
	CropID string `json:"cropId"`
	Lang   string `json:"lang"`
	Stage  string `json:"stage,omitempty"`
}

// Answer is the result of one assistant request.
type Answer struct {
	Message string                     `json:"message"`
	Sources []knowledge.RetrievedChunk `json:"sources"`
	Meta    Meta                       `json:"meta"`
	Kind    Kind                       `json:"kind"`
}

// Options are per-request overrides. Zero values defer to the caller's
// profile and the configured defaults.
type Options struct {
	CropID      string
	Variety     string
	TopK        int
	Temperature *float32
}

// Retriever is the retrieval surface the synthesizer needs. *rag.Retriever
// satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, q rag.Query) ([]knowledge.RetrievedChunk, error)
}

// ProfileSource resolves caller identity to greenhouse state.
type ProfileSource interface {
	Get(uid string) profile.Profile
	Latest(uid string) (profile.TelemetrySample, bool)
}

// Config carries the gating thresholds and synthesis defaults.
type Config struct {
	MinQueryLength int
	ScoreFloor     float64
	Temperature    float32
}

// Synthesizer answers user questions grounded in retrieved chunks.
type Synthesizer struct {
	retriever Retriever
	chat      provider.ChatProvider
	profiles  ProfileSource
	cfg       Config
	logger    *slog.Logger
}

// NewSynthesizer creates a Synthesizer. A nil logger falls back to
// slog.Default().
func NewSynthesizer(retriever Retriever, chat provider.ChatProvider, profiles ProfileSource, cfg Config, logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		retriever: retriever,
		chat:      chat,
		profiles:  profiles,
		cfg:       cfg,
		logger:    logger,
	}
}

// resolvedContext is the per-request retrieval context after profile lookup
// and request overrides.
type resolvedContext struct {
	prof    profile.Profile
	cropID  string
	variety string
	lang    string
	stage   string
}

func sanitizeCropID(value string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return "unknown"
}

func (s *Synthesizer) resolveContext(uid string, opts Options) resolvedContext {
	prof := s.profiles.Get(uid)

	cropID := opts.CropID
	if cropID == "" {
		cropID = prof.CropID
	}
	variety := opts.Variety
	if variety == "" {
		variety = prof.Variety
	}
	lang := prof.Language
	if lang == "" {
		lang = "en"
	}

	return resolvedContext{
		prof:    prof,
		cropID:  sanitizeCropID(cropID),
		variety: variety,
		lang:    lang,
		stage:   prof.GrowthStage,
	}
}

// BuildAnswer runs the full state machine for one request. Provider errors
// (embedding or chat) propagate; only the gating branches return canned text.
func (s *Synthesizer) BuildAnswer(ctx context.Context, uid, message string, opts Options) (Answer, error) {
	rc := s.resolveContext(uid, opts)
	meta := Meta{CropID: rc.cropID, Lang: rc.lang, Stage: rc.stage}

	// Length is counted in characters, not bytes, so non-Latin queries are
	// gated the same way as English ones.
	trimmed := strings.TrimSpace(message)
	if utf8.RuneCountInString(trimmed) < s.cfg.MinQueryLength {
		s.logger.Debug("assist gated", "reason", "query too short", "length", utf8.RuneCountInString(trimmed))
		return Answer{Message: fallbackCapabilityHint, Sources: []knowledge.RetrievedChunk{}, Meta: meta, Kind: KindTooShort}, nil
	}

	chunks, err := s.retriever.Retrieve(ctx, rag.Query{
		Text:   trimmed,
		CropID: rc.cropID,
		Lang:   rc.lang,
		Stage:  rc.stage,
		TopK:   opts.TopK,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("retrieving chunks: %w", err)
	}

	if len(chunks) == 0 {
		s.logger.Debug("assist gated", "reason", "no matches", "crop_id", rc.cropID)
		return Answer{Message: fallbackNoData, Sources: []knowledge.RetrievedChunk{}, Meta: meta, Kind: KindNoData}, nil
	}

	if chunks[0].Score < s.cfg.ScoreFloor {
		s.logger.Debug("assist gated", "reason", "low confidence",
			"crop_id", rc.cropID, "top_score", chunks[0].Score, "floor", s.cfg.ScoreFloor)
		return Answer{Message: fallbackCapabilityHint, Sources: []knowledge.RetrievedChunk{}, Meta: meta, Kind: KindLowConfidence}, nil
	}

	temperature := s.cfg.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	completion, err := s.chat.Complete(ctx, provider.CompletionRequest{
		System:      s.systemPrompt(rc.lang),
		User:        s.userPrompt(uid, trimmed, rc, chunks),
		Temperature: temperature,
	})
	if err != nil {
		return Answer{}, fmt.Errorf("synthesizing answer: %w", err)
	}

	return Answer{Message: completion, Sources: chunks, Meta: meta, Kind: KindGrounded}, nil
}

func (s *Synthesizer) systemPrompt(lang string) string {
	return strings.Join([]string{
		"You are the Tiny Greenhouse assistant.",
		"Guardrails:",
		"- Use only the provided SOURCES and SNAPSHOT.",
		"- If the answer is not supported by SOURCES, reply that there is not enough data and suggest a next step.",
		"- Prefer concise, actionable responses; include short rationales for warnings or changes.",
		"Respond in " + strings.ToUpper(lang) + ".",
	}, "\n")
}

func (s *Synthesizer) userPrompt(uid, question string, rc resolvedContext, chunks []knowledge.RetrievedChunk) string {
	var sources []string
	for i, chunk := range chunks {
		header := fmt.Sprintf("Source %d — %s", i+1, chunk.SourcePath)
		if chunk.Stage != "" {
			header += " (" + chunk.Stage + ")"
		}
		sources = append(sources, header+"\n"+chunk.Text)
	}

	return strings.Join([]string{
		"User question:\n" + question,
		"SOURCES:",
		strings.Join(sources, "\n\n"),
		"SNAPSHOT:",
		s.snapshot(uid, rc),
		"If SOURCES cannot answer the question, say so explicitly.",
	}, "\n\n")
}

// snapshot renders greenhouse identity, crop and latest telemetry as plain
// text for the prompt.
func (s *Synthesizer) snapshot(uid string, rc resolvedContext) string {
	stage := rc.stage
	if stage == "" {
		stage = "unspecified"
	}
	crop := rc.cropID
	if rc.variety != "" {
		crop += " / " + rc.variety
	}

	lines := []string{
		fmt.Sprintf("Greenhouse: %s (%s)", rc.prof.Name, rc.prof.ID),
		"Crop: " + crop,
		"Stage: " + stage,
		"Method: " + rc.prof.Method,
	}

	if sample, ok := s.profiles.Latest(uid); ok {
		lines = append(lines,
			"Latest telemetry @ "+sample.Timestamp.Format(time.RFC3339),
			"Temperature: "+formatReading(sample.Temperature)+"°C",
			"Humidity: "+formatReading(sample.Humidity)+"%",
			"Soil moisture: "+formatReading(sample.SoilMoisture)+"%",
		)
	} else {
		lines = append(lines, "No telemetry samples recorded yet.")
	}

	return strings.Join(lines, "\n")
}

func formatReading(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
