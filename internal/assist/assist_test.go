package assist

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tinygreenhouse/sprout/internal/knowledge"
	"github.com/tinygreenhouse/sprout/internal/log"
	"github.com/tinygreenhouse/sprout/internal/profile"
	"github.com/tinygreenhouse/sprout/internal/rag"
	"github.com/tinygreenhouse/sprout/internal/testutil"
)

// fakeRetriever returns scripted chunks and records queries.
type fakeRetriever struct {
	queries []rag.Query
	chunks  []knowledge.RetrievedChunk
	err     error
}

func (f *fakeRetriever) Retrieve(_ context.Context, q rag.Query) ([]knowledge.RetrievedChunk, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

// fakeProfiles serves a fixed profile and telemetry sample.
type fakeProfiles struct {
	prof      profile.Profile
	sample    profile.TelemetrySample
	hasSample bool
}

func (f *fakeProfiles) Get(string) profile.Profile { return f.prof }

func (f *fakeProfiles) Latest(string) (profile.TelemetrySample, bool) {
	return f.sample, f.hasSample
}

func testProfiles() *fakeProfiles {
	return &fakeProfiles{
		prof: profile.Profile{
			ID:          "gh-1",
			Name:        "Test Greenhouse",
			Method:      "soil",
			CropID:      "tomato",
			Variety:     "cherry",
			Language:    "en",
			GrowthStage: "flowering",
		},
		sample: profile.TelemetrySample{
			Timestamp:    time.Date(2026, 8, 27, 18, 0, 0, 0, time.UTC),
			Temperature:  22.3,
			Humidity:     61,
			SoilMoisture: 36,
		},
		hasSample: true,
	}
}

func testChunks(score float64) []knowledge.RetrievedChunk {
	return []knowledge.RetrievedChunk{
		{
			Chunk: knowledge.Chunk{
				ID:         1,
				CropID:     "tomato",
				Stage:      "flowering",
				Lang:       "en",
				SourcePath: "crops/tomato/cherry.yaml",
				Text:       "Shake trusses gently to help pollination.",
			},
			Score: score,
		},
		{
			Chunk: knowledge.Chunk{
				ID:         2,
				CropID:     "tomato",
				Lang:       "en",
				SourcePath: "crops/tomato/cherry.yaml",
				Text:       "Water deeply twice a week.",
			},
			Score: score - 0.1,
		},
	}
}

func newSynth(retriever Retriever, chat *testutil.FakeChat, profiles ProfileSource) *Synthesizer {
	return NewSynthesizer(retriever, chat, profiles, Config{
		MinQueryLength: 8,
		ScoreFloor:     0.2,
		Temperature:    0.2,
	}, log.NewNop())
}

func TestBuildAnswerTooShortQuery(t *testing.T) {
	retriever := &fakeRetriever{}
	chat := &testutil.FakeChat{}
	s := newSynth(retriever, chat, testProfiles())

	answer, err := s.BuildAnswer(context.Background(), "u1", "hi", Options{})
	if err != nil {
		t.Fatalf("BuildAnswer: %v", err)
	}
	if answer.Kind != KindTooShort {
		t.Errorf("kind = %q, want %q", answer.Kind, KindTooShort)
	}
	if answer.Message != fallbackCapabilityHint {
		t.Errorf("message = %q", answer.Message)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("sources = %d, want 0", len(answer.Sources))
	}
	if len(retriever.queries) != 0 {
		t.Error("retriever must not be called for a too-short query")
	}
	if len(chat.Calls()) != 0 {
		t.Error("chat must not be called for a too-short query")
	}
}

func TestBuildAnswerTooShortQueryCountsCharacters(t *testing.T) {
	retriever := &fakeRetriever{}
	chat := &testutil.FakeChat{}
	s := newSynth(retriever, chat, testProfiles())

	// "Здравей" is 7 characters but 14 bytes; the gate must count characters.
	answer, err := s.BuildAnswer(context.Background(), "u1", "Здравей", Options{})
	if err != nil {
		t.Fatalf("BuildAnswer: %v", err)
	}
	if answer.Kind != KindTooShort {
		t.Errorf("kind = %q, want %q", answer.Kind, KindTooShort)
	}
	if len(retriever.queries) != 0 {
		t.Error("retriever must not be called for a too-short query")
	}

	// Eight Cyrillic characters clear the gate and reach retrieval.
	answer, err = s.BuildAnswer(context.Background(), "u1", "Здравей!", Options{})
	if err != nil {
		t.Fatalf("BuildAnswer: %v", err)
	}
	if answer.Kind != KindNoData {
		t.Errorf("kind = %q, want %q", answer.Kind, KindNoData)
	}
	if len(retriever.queries) != 1 {
		t.Errorf("retriever calls = %d, want 1", len(retriever.queries))
	}
}

func TestBuildAnswerNoMatches(t *testing.T) {
	retriever := &fakeRetriever{}
	chat := &testutil.FakeChat{}
	s := newSynth(retriever, chat, testProfiles())

	answer, err := s.BuildAnswer(context.Background(), "u1", "how often should I water?", Options{})
	if err != nil {
		t.Fatalf("BuildAnswer: %v", err)
	}
	if answer.Kind != KindNoData {
		t.Errorf("kind = %q, want %q", answer.Kind, KindNoData)
	}
	if answer.Message != fallbackNoData {
		t.Errorf("message = %q", answer.Message)
	}
	if len(chat.Calls()) != 0 {
		t.Error("chat must not be called when retrieval is empty")
	}
}

func TestBuildAnswerLowConfidence(t *testing.T) {
	retriever := &fakeRetriever{chunks: testChunks(0.15)}
	chat := &testutil.FakeChat{}
	s := newSynth(retriever, chat, testProfiles())

	answer, err := s.BuildAnswer(context.Background(), "u1", "how often should I water?", Options{})
	if err != nil {
		t.Fatalf("BuildAnswer: %v", err)
	}
	if answer.Kind != KindLowConfidence {
		t.Errorf("kind = %q, want %q", answer.Kind, KindLowConfidence)
	}
	if answer.Message != fallbackCapabilityHint {
		t.Errorf("message = %q", answer.Message)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("sources = %d, want 0", len(answer.Sources))
	}
	if len(chat.Calls()) != 0 {
		t.Error("chat must not be called below the score floor")
	}
}

func TestBuildAnswerGrounded(t *testing.T) {
	chunks := testChunks(0.83)
	retriever := &fakeRetriever{chunks: chunks}
	chat := &testutil.FakeChat{Reply: "Shake the trusses around midday."}
	s := newSynth(retriever, chat, testProfiles())

	answer, err := s.BuildAnswer(context.Background(), "u1", "how do I improve pollination?", Options{})
	if err != nil {
		t.Fatalf("BuildAnswer: %v", err)
	}
	if answer.Kind != KindGrounded {
		t.Errorf("kind = %q, want %q", answer.Kind, KindGrounded)
	}
	if answer.Message != "Shake the trusses around midday." {
		t.Errorf("message = %q", answer.Message)
	}
	if len(answer.Sources) != len(chunks) {
		t.Errorf("sources = %d, want %d", len(answer.Sources), len(chunks))
	}
	if answer.Meta.CropID != "tomato" || answer.Meta.Lang != "en" || answer.Meta.Stage != "flowering" {
		t.Errorf("meta = %+v", answer.Meta)
	}

	calls := chat.Calls()
	if len(calls) != 1 {
		t.Fatalf("chat calls = %d, want 1", len(calls))
	}
	req := calls[0]
	for _, want := range []string{
		"Use only the provided SOURCES and SNAPSHOT.",
		"Respond in EN.",
	} {
		if !strings.Contains(req.System, want) {
			t.Errorf("system prompt missing %q:\n%s", want, req.System)
		}
	}
	for _, want := range []string{
		"User question:\nhow do I improve pollination?",
		"Source 1 — crops/tomato/cherry.yaml (flowering)",
		"Source 2 — crops/tomato/cherry.yaml\n", // crop-wide chunk has no stage suffix
		"Greenhouse: Test Greenhouse (gh-1)",
		"Crop: tomato / cherry",
		"Stage: flowering",
		"Method: soil",
		"Latest telemetry @ 2026-08-27T18:00:00Z",
		"Temperature: 22.3°C",
		"Humidity: 61%",
		"Soil moisture: 36%",
		"If SOURCES cannot answer the question, say so explicitly.",
	} {
		if !strings.Contains(req.User, want) {
			t.Errorf("user prompt missing %q:\n%s", want, req.User)
		}
	}
	if req.Temperature != 0.2 {
		t.Errorf("temperature = %v, want 0.2", req.Temperature)
	}
}

func TestBuildAnswerNoTelemetry(t *testing.T) {
	profiles := testProfiles()
	profiles.hasSample = false
	chat := &testutil.FakeChat{Reply: "ok"}
	s := newSynth(&fakeRetriever{chunks: testChunks(0.9)}, chat, profiles)

	if _, err := s.BuildAnswer(context.Background(), "u1", "what should I check today?", Options{}); err != nil {
		t.Fatalf("BuildAnswer: %v", err)
	}
	if !strings.Contains(chat.Calls()[0].User, "No telemetry samples recorded yet.") {
		t.Error("snapshot missing the no-telemetry line")
	}
}

func TestBuildAnswerOverrides(t *testing.T) {
	retriever := &fakeRetriever{chunks: testChunks(0.9)}
	chat := &testutil.FakeChat{Reply: "ok"}
	s := newSynth(retriever, chat, testProfiles())

	temp := float32(0.7)
	answer, err := s.BuildAnswer(context.Background(), "u1", "what about my peppers?", Options{
		CropID:      "pepper",
		Variety:     "bell",
		TopK:        4,
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("BuildAnswer: %v", err)
	}

	q := retriever.queries[0]
	if q.CropID != "pepper" || q.TopK != 4 {
		t.Errorf("retrieval query = %+v", q)
	}
	if answer.Meta.CropID != "pepper" {
		t.Errorf("meta crop = %q, want override", answer.Meta.CropID)
	}
	req := chat.Calls()[0]
	if req.Temperature != 0.7 {
		t.Errorf("temperature = %v, want override 0.7", req.Temperature)
	}
	if !strings.Contains(req.User, "Crop: pepper / bell") {
		t.Error("snapshot does not reflect crop/variety overrides")
	}
}

func TestBuildAnswerBlankProfileFields(t *testing.T) {
	profiles := &fakeProfiles{prof: profile.Profile{ID: "gh-2", Name: "Bare", Method: "nft"}}
	retriever := &fakeRetriever{}
	s := newSynth(retriever, &testutil.FakeChat{}, profiles)

	answer, err := s.BuildAnswer(context.Background(), "u1", "a long enough question", Options{})
	if err != nil {
		t.Fatalf("BuildAnswer: %v", err)
	}
	// Missing crop falls back to the sanitized placeholder; missing language
	// defaults to en.
	if answer.Meta.CropID != "unknown" || answer.Meta.Lang != "en" {
		t.Errorf("meta = %+v", answer.Meta)
	}
	if retriever.queries[0].CropID != "unknown" {
		t.Errorf("retrieval crop = %q", retriever.queries[0].CropID)
	}
}

func TestBuildAnswerRetrieverErrorPropagates(t *testing.T) {
	wantErr := errors.New("embedding backend down")
	s := newSynth(&fakeRetriever{err: wantErr}, &testutil.FakeChat{}, testProfiles())

	_, err := s.BuildAnswer(context.Background(), "u1", "a long enough question", Options{})
	if !errors.Is(err, wantErr) {
		t.Errorf("got %v, want %v", err, wantErr)
	}
}

func TestBuildAnswerChatErrorPropagates(t *testing.T) {
	wantErr := errors.New("chat backend down")
	chat := &testutil.FakeChat{Err: wantErr}
	s := newSynth(&fakeRetriever{chunks: testChunks(0.9)}, chat, testProfiles())

	_, err := s.BuildAnswer(context.Background(), "u1", "a long enough question", Options{})
	if !errors.Is(err, wantErr) {
		t.Errorf("chat failure must propagate, got %v", err)
	}
}
