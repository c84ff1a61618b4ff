package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tinygreenhouse/sprout/internal/knowledge"
	"github.com/tinygreenhouse/sprout/internal/log"
	"github.com/tinygreenhouse/sprout/internal/testutil"
)

// fakeStore records the call sequence so tests can assert the
// delete-before-insert ordering.
type fakeStore struct {
	ops       []string
	deleted   [][]string
	inserted  [][]knowledge.Chunk
	deleteErr error
	insertErr map[string]error // keyed by first chunk's crop id
}

func (f *fakeStore) DeleteSources(_ context.Context, sourcePaths []string) error {
	f.ops = append(f.ops, "delete")
	f.deleted = append(f.deleted, sourcePaths)
	return f.deleteErr
}

func (f *fakeStore) InsertChunks(_ context.Context, chunks []knowledge.Chunk) error {
	f.ops = append(f.ops, "insert")
	f.inserted = append(f.inserted, chunks)
	if len(chunks) > 0 {
		if err := f.insertErr[chunks[0].CropID]; err != nil {
			return err
		}
	}
	return nil
}

func writeSeed(t *testing.T, root, crop, name, content string) string {
	t.Helper()
	dir := filepath.Join(root, "crops", crop)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

const tomatoSeed = `
crop:
  id: tomato
  variety: cherry
overview: |
  Cherry tomatoes like warmth and steady moisture.
faq:
  - q: How often to water?
    a: Every two days in summer.
`

func TestIngestAllCommitsSeedDocument(t *testing.T) {
	root := t.TempDir()
	writeSeed(t, root, "tomato", "cherry.yaml", tomatoSeed)

	store := &fakeStore{}
	p := NewPipeline(&testutil.FakeEmbedder{}, store, 0, log.NewNop())

	summary, err := p.IngestAll(context.Background(), root)
	if err != nil {
		t.Fatalf("IngestAll: %v", err)
	}
	if summary.Documents != 1 || summary.Failed != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Chunks != 2 {
		t.Errorf("chunks = %d, want 2 (overview + faq)", summary.Chunks)
	}

	if len(store.ops) != 2 || store.ops[0] != "delete" || store.ops[1] != "insert" {
		t.Fatalf("ops = %v, want delete before insert", store.ops)
	}
	if len(store.deleted[0]) != 1 || store.deleted[0][0] != "crops/tomato/cherry.yaml" {
		t.Errorf("deleted sources = %v", store.deleted[0])
	}
	for _, c := range store.inserted[0] {
		if len(c.Embedding) != knowledge.Dimension {
			t.Errorf("chunk embedding width = %d", len(c.Embedding))
		}
		if c.SourcePath != "crops/tomato/cherry.yaml" {
			t.Errorf("chunk source = %q", c.SourcePath)
		}
	}
}

func TestIngestAllIncludesCompanionMarkdown(t *testing.T) {
	root := t.TempDir()
	writeSeed(t, root, "tomato", "cherry.yaml", tomatoSeed)
	writeSeed(t, root, "tomato", "cherry-notes.md", "Prune suckers weekly.")
	writeSeed(t, root, "tomato", "unrelated.md", "Not a companion file.")

	store := &fakeStore{}
	p := NewPipeline(&testutil.FakeEmbedder{}, store, 0, log.NewNop())

	if _, err := p.IngestAll(context.Background(), root); err != nil {
		t.Fatalf("IngestAll: %v", err)
	}

	sources := map[string]bool{}
	for _, c := range store.inserted[0] {
		sources[c.SourcePath] = true
	}
	if !sources["crops/tomato/cherry-notes.md"] {
		t.Error("companion markdown missing from inserts")
	}
	if sources["crops/tomato/unrelated.md"] {
		t.Error("non-companion markdown was ingested")
	}
	if len(store.deleted[0]) != 2 {
		t.Errorf("deleted sources = %v, want yaml and companion", store.deleted[0])
	}
}

func TestIngestAllSkipsMissingCropMetadata(t *testing.T) {
	root := t.TempDir()
	writeSeed(t, root, "mystery", "doc.yaml", "overview: some text\n")

	store := &fakeStore{}
	p := NewPipeline(&testutil.FakeEmbedder{}, store, 0, log.NewNop())

	summary, err := p.IngestAll(context.Background(), root)
	if err != nil {
		t.Fatalf("IngestAll: %v", err)
	}
	if summary.Skipped != 1 || summary.Documents != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if len(store.ops) != 0 {
		t.Errorf("store touched for a skipped document: %v", store.ops)
	}
}

func TestIngestAllSkipsEmptyDocumentWithoutDeleting(t *testing.T) {
	root := t.TempDir()
	writeSeed(t, root, "tomato", "empty.yaml", "crop:\n  id: tomato\n  variety: cherry\n")

	store := &fakeStore{}
	p := NewPipeline(&testutil.FakeEmbedder{}, store, 0, log.NewNop())

	summary, err := p.IngestAll(context.Background(), root)
	if err != nil {
		t.Fatalf("IngestAll: %v", err)
	}
	if summary.Skipped != 1 {
		t.Errorf("summary = %+v", summary)
	}
	// Zero chunks must not trigger delete-and-leave-empty.
	if len(store.ops) != 0 {
		t.Errorf("store touched for an empty document: %v", store.ops)
	}
}

func TestIngestAllGroupFailureDoesNotBlockOthers(t *testing.T) {
	root := t.TempDir()
	writeSeed(t, root, "basil", "genovese.yaml", `
crop:
  id: basil
  variety: genovese
overview: Basil hates cold drafts.
`)
	writeSeed(t, root, "tomato", "cherry.yaml", tomatoSeed)

	store := &fakeStore{insertErr: map[string]error{"basil": errors.New("constraint violation")}}
	p := NewPipeline(&testutil.FakeEmbedder{}, store, 0, log.NewNop())

	summary, err := p.IngestAll(context.Background(), root)
	if err != nil {
		t.Fatalf("IngestAll: %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("failed = %d, want 1", summary.Failed)
	}
	if summary.Documents != 1 || summary.Chunks == 0 {
		t.Errorf("tomato document must still commit, summary = %+v", summary)
	}
}

func TestIngestAllEmbedErrorFailsGroupBeforeDelete(t *testing.T) {
	root := t.TempDir()
	writeSeed(t, root, "tomato", "cherry.yaml", tomatoSeed)

	store := &fakeStore{}
	p := NewPipeline(&testutil.FakeEmbedder{Err: errors.New("backend down")}, store, 0, log.NewNop())

	summary, err := p.IngestAll(context.Background(), root)
	if err != nil {
		t.Fatalf("IngestAll: %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	// An embedding failure must leave existing rows untouched.
	if len(store.ops) != 0 {
		t.Errorf("store touched before embeddings were complete: %v", store.ops)
	}
}

func TestIngestAllMissingRootIsNotError(t *testing.T) {
	p := NewPipeline(&testutil.FakeEmbedder{}, &fakeStore{}, 0, log.NewNop())

	summary, err := p.IngestAll(context.Background(), filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("IngestAll: %v", err)
	}
	if summary.Documents != 0 {
		t.Errorf("summary = %+v", summary)
	}
}
