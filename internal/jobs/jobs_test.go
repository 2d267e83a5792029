package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/storylingo/backend/internal/blobstore"
	"github.com/storylingo/backend/internal/logger"
	"github.com/storylingo/backend/internal/story"
)

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// fakeLLM satisfies llm.Client with per-test behavior.
type fakeLLM struct {
	generateJSON func(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error)
	generateText func(ctx context.Context, system, user string) (string, error)
}

func (f *fakeLLM) GenerateJSON(ctx context.Context, system, user, schemaName string, schema map[string]any) (map[string]any, error) {
	if f.generateJSON == nil {
		return nil, fmt.Errorf("unexpected GenerateJSON call")
	}
	return f.generateJSON(ctx, system, user, schemaName, schema)
}

func (f *fakeLLM) GenerateText(ctx context.Context, system, user string) (string, error) {
	if f.generateText == nil {
		return "", fmt.Errorf("unexpected GenerateText call")
	}
	return f.generateText(ctx, system, user)
}

func seedManifest(t *testing.T, store *blobstore.MemoryStore, storyID string, chapters int) *story.Manifest {
	t.Helper()
	manifest := &story.Manifest{
		StoryID:      storyID,
		Title:        "The Lighthouse",
		UserPrompt:   "a lighthouse keeper finds a message in a bottle",
		Genre:        "mystery",
		ReadingLevel: "B1",
		Language:     "Spanish",
	}
	for n := 1; n <= chapters; n++ {
		manifest.Chapters = append(manifest.Chapters, story.Chapter{
			ChapterNumber: n,
			Title:         fmt.Sprintf("Chapter %d title", n),
			Summary:       fmt.Sprintf("Chapter %d events", n),
		})
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	if err := store.Upload(context.Background(), blobstore.ManifestKey(storyID), data); err != nil {
		t.Fatalf("seed manifest: %v", err)
	}
	return manifest
}

func seedChunk(t *testing.T, store *blobstore.MemoryStore, storyID string, chunkID int) {
	t.Helper()
	chunk := story.Chunk{
		StoryID:      storyID,
		ChunkID:      chunkID,
		ChapterTitle: fmt.Sprintf("Chapter %d title", chunkID),
		Content:      fmt.Sprintf("Prose of chapter %d.", chunkID),
		Status:       story.StatusCompleted,
		WordCount:    4,
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		t.Fatalf("marshal chunk: %v", err)
	}
	if err := store.Upload(context.Background(), blobstore.ChunkKey(storyID, chunkID), data); err != nil {
		t.Fatalf("seed chunk: %v", err)
	}
}
