package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/storylingo/backend/internal/blobstore"
	"github.com/storylingo/backend/internal/story"
	"github.com/storylingo/backend/internal/trigger"
)

func intPtr(n int) *int { return &n }

func TestChunkRunSingleChapter(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	client := &fakeLLM{
		generateText: func(_ context.Context, _, user string) (string, error) {
			return "  El faro estaba solo en la costa.  \n", nil
		},
	}
	runner := NewChunkRunner(store, client, testLogger())
	seedManifest(t, store, "story-1", 10)

	trig := &trigger.Trigger{StoryID: "story-1", ChunkID: intPtr(3)}
	if err := runner.Run(ctx, trig); err != nil {
		t.Fatalf("run: %v", err)
	}

	data, err := store.Download(ctx, blobstore.ChunkKey("story-1", 3))
	if err != nil {
		t.Fatalf("chunk not written: %v", err)
	}
	var chunk story.Chunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		t.Fatalf("parse chunk: %v", err)
	}
	if chunk.ChunkID != 3 || chunk.StoryID != "story-1" {
		t.Fatalf("chunk = %+v", chunk)
	}
	if chunk.Content != "El faro estaba solo en la costa." {
		t.Fatalf("content not trimmed: %q", chunk.Content)
	}
	if chunk.WordCount != 7 {
		t.Fatalf("word count = %d, want 7", chunk.WordCount)
	}
	if chunk.Status != story.StatusCompleted {
		t.Fatalf("status = %q", chunk.Status)
	}
}

func TestChunkRunIsIdempotentOverwrite(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	content := "first version"
	client := &fakeLLM{
		generateText: func(_ context.Context, _, _ string) (string, error) {
			return content, nil
		},
	}
	runner := NewChunkRunner(store, client, testLogger())
	seedManifest(t, store, "story-1", 5)

	trig := &trigger.Trigger{StoryID: "story-1", ChunkID: intPtr(2)}
	if err := runner.Run(ctx, trig); err != nil {
		t.Fatalf("first run: %v", err)
	}
	content = "second version"
	if err := runner.Run(ctx, trig); err != nil {
		t.Fatalf("second run: %v", err)
	}

	data, _ := store.Download(ctx, blobstore.ChunkKey("story-1", 2))
	var chunk story.Chunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		t.Fatalf("parse chunk: %v", err)
	}
	if chunk.Content != "second version" {
		t.Fatalf("content = %q, want overwrite", chunk.Content)
	}
}

func TestChunkRunBatchRange(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	client := &fakeLLM{
		generateText: func(_ context.Context, _, _ string) (string, error) {
			return "chapter prose", nil
		},
	}
	runner := NewChunkRunner(store, client, testLogger())
	seedManifest(t, store, "story-1", 10)

	trig := &trigger.Trigger{
		StoryID:      "story-1",
		ChapterStart: intPtr(4),
		ChapterEnd:   intPtr(6),
		BatchID:      "batch-1",
	}
	if err := runner.Run(ctx, trig); err != nil {
		t.Fatalf("run: %v", err)
	}

	for n := 4; n <= 6; n++ {
		if exists, _ := store.Exists(ctx, blobstore.ChunkKey("story-1", n)); !exists {
			t.Fatalf("chunk %d missing", n)
		}
	}
	if exists, _ := store.Exists(ctx, blobstore.ChunkKey("story-1", 3)); exists {
		t.Fatal("chunk outside range written")
	}
}

func TestChunkRunMidBatchFailureAbortsRemainder(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	calls := 0
	client := &fakeLLM{
		generateText: func(_ context.Context, _, _ string) (string, error) {
			calls++
			if calls == 2 {
				return "", fmt.Errorf("model unavailable")
			}
			return "chapter prose", nil
		},
	}
	runner := NewChunkRunner(store, client, testLogger())
	seedManifest(t, store, "story-1", 10)

	trig := &trigger.Trigger{
		StoryID:      "story-1",
		ChapterStart: intPtr(1),
		ChapterEnd:   intPtr(3),
	}
	if err := runner.Run(ctx, trig); err == nil {
		t.Fatal("mid-batch failure not surfaced")
	}

	// The chapter before the failure stands; nothing after it was attempted.
	if exists, _ := store.Exists(ctx, blobstore.ChunkKey("story-1", 1)); !exists {
		t.Fatal("chapter 1 should survive the aborted batch")
	}
	if exists, _ := store.Exists(ctx, blobstore.ChunkKey("story-1", 3)); exists {
		t.Fatal("chapter 3 generated after mid-batch failure")
	}
	if calls != 2 {
		t.Fatalf("llm calls = %d, want 2", calls)
	}
}

func TestChunkRunRejectsPayloadWithoutRange(t *testing.T) {
	runner := NewChunkRunner(blobstore.NewMemoryStore(), &fakeLLM{}, testLogger())
	err := runner.Run(context.Background(), &trigger.Trigger{StoryID: "story-1"})
	if !errors.Is(err, trigger.ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}

	err = runner.Run(context.Background(), &trigger.Trigger{
		StoryID:      "story-1",
		ChapterStart: intPtr(5),
		ChapterEnd:   intPtr(2),
	})
	if !errors.Is(err, trigger.ErrMalformed) {
		t.Fatalf("inverted range err = %v, want ErrMalformed", err)
	}
}
