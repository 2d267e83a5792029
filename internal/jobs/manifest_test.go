package jobs

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/storylingo/backend/internal/blobstore"
	"github.com/storylingo/backend/internal/story"
	"github.com/storylingo/backend/internal/trigger"
)

func seedRawPrompt(t *testing.T, store *blobstore.MemoryStore, storyID string) {
	t.Helper()
	raw := story.RawPrompt{
		UserPrompt:   "a lighthouse keeper finds a message in a bottle",
		Genre:        "mystery",
		ReadingLevel: "B1",
		Language:     "Spanish",
		CreatedAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal raw prompt: %v", err)
	}
	if err := store.Upload(context.Background(), blobstore.RawPromptKey(storyID), data); err != nil {
		t.Fatalf("seed raw prompt: %v", err)
	}
}

func outlineResponse(chapters int) map[string]any {
	outline := map[string]any{"title": "The Lighthouse"}
	var list []any
	for n := 1; n <= chapters; n++ {
		list = append(list, map[string]any{
			"chapterNumber": n,
			"title":         "Chapter title",
			"summary":       "What happens",
		})
	}
	outline["chapters"] = list
	return outline
}

func TestManifestRunFansOutChunkAndOrchestratorTriggers(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	queue := trigger.NewQueue(store, testLogger())
	client := &fakeLLM{
		generateJSON: func(_ context.Context, _, _, schemaName string, _ map[string]any) (map[string]any, error) {
			if schemaName != "story_outline" {
				t.Fatalf("schema name = %q", schemaName)
			}
			return outlineResponse(10), nil
		},
	}
	runner := NewManifestRunner(store, queue, client, testLogger())
	seedRawPrompt(t, store, "story-1")

	results, err := runner.Run(ctx, "story-1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(results) != 11 {
		t.Fatalf("fan-out results = %d, want 11 (10 chunks + orchestrator)", len(results))
	}
	if FanoutFailures(results) != 0 {
		t.Fatalf("fan-out failures = %d", FanoutFailures(results))
	}

	manifestData, err := store.Download(ctx, blobstore.ManifestKey("story-1"))
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	var manifest story.Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	if manifest.Title != "The Lighthouse" || len(manifest.Chapters) != 10 {
		t.Fatalf("manifest = %q with %d chapters", manifest.Title, len(manifest.Chapters))
	}

	chunkKeys, err := queue.ListScheduled(ctx, trigger.JobChunk)
	if err != nil {
		t.Fatalf("list chunk triggers: %v", err)
	}
	if len(chunkKeys) != 10 {
		t.Fatalf("chunk triggers = %d, want 10", len(chunkKeys))
	}

	orchTrig, err := queue.ClaimFirst(ctx, trigger.JobOrchestrator)
	if err != nil {
		t.Fatalf("claim orchestrator trigger: %v", err)
	}
	if orchTrig == nil || orchTrig.ExpectedChunks == nil || *orchTrig.ExpectedChunks != 10 {
		t.Fatalf("orchestrator trigger = %+v", orchTrig)
	}

	// Each chunk trigger carries exactly one chapter.
	seen := map[int]bool{}
	for i := 0; i < 10; i++ {
		trig, err := queue.ClaimFirst(ctx, trigger.JobChunk)
		if err != nil {
			t.Fatalf("claim chunk trigger: %v", err)
		}
		if trig == nil || trig.ChunkID == nil {
			t.Fatalf("chunk trigger %d = %+v", i, trig)
		}
		if seen[*trig.ChunkID] {
			t.Fatalf("duplicate chunk id %d", *trig.ChunkID)
		}
		seen[*trig.ChunkID] = true
	}
	for n := 1; n <= 10; n++ {
		if !seen[n] {
			t.Fatalf("no trigger for chapter %d", n)
		}
	}
}

func TestManifestRunRejectsBadChapterNumbering(t *testing.T) {
	store := blobstore.NewMemoryStore()
	queue := trigger.NewQueue(store, testLogger())
	client := &fakeLLM{
		generateJSON: func(_ context.Context, _, _, _ string, _ map[string]any) (map[string]any, error) {
			outline := outlineResponse(3)
			outline["chapters"].([]any)[1].(map[string]any)["chapterNumber"] = 7
			return outline, nil
		},
	}
	runner := NewManifestRunner(store, queue, client, testLogger())
	seedRawPrompt(t, store, "story-1")

	if _, err := runner.Run(context.Background(), "story-1"); err == nil {
		t.Fatal("bad chapter numbering accepted")
	}
	if exists, _ := store.Exists(context.Background(), blobstore.ManifestKey("story-1")); exists {
		t.Fatal("manifest written despite invalid outline")
	}
}

func TestManifestRunMissingRawPromptIsFatal(t *testing.T) {
	store := blobstore.NewMemoryStore()
	queue := trigger.NewQueue(store, testLogger())
	runner := NewManifestRunner(store, queue, &fakeLLM{}, testLogger())

	_, err := runner.Run(context.Background(), "story-unknown")
	if err == nil || !strings.Contains(err.Error(), "raw prompt") {
		t.Fatalf("err = %v, want raw prompt failure", err)
	}
}
