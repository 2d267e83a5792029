package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/storylingo/backend/internal/blobstore"
	"github.com/storylingo/backend/internal/llm"
	"github.com/storylingo/backend/internal/logger"
	"github.com/storylingo/backend/internal/story"
	"github.com/storylingo/backend/internal/trigger"
)

const defaultChapterCount = 10

// FanoutResult reports the outcome of one downstream trigger write during
// manifest fan-out. Fan-out is best effort per item; callers inspect the
// slice to decide whether partial fan-out is acceptable.
type FanoutResult struct {
	Chapter   int
	TriggerID string
	Err       error
}

// ManifestRunner turns a stored raw prompt into a chapter outline and fans
// out the downstream chunk and orchestrator triggers.
type ManifestRunner struct {
	log   *logger.Logger
	store blobstore.Store
	queue *trigger.Queue
	llm   llm.Client
}

func NewManifestRunner(store blobstore.Store, queue *trigger.Queue, llmClient llm.Client, log *logger.Logger) *ManifestRunner {
	return &ManifestRunner{
		log:   log.With("job", trigger.JobManifest),
		store: store,
		queue: queue,
		llm:   llmClient,
	}
}

var manifestSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title": map[string]any{"type": "string"},
		"chapters": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"chapterNumber": map[string]any{"type": "integer"},
					"title":         map[string]any{"type": "string"},
					"summary":       map[string]any{"type": "string"},
				},
				"required":             []string{"chapterNumber", "title", "summary"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"title", "chapters"},
	"additionalProperties": false,
}

// Run reads the raw prompt for storyID, produces the manifest artifact and
// enqueues one chunk trigger per chapter plus one orchestrator trigger. The
// LLM call and the manifest write are fatal on failure; individual fan-out
// failures are reported in the returned slice but never abort the rest.
func (r *ManifestRunner) Run(ctx context.Context, storyID string) ([]FanoutResult, error) {
	raw, err := r.store.Download(ctx, blobstore.RawPromptKey(storyID))
	if err != nil {
		return nil, fmt.Errorf("download raw prompt for story %s: %w", storyID, err)
	}
	var prompt story.RawPrompt
	if err := json.Unmarshal(raw, &prompt); err != nil {
		return nil, fmt.Errorf("parse raw prompt for story %s: %w", storyID, err)
	}

	manifest, err := r.generateOutline(ctx, storyID, prompt)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := r.store.Upload(ctx, blobstore.ManifestKey(storyID), data); err != nil {
		return nil, fmt.Errorf("upload manifest for story %s: %w", storyID, err)
	}
	r.log.Info("Manifest created", "story_id", storyID, "title", manifest.Title, "chapters", len(manifest.Chapters))

	return r.fanOut(ctx, storyID, len(manifest.Chapters)), nil
}

func (r *ManifestRunner) generateOutline(ctx context.Context, storyID string, prompt story.RawPrompt) (*story.Manifest, error) {
	system := fmt.Sprintf(
		"You are a planner for graded readers. Design a %d-chapter short story outline in %s "+
			"for a learner at CEFR level %s. The story must fit the %s genre. "+
			"Chapter summaries are written in English and describe what happens, not how it is told.",
		defaultChapterCount, prompt.Language, prompt.ReadingLevel, prompt.Genre,
	)
	user := fmt.Sprintf("Story request: %s", prompt.UserPrompt)

	obj, err := r.llm.GenerateJSON(ctx, system, user, "story_outline", manifestSchema)
	if err != nil {
		return nil, fmt.Errorf("generate outline for story %s: %w", storyID, err)
	}

	// Round-trip through JSON to decode the schema-shaped map strictly.
	buf, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("re-marshal outline: %w", err)
	}
	var outline struct {
		Title    string          `json:"title"`
		Chapters []story.Chapter `json:"chapters"`
	}
	if err := json.Unmarshal(buf, &outline); err != nil {
		return nil, fmt.Errorf("outline for story %s does not match schema: %w", storyID, err)
	}
	if outline.Title == "" || len(outline.Chapters) == 0 {
		return nil, fmt.Errorf("outline for story %s is missing title or chapters", storyID)
	}
	for i := range outline.Chapters {
		if outline.Chapters[i].ChapterNumber != i+1 {
			return nil, fmt.Errorf("outline for story %s has bad chapter numbering at index %d", storyID, i)
		}
		if outline.Chapters[i].Title == "" {
			return nil, fmt.Errorf("outline for story %s has an untitled chapter %d", storyID, i+1)
		}
	}

	return &story.Manifest{
		StoryID:      storyID,
		Title:        outline.Title,
		UserPrompt:   prompt.UserPrompt,
		Genre:        prompt.Genre,
		ReadingLevel: prompt.ReadingLevel,
		Language:     prompt.Language,
		Chapters:     outline.Chapters,
	}, nil
}

func (r *ManifestRunner) fanOut(ctx context.Context, storyID string, chapters int) []FanoutResult {
	results := make([]FanoutResult, 0, chapters+1)

	for n := 1; n <= chapters; n++ {
		chunkID := n
		id, err := r.queue.Enqueue(ctx, trigger.JobChunk, trigger.Trigger{
			StoryID: storyID,
			ChunkID: &chunkID,
		})
		if err != nil {
			r.log.Error("Chunk trigger write failed", "story_id", storyID, "chunk_id", n, "error", err)
		}
		results = append(results, FanoutResult{Chapter: n, TriggerID: id, Err: err})
	}

	expected := chapters
	id, err := r.queue.Enqueue(ctx, trigger.JobOrchestrator, trigger.Trigger{
		StoryID:        storyID,
		ExpectedChunks: &expected,
	})
	if err != nil {
		r.log.Error("Orchestrator trigger write failed", "story_id", storyID, "error", err)
	}
	results = append(results, FanoutResult{Chapter: 0, TriggerID: id, Err: err})

	return results
}

// FanoutFailures counts the failed items of a fan-out.
func FanoutFailures(results []FanoutResult) int {
	n := 0
	for _, res := range results {
		if res.Err != nil {
			n++
		}
	}
	return n
}
