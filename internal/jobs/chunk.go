package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/storylingo/backend/internal/blobstore"
	"github.com/storylingo/backend/internal/llm"
	"github.com/storylingo/backend/internal/logger"
	"github.com/storylingo/backend/internal/story"
	"github.com/storylingo/backend/internal/trigger"
)

// ChunkRunner generates one chapter's prose per chunk id. Re-running a chunk
// overwrites the prior artifact.
type ChunkRunner struct {
	log   *logger.Logger
	store blobstore.Store
	llm   llm.Client
}

func NewChunkRunner(store blobstore.Store, llmClient llm.Client, log *logger.Logger) *ChunkRunner {
	return &ChunkRunner{
		log:   log.With("job", trigger.JobChunk),
		store: store,
		llm:   llmClient,
	}
}

// Run executes the payload of a claimed chunk trigger: either a single
// chunk_id or an inclusive (chapter_start, chapter_end) range processed
// sequentially. A failure mid-range aborts the remaining chapters; chapters
// already uploaded stand (they are idempotent overwrites on retry).
func (r *ChunkRunner) Run(ctx context.Context, trig *trigger.Trigger) error {
	start, end, err := chapterRange(trig)
	if err != nil {
		return err
	}

	manifest, err := r.loadManifest(ctx, trig.StoryID)
	if err != nil {
		return err
	}

	for n := start; n <= end; n++ {
		if err := r.generateChapter(ctx, manifest, n); err != nil {
			return fmt.Errorf("chunk %d of story %s: %w", n, trig.StoryID, err)
		}
	}
	return nil
}

func chapterRange(trig *trigger.Trigger) (int, int, error) {
	switch {
	case trig.ChunkID != nil:
		if *trig.ChunkID < 1 {
			return 0, 0, fmt.Errorf("%w: chunk_id %d out of range", trigger.ErrMalformed, *trig.ChunkID)
		}
		return *trig.ChunkID, *trig.ChunkID, nil
	case trig.ChapterStart != nil && trig.ChapterEnd != nil:
		if *trig.ChapterStart < 1 || *trig.ChapterEnd < *trig.ChapterStart {
			return 0, 0, fmt.Errorf("%w: bad chapter range [%d,%d]", trigger.ErrMalformed, *trig.ChapterStart, *trig.ChapterEnd)
		}
		return *trig.ChapterStart, *trig.ChapterEnd, nil
	default:
		return 0, 0, fmt.Errorf("%w: trigger carries neither chunk_id nor chapter range", trigger.ErrMalformed)
	}
}

func (r *ChunkRunner) loadManifest(ctx context.Context, storyID string) (*story.Manifest, error) {
	raw, err := r.store.Download(ctx, blobstore.ManifestKey(storyID))
	if err != nil {
		return nil, fmt.Errorf("download manifest for story %s: %w", storyID, err)
	}
	var manifest story.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest for story %s: %w", storyID, err)
	}
	return &manifest, nil
}

func (r *ChunkRunner) generateChapter(ctx context.Context, manifest *story.Manifest, chunkID int) error {
	if chunkID > len(manifest.Chapters) {
		return fmt.Errorf("chapter %d beyond manifest outline (%d chapters)", chunkID, len(manifest.Chapters))
	}
	chapter := manifest.Chapters[chunkID-1]
	guidance := GuidanceForLevel(manifest.ReadingLevel)

	system := fmt.Sprintf(
		"You write chapters for graded readers in %s at CEFR level %s.\n"+
			"Vocabulary: %s\nGrammar: %s\nSentences: %s\n"+
			"Aim for about %d words. Output only the chapter prose, no headings.",
		manifest.Language, manifest.ReadingLevel,
		guidance.Vocabulary, guidance.Grammar, guidance.Sentences,
		guidance.TargetWords,
	)
	user := fmt.Sprintf(
		"Story: %s (genre: %s)\nChapter %d of %d: %s\nWhat happens: %s",
		manifest.Title, manifest.Genre,
		chapter.ChapterNumber, len(manifest.Chapters), chapter.Title, chapter.Summary,
	)

	content, err := r.llm.GenerateText(ctx, system, user)
	if err != nil {
		return fmt.Errorf("generate text: %w", err)
	}
	content = strings.TrimSpace(content)

	chunk := story.Chunk{
		StoryID:      manifest.StoryID,
		ChunkID:      chunkID,
		ChapterTitle: chapter.Title,
		Content:      content,
		Status:       story.StatusCompleted,
		WordCount:    len(strings.Fields(content)),
	}
	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("marshal chunk: %w", err)
	}
	if err := r.store.Upload(ctx, blobstore.ChunkKey(manifest.StoryID, chunkID), data); err != nil {
		return fmt.Errorf("upload chunk: %w", err)
	}

	r.log.Info("Chunk created", "story_id", manifest.StoryID, "chunk_id", chunkID, "word_count", chunk.WordCount)
	return nil
}
