package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/storylingo/backend/internal/blobstore"
	"github.com/storylingo/backend/internal/logger"
	"github.com/storylingo/backend/internal/story"
	"github.com/storylingo/backend/internal/trigger"
)

// FinalAssemblyRunner merges a story's chunks into the final artifact.
type FinalAssemblyRunner struct {
	log   *logger.Logger
	store blobstore.Store
}

func NewFinalAssemblyRunner(store blobstore.Store, log *logger.Logger) *FinalAssemblyRunner {
	return &FinalAssemblyRunner{
		log:   log.With("job", trigger.JobFinalAssembly),
		store: store,
	}
}

// Run reads the manifest, collects every chunk in [1, len(chapters)], and
// writes the final story sorted by chunk id. Missing individual chunks are
// skipped with a warning (the final story carries a numbering gap); only zero
// chunks found is fatal.
func (r *FinalAssemblyRunner) Run(ctx context.Context, storyID string) error {
	raw, err := r.store.Download(ctx, blobstore.ManifestKey(storyID))
	if err != nil {
		return fmt.Errorf("download manifest for story %s: %w", storyID, err)
	}
	var manifest story.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return fmt.Errorf("parse manifest for story %s: %w", storyID, err)
	}

	chunks := make([]story.Chunk, 0, len(manifest.Chapters))
	for chunkID := 1; chunkID <= len(manifest.Chapters); chunkID++ {
		data, err := r.store.Download(ctx, blobstore.ChunkKey(storyID, chunkID))
		if err != nil {
			r.log.Warn("Could not load chunk, skipping", "story_id", storyID, "chunk_id", chunkID, "error", err)
			continue
		}
		var chunk story.Chunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			r.log.Warn("Could not parse chunk, skipping", "story_id", storyID, "chunk_id", chunkID, "error", err)
			continue
		}
		chunks = append(chunks, chunk)
	}
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks found to assemble for story %s", storyID)
	}

	// The only ordering guarantee in the pipeline: chapters sorted by chunk id.
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkID < chunks[j].ChunkID })

	title := manifest.Title
	if title == "" {
		title = "Untitled Story"
	}

	final := story.FinalStory{
		StoryID:       storyID,
		Title:         title,
		CoverURL:      r.coverURL(ctx, storyID),
		Language:      manifest.Language,
		Genre:         manifest.Genre,
		ReadingLevel:  manifest.ReadingLevel,
		Chapters:      make([]story.FinalChapter, 0, len(chunks)),
		Content:       make([]string, 0, len(chunks)),
		Status:        story.StatusCompleted,
		TotalChapters: len(chunks),
	}
	for _, chunk := range chunks {
		chapterTitle := chunk.ChapterTitle
		if chapterTitle == "" {
			chapterTitle = fmt.Sprintf("Chapter %d", chunk.ChunkID)
		}
		final.Chapters = append(final.Chapters, story.FinalChapter{
			ChapterNumber: chunk.ChunkID,
			Title:         chapterTitle,
			Content:       chunk.Content,
		})
		final.Content = append(final.Content, chunk.Content)
	}

	data, err := json.Marshal(final)
	if err != nil {
		return fmt.Errorf("marshal final story: %w", err)
	}
	if err := r.store.Upload(ctx, blobstore.FinalStoryKey(storyID), data); err != nil {
		return fmt.Errorf("upload final story %s: %w", storyID, err)
	}

	r.log.Info("Final story assembled",
		"story_id", storyID,
		"title", final.Title,
		"chapters", final.TotalChapters,
		"missing", len(manifest.Chapters)-len(chunks),
	)
	return nil
}

// coverURL returns the rendered cover's URL when the cover job has run.
// Covers are optional; absence is not an error.
func (r *FinalAssemblyRunner) coverURL(ctx context.Context, storyID string) string {
	data, err := r.store.Download(ctx, blobstore.CoverKey(storyID))
	if err != nil {
		return ""
	}
	var cover story.Cover
	if err := json.Unmarshal(data, &cover); err != nil {
		return ""
	}
	return cover.CoverURL
}
