package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"testing"

	"github.com/storylingo/backend/internal/blobstore"
	"github.com/storylingo/backend/internal/story"
)

func TestCoverRunRendersPNGAndRecord(t *testing.T) {
	t.Setenv("COVER_FONT_PATH", "")
	t.Setenv("STORIES_BUCKET_NAME", "stories-test")
	t.Setenv("STORIES_PUBLIC_BASE_URL", "")

	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	runner, err := NewCoverRunner(store, testLogger())
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	seedManifest(t, store, "story-1", 3)

	if err := runner.Run(ctx, "story-1"); err != nil {
		t.Fatalf("run: %v", err)
	}

	imageData, err := store.Download(ctx, blobstore.CoverImageKey("story-1"))
	if err != nil {
		t.Fatalf("cover image not written: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(imageData))
	if err != nil {
		t.Fatalf("cover is not a valid PNG: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != coverWidth || bounds.Dy() != coverHeight {
		t.Fatalf("cover size = %dx%d, want %dx%d", bounds.Dx(), bounds.Dy(), coverWidth, coverHeight)
	}

	recordData, err := store.Download(ctx, blobstore.CoverKey("story-1"))
	if err != nil {
		t.Fatalf("cover record not written: %v", err)
	}
	var cover story.Cover
	if err := json.Unmarshal(recordData, &cover); err != nil {
		t.Fatalf("parse cover record: %v", err)
	}
	if cover.StoryID != "story-1" || cover.Status != story.StatusCompleted {
		t.Fatalf("cover record = %+v", cover)
	}
	want := "https://storage.googleapis.com/stories-test/" + blobstore.CoverImageKey("story-1")
	if cover.CoverURL != want {
		t.Fatalf("cover url = %q, want %q", cover.CoverURL, want)
	}
}

func TestCoverPaletteIsDeterministic(t *testing.T) {
	top1, bottom1 := paletteFor("story-abc")
	top2, bottom2 := paletteFor("story-abc")
	if top1 != top2 || bottom1 != bottom2 {
		t.Fatal("palette changed between runs for the same story")
	}
}
