package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"image/color"
	"image/png"
	"os"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"

	"github.com/storylingo/backend/internal/blobstore"
	"github.com/storylingo/backend/internal/logger"
	"github.com/storylingo/backend/internal/story"
	"github.com/storylingo/backend/internal/trigger"
)

const (
	coverWidth  = 768
	coverHeight = 1024
)

// CoverRunner renders a gradient cover image for a story and records its URL
// in a cover artifact. The gradient palette is derived from the story id so
// re-runs are deterministic.
type CoverRunner struct {
	log   *logger.Logger
	store blobstore.Store

	fontFace font.Face
}

func NewCoverRunner(store blobstore.Store, log *logger.Logger) (*CoverRunner, error) {
	runnerLog := log.With("job", trigger.JobCover)

	var face font.Face
	if fontPath := strings.TrimSpace(os.Getenv("COVER_FONT_PATH")); fontPath != "" {
		loaded, err := loadFontFace(fontPath, 54)
		if err != nil {
			return nil, fmt.Errorf("load cover font: %w", err)
		}
		face = loaded
	} else {
		runnerLog.Warn("COVER_FONT_PATH not set, covers will be rendered without title text")
	}

	return &CoverRunner{log: runnerLog, store: store, fontFace: face}, nil
}

func loadFontFace(path string, points float64) (font.Face, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	parsed, err := truetype.Parse(raw)
	if err != nil {
		return nil, err
	}
	return truetype.NewFace(parsed, &truetype.Options{Size: points}), nil
}

// Run reads the manifest for its title, renders the cover PNG, uploads it and
// writes the cover JSON pointing at the public URL.
func (r *CoverRunner) Run(ctx context.Context, storyID string) error {
	raw, err := r.store.Download(ctx, blobstore.ManifestKey(storyID))
	if err != nil {
		return fmt.Errorf("download manifest for story %s: %w", storyID, err)
	}
	var manifest story.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return fmt.Errorf("parse manifest for story %s: %w", storyID, err)
	}

	buf, err := r.render(storyID, manifest.Title)
	if err != nil {
		return fmt.Errorf("render cover for story %s: %w", storyID, err)
	}

	imageKey := blobstore.CoverImageKey(storyID)
	if err := r.store.Upload(ctx, imageKey, buf.Bytes()); err != nil {
		return fmt.Errorf("upload cover image for story %s: %w", storyID, err)
	}

	cover := story.Cover{
		StoryID:  storyID,
		Title:    manifest.Title,
		CoverURL: blobstore.PublicURL(imageKey),
		Status:   story.StatusCompleted,
	}
	data, err := json.Marshal(cover)
	if err != nil {
		return fmt.Errorf("marshal cover record: %w", err)
	}
	if err := r.store.Upload(ctx, blobstore.CoverKey(storyID), data); err != nil {
		return fmt.Errorf("upload cover record for story %s: %w", storyID, err)
	}

	r.log.Info("Cover created", "story_id", storyID, "key", imageKey)
	return nil
}

func (r *CoverRunner) render(storyID, title string) (*bytes.Buffer, error) {
	top, bottom := paletteFor(storyID)

	dc := gg.NewContext(coverWidth, coverHeight)
	grad := gg.NewLinearGradient(0, 0, 0, coverHeight)
	grad.AddColorStop(0, top)
	grad.AddColorStop(1, bottom)
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, coverWidth, coverHeight)
	dc.Fill()

	if r.fontFace != nil && strings.TrimSpace(title) != "" {
		dc.SetFontFace(r.fontFace)
		dc.SetColor(color.NRGBA{R: 255, G: 255, B: 255, A: 230})
		dc.DrawStringWrapped(title, coverWidth/2, coverHeight/2, 0.5, 0.5, coverWidth-120, 1.4, gg.AlignCenter)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dc.Image()); err != nil {
		return nil, err
	}
	return &buf, nil
}

var coverPalettes = [][2]color.NRGBA{
	{{R: 0x2b, G: 0x5a, B: 0x9e, A: 0xff}, {R: 0x0d, G: 0x1b, B: 0x3a, A: 0xff}},
	{{R: 0x9e, G: 0x2b, B: 0x52, A: 0xff}, {R: 0x3a, G: 0x0d, B: 0x1e, A: 0xff}},
	{{R: 0x2b, G: 0x9e, B: 0x6e, A: 0xff}, {R: 0x0d, G: 0x3a, B: 0x26, A: 0xff}},
	{{R: 0xc4, G: 0x7a, B: 0x1e, A: 0xff}, {R: 0x4a, G: 0x2a, B: 0x05, A: 0xff}},
	{{R: 0x6e, G: 0x2b, B: 0x9e, A: 0xff}, {R: 0x26, G: 0x0d, B: 0x3a, A: 0xff}},
}

func paletteFor(storyID string) (color.NRGBA, color.NRGBA) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(storyID))
	p := coverPalettes[int(h.Sum32())%len(coverPalettes)]
	return p[0], p[1]
}
