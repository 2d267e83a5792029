package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/storylingo/backend/internal/apperr"
	"github.com/storylingo/backend/internal/blobstore"
	"github.com/storylingo/backend/internal/cache"
	"github.com/storylingo/backend/internal/logger"
	"github.com/storylingo/backend/internal/repos"
	"github.com/storylingo/backend/internal/story"
	"github.com/storylingo/backend/internal/trigger"
	"github.com/storylingo/backend/internal/types"
)

const (
	bookStatusPending    = "pending"
	bookStatusProcessing = "processing"
	bookStatusCompleted  = "completed"

	statusCacheTTL = 15 * time.Second
)

// GenerateBookRequest is the user's story brief.
type GenerateBookRequest struct {
	Prompt       string `json:"prompt"`
	Genre        string `json:"genre"`
	Language     string `json:"language"`
	ReadingLevel string `json:"reading_level"`
}

// BookStatus reports generation progress derived from the blob artifacts.
type BookStatus struct {
	StoryID         string `json:"story_id"`
	Status          string `json:"status"`
	ChaptersDone    int    `json:"chapters_done"`
	TotalChapters   int    `json:"total_chapters,omitempty"`
	FinalStoryReady bool   `json:"final_story_ready"`
}

type BookService interface {
	GenerateBook(ctx context.Context, userID uuid.UUID, req GenerateBookRequest) (*types.Book, error)
	GetStatus(ctx context.Context, userID uuid.UUID, bookID uuid.UUID) (*BookStatus, error)
	GetBook(ctx context.Context, userID uuid.UUID, bookID uuid.UUID) (*types.Book, *story.FinalStory, error)
	ListBooks(ctx context.Context, userID uuid.UUID) ([]*types.Book, error)
	SetFavorite(ctx context.Context, userID uuid.UUID, bookID uuid.UUID, favorite bool) (*types.Book, error)
	DeleteBook(ctx context.Context, userID uuid.UUID, bookID uuid.UUID) error
}

type bookService struct {
	db       *gorm.DB
	log      *logger.Logger
	bookRepo repos.BookRepo
	store    blobstore.Store
	queue    *trigger.Queue
	statuses cache.Cache
}

func NewBookService(
	db *gorm.DB,
	log *logger.Logger,
	bookRepo repos.BookRepo,
	store blobstore.Store,
	queue *trigger.Queue,
	statuses cache.Cache,
) BookService {
	return &bookService{
		db:       db,
		log:      log.With("service", "BookService"),
		bookRepo: bookRepo,
		store:    store,
		queue:    queue,
		statuses: statuses,
	}
}

// GenerateBook stores the raw prompt blob, records the book row and hands the
// story to the pipeline by enqueueing manifest and cover triggers.
func (bs *bookService) GenerateBook(ctx context.Context, userID uuid.UUID, req GenerateBookRequest) (*types.Book, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", apperr.ErrInvalidArgument)
	}
	if req.Language == "" {
		return nil, fmt.Errorf("%w: language is required", apperr.ErrInvalidArgument)
	}
	if req.ReadingLevel == "" {
		req.ReadingLevel = "B1"
	}

	storyID := uuid.New().String()

	raw := story.RawPrompt{
		UserPrompt:   req.Prompt,
		Genre:        req.Genre,
		ReadingLevel: req.ReadingLevel,
		Language:     req.Language,
		CreatedAt:    time.Now().UTC(),
	}
	rawData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal raw prompt: %w", err)
	}
	if err := bs.store.Upload(ctx, blobstore.RawPromptKey(storyID), rawData); err != nil {
		return nil, fmt.Errorf("upload raw prompt: %w", err)
	}

	params, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	book := &types.Book{
		ID:           uuid.New(),
		UserID:       userID,
		StoryID:      storyID,
		Genre:        req.Genre,
		LanguageCode: req.Language,
		ReadingLevel: req.ReadingLevel,
		Params:       datatypes.JSON(params),
	}
	if _, err := bs.bookRepo.Create(ctx, nil, []*types.Book{book}); err != nil {
		return nil, fmt.Errorf("create book: %w", err)
	}

	if _, err := bs.queue.Enqueue(ctx, trigger.JobManifest, trigger.Trigger{StoryID: storyID}); err != nil {
		return nil, fmt.Errorf("enqueue manifest trigger: %w", err)
	}
	if _, err := bs.queue.Enqueue(ctx, trigger.JobCover, trigger.Trigger{StoryID: storyID}); err != nil {
		// Covers are decorative; the story pipeline proceeds without one.
		bs.log.Warn("Could not enqueue cover trigger", "story_id", storyID, "error", err)
	}

	if data, err := json.Marshal(BookStatus{StoryID: storyID, Status: bookStatusPending}); err == nil {
		if err := bs.statuses.Set(ctx, statusCacheKey(storyID), string(data), statusCacheTTL); err != nil {
			bs.log.Warn("Could not cache book status", "story_id", storyID, "error", err)
		}
	}

	bs.log.Info("Book generation started", "story_id", storyID, "user_id", userID.String())
	return book, nil
}

// GetStatus derives progress from the blob artifacts: a final story means
// completed, a manifest means processing with chunk-count progress, otherwise
// the story is still pending. Results are cached briefly.
func (bs *bookService) GetStatus(ctx context.Context, userID uuid.UUID, bookID uuid.UUID) (*BookStatus, error) {
	book, err := bs.ownedBook(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}
	storyID := book.StoryID

	if cached, err := bs.statuses.Get(ctx, statusCacheKey(storyID)); err == nil {
		var status BookStatus
		if err := json.Unmarshal([]byte(cached), &status); err == nil {
			return &status, nil
		}
	}

	status := BookStatus{StoryID: storyID, Status: bookStatusPending}

	finalExists, err := bs.store.Exists(ctx, blobstore.FinalStoryKey(storyID))
	if err != nil {
		return nil, fmt.Errorf("check final story: %w", err)
	}
	if finalExists {
		status.Status = bookStatusCompleted
		status.FinalStoryReady = true
	} else {
		manifestData, err := bs.store.Download(ctx, blobstore.ManifestKey(storyID))
		switch {
		case errors.Is(err, blobstore.ErrNotExist):
			// Manifest job has not run yet.
		case err != nil:
			return nil, fmt.Errorf("check manifest: %w", err)
		default:
			status.Status = bookStatusProcessing
			var manifest story.Manifest
			if err := json.Unmarshal(manifestData, &manifest); err == nil {
				status.TotalChapters = len(manifest.Chapters)
			}
			keys, err := bs.store.List(ctx, blobstore.ChunkPrefix(storyID))
			if err != nil {
				return nil, fmt.Errorf("count chunks: %w", err)
			}
			status.ChaptersDone = len(keys)
		}
	}

	if data, err := json.Marshal(status); err == nil {
		if err := bs.statuses.Set(ctx, statusCacheKey(storyID), string(data), statusCacheTTL); err != nil {
			bs.log.Warn("Could not cache book status", "story_id", storyID, "error", err)
		}
	}
	return &status, nil
}

// GetBook returns the book row and, when assembly has finished, the final
// story artifact.
func (bs *bookService) GetBook(ctx context.Context, userID uuid.UUID, bookID uuid.UUID) (*types.Book, *story.FinalStory, error) {
	book, err := bs.ownedBook(ctx, userID, bookID)
	if err != nil {
		return nil, nil, err
	}

	data, err := bs.store.Download(ctx, blobstore.FinalStoryKey(book.StoryID))
	if errors.Is(err, blobstore.ErrNotExist) {
		return book, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("download final story: %w", err)
	}
	var final story.FinalStory
	if err := json.Unmarshal(data, &final); err != nil {
		return nil, nil, fmt.Errorf("parse final story: %w", err)
	}

	if book.Title == "" && final.Title != "" {
		book.Title = final.Title
		if err := bs.db.WithContext(ctx).Model(book).Update("title", final.Title).Error; err != nil {
			bs.log.Warn("Could not backfill book title", "book_id", bookID, "error", err)
		}
	}
	return book, &final, nil
}

func (bs *bookService) ListBooks(ctx context.Context, userID uuid.UUID) ([]*types.Book, error) {
	books, err := bs.bookRepo.GetByUserIDs(ctx, nil, []uuid.UUID{userID})
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

func (bs *bookService) SetFavorite(ctx context.Context, userID uuid.UUID, bookID uuid.UUID, favorite bool) (*types.Book, error) {
	book, err := bs.ownedBook(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}
	if err := bs.bookRepo.SetFavorite(ctx, nil, book.ID, favorite); err != nil {
		return nil, fmt.Errorf("set favorite: %w", err)
	}
	book.IsFavorite = favorite
	return book, nil
}

// DeleteBook removes the database row and every blob under the story prefix.
func (bs *bookService) DeleteBook(ctx context.Context, userID uuid.UUID, bookID uuid.UUID) error {
	book, err := bs.ownedBook(ctx, userID, bookID)
	if err != nil {
		return err
	}
	if err := bs.bookRepo.FullDeleteByIDs(ctx, nil, []uuid.UUID{book.ID}); err != nil {
		return fmt.Errorf("delete book row: %w", err)
	}

	keys, err := bs.store.List(ctx, blobstore.StoryPrefix(book.StoryID))
	if err != nil {
		bs.log.Warn("Could not list story blobs for delete", "story_id", book.StoryID, "error", err)
		return nil
	}
	for _, key := range keys {
		if err := bs.store.Delete(ctx, key); err != nil && !errors.Is(err, blobstore.ErrNotExist) {
			bs.log.Warn("Could not delete story blob", "key", key, "error", err)
		}
	}
	if err := bs.statuses.Delete(ctx, statusCacheKey(book.StoryID)); err != nil {
		bs.log.Warn("Could not drop cached status", "story_id", book.StoryID, "error", err)
	}
	return nil
}

func (bs *bookService) ownedBook(ctx context.Context, userID uuid.UUID, bookID uuid.UUID) (*types.Book, error) {
	books, err := bs.bookRepo.GetByIDs(ctx, nil, []uuid.UUID{bookID})
	if err != nil {
		return nil, fmt.Errorf("load book: %w", err)
	}
	if len(books) == 0 {
		return nil, fmt.Errorf("%w: book %s", apperr.ErrNotFound, bookID)
	}
	book := books[0]
	if book.UserID != userID {
		return nil, fmt.Errorf("%w: book %s", apperr.ErrNotFound, bookID)
	}
	return book, nil
}

func statusCacheKey(storyID string) string {
	return "book:status:" + storyID
}
