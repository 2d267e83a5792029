package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storylingo/backend/internal/logger"
	"github.com/storylingo/backend/internal/types"
)

type BookRepo interface {
	Create(ctx context.Context, tx *gorm.DB, books []*types.Book) ([]*types.Book, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, bookIDs []uuid.UUID) ([]*types.Book, error)
	GetByStoryIDs(ctx context.Context, tx *gorm.DB, storyIDs []string) ([]*types.Book, error)
	GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.Book, error)
	CountByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
	CountFavoritesByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
	DistinctLanguagesByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]string, error)
	SetFavorite(ctx context.Context, tx *gorm.DB, bookID uuid.UUID, favorite bool) error
	FullDeleteByIDs(ctx context.Context, tx *gorm.DB, bookIDs []uuid.UUID) error
}

type bookRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewBookRepo(db *gorm.DB, baseLog *logger.Logger) BookRepo {
	return &bookRepo{db: db, log: baseLog.With("repo", "BookRepo")}
}

func (br *bookRepo) Create(ctx context.Context, tx *gorm.DB, books []*types.Book) ([]*types.Book, error) {
	transaction := tx
	if transaction == nil {
		transaction = br.db
	}
	if len(books) == 0 {
		return []*types.Book{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (br *bookRepo) GetByIDs(ctx context.Context, tx *gorm.DB, bookIDs []uuid.UUID) ([]*types.Book, error) {
	transaction := tx
	if transaction == nil {
		transaction = br.db
	}
	var results []*types.Book
	if len(bookIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", bookIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (br *bookRepo) GetByStoryIDs(ctx context.Context, tx *gorm.DB, storyIDs []string) ([]*types.Book, error) {
	transaction := tx
	if transaction == nil {
		transaction = br.db
	}
	var results []*types.Book
	if len(storyIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("story_id IN ?", storyIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (br *bookRepo) GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.Book, error) {
	transaction := tx
	if transaction == nil {
		transaction = br.db
	}
	var results []*types.Book
	if len(userIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id IN ?", userIDs).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (br *bookRepo) CountByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = br.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Book{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (br *bookRepo) CountFavoritesByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = br.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.Book{}).
		Where("user_id = ? AND is_favorite = ?", userID, true).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (br *bookRepo) DistinctLanguagesByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]string, error) {
	transaction := tx
	if transaction == nil {
		transaction = br.db
	}
	var languages []string
	if err := transaction.WithContext(ctx).
		Model(&types.Book{}).
		Where("user_id = ? AND language_code <> ''", userID).
		Distinct("language_code").
		Pluck("language_code", &languages).Error; err != nil {
		return nil, err
	}
	return languages, nil
}

func (br *bookRepo) SetFavorite(ctx context.Context, tx *gorm.DB, bookID uuid.UUID, favorite bool) error {
	transaction := tx
	if transaction == nil {
		transaction = br.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Book{}).
		Where("id = ?", bookID).
		Update("is_favorite", favorite).Error
}

func (br *bookRepo) FullDeleteByIDs(ctx context.Context, tx *gorm.DB, bookIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = br.db
	}
	if len(bookIDs) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Unscoped().
		Where("id IN ?", bookIDs).
		Delete(&types.Book{}).Error
}
