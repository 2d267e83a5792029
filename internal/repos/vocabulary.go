package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storylingo/backend/internal/logger"
	"github.com/storylingo/backend/internal/types"
)

type VocabularyRepo interface {
	Create(ctx context.Context, tx *gorm.DB, words []*types.VocabularyWord) ([]*types.VocabularyWord, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, wordIDs []uuid.UUID) ([]*types.VocabularyWord, error)
	GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.VocabularyWord, error)
	CountDistinctByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
	WordExists(ctx context.Context, tx *gorm.DB, userID uuid.UUID, word string) (bool, error)
	FullDeleteByIDs(ctx context.Context, tx *gorm.DB, wordIDs []uuid.UUID) error
}

type vocabularyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVocabularyRepo(db *gorm.DB, baseLog *logger.Logger) VocabularyRepo {
	return &vocabularyRepo{db: db, log: baseLog.With("repo", "VocabularyRepo")}
}

func (vr *vocabularyRepo) Create(ctx context.Context, tx *gorm.DB, words []*types.VocabularyWord) ([]*types.VocabularyWord, error) {
	transaction := tx
	if transaction == nil {
		transaction = vr.db
	}
	if len(words) == 0 {
		return []*types.VocabularyWord{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&words).Error; err != nil {
		return nil, err
	}
	return words, nil
}

func (vr *vocabularyRepo) GetByIDs(ctx context.Context, tx *gorm.DB, wordIDs []uuid.UUID) ([]*types.VocabularyWord, error) {
	transaction := tx
	if transaction == nil {
		transaction = vr.db
	}
	var results []*types.VocabularyWord
	if len(wordIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", wordIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (vr *vocabularyRepo) GetByUserIDs(ctx context.Context, tx *gorm.DB, userIDs []uuid.UUID) ([]*types.VocabularyWord, error) {
	transaction := tx
	if transaction == nil {
		transaction = vr.db
	}
	var results []*types.VocabularyWord
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

func (vr *vocabularyRepo) CountDistinctByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = vr.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.VocabularyWord{}).
		Where("user_id = ?", userID).
		Distinct("word").
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (vr *vocabularyRepo) WordExists(ctx context.Context, tx *gorm.DB, userID uuid.UUID, word string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = vr.db
	}
	var count int64
	if err := transaction.WithContext(ctx).
		Model(&types.VocabularyWord{}).
		Where("user_id = ? AND word = ?", userID, word).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (vr *vocabularyRepo) FullDeleteByIDs(ctx context.Context, tx *gorm.DB, wordIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = vr.db
	}
	if len(wordIDs) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Unscoped().
		Where("id IN ?", wordIDs).
		Delete(&types.VocabularyWord{}).Error
}
