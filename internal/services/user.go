package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storylingo/backend/internal/apperr"
	"github.com/storylingo/backend/internal/logger"
	"github.com/storylingo/backend/internal/repos"
	"github.com/storylingo/backend/internal/types"
)

// UserStats summarizes a user's learning activity across books and saved
// vocabulary.
type UserStats struct {
	TotalBooks        int64    `json:"total_books"`
	FavoriteBooks     int64    `json:"favorite_books"`
	VocabularyWords   int64    `json:"vocabulary_words"`
	LanguagesLearning []string `json:"languages_learning"`
}

type UserService interface {
	GetUser(ctx context.Context, userID uuid.UUID) (*types.User, error)
	UpdateUser(ctx context.Context, userID uuid.UUID, firstName, lastName, nativeLanguage string) (*types.User, error)
	DeleteUser(ctx context.Context, userID uuid.UUID) error
	GetStats(ctx context.Context, userID uuid.UUID) (*UserStats, error)
}

type userService struct {
	db             *gorm.DB
	log            *logger.Logger
	userRepo       repos.UserRepo
	userTokenRepo  repos.UserTokenRepo
	bookRepo       repos.BookRepo
	vocabularyRepo repos.VocabularyRepo
}

func NewUserService(
	db *gorm.DB,
	log *logger.Logger,
	userRepo repos.UserRepo,
	userTokenRepo repos.UserTokenRepo,
	bookRepo repos.BookRepo,
	vocabularyRepo repos.VocabularyRepo,
) UserService {
	return &userService{
		db:             db,
		log:            log.With("service", "UserService"),
		userRepo:       userRepo,
		userTokenRepo:  userTokenRepo,
		bookRepo:       bookRepo,
		vocabularyRepo: vocabularyRepo,
	}
}

func (us *userService) GetUser(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	users, err := us.userRepo.GetByIDs(ctx, nil, []uuid.UUID{userID})
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, userID)
	}
	return users[0], nil
}

func (us *userService) UpdateUser(ctx context.Context, userID uuid.UUID, firstName, lastName, nativeLanguage string) (*types.User, error) {
	user, err := us.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(firstName); v != "" {
		user.FirstName = v
	}
	if v := strings.TrimSpace(lastName); v != "" {
		user.LastName = v
	}
	if v := strings.TrimSpace(nativeLanguage); v != "" {
		user.NativeLanguage = v
	}
	if err := us.userRepo.Update(ctx, nil, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

func (us *userService) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	return us.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := us.userTokenRepo.FullDeleteByUserIDs(ctx, tx, []uuid.UUID{userID}); err != nil {
			return fmt.Errorf("delete user tokens: %w", err)
		}
		if err := us.userRepo.FullDeleteByIDs(ctx, tx, []uuid.UUID{userID}); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}

func (us *userService) GetStats(ctx context.Context, userID uuid.UUID) (*UserStats, error) {
	totalBooks, err := us.bookRepo.CountByUserID(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("count books: %w", err)
	}
	favorites, err := us.bookRepo.CountFavoritesByUserID(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("count favorites: %w", err)
	}
	words, err := us.vocabularyRepo.CountDistinctByUserID(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("count vocabulary: %w", err)
	}
	languages, err := us.bookRepo.DistinctLanguagesByUserID(ctx, nil, userID)
	if err != nil {
		return nil, fmt.Errorf("list languages: %w", err)
	}
	if languages == nil {
		languages = []string{}
	}
	return &UserStats{
		TotalBooks:        totalBooks,
		FavoriteBooks:     favorites,
		VocabularyWords:   words,
		LanguagesLearning: languages,
	}, nil
}
