package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storylingo/backend/internal/apperr"
	"github.com/storylingo/backend/internal/cache"
	"github.com/storylingo/backend/internal/llm"
	"github.com/storylingo/backend/internal/logger"
	"github.com/storylingo/backend/internal/repos"
	"github.com/storylingo/backend/internal/types"
)

const (
	maxTranslations = 5
	maxExamples     = 3

	translationCacheTTL = 24 * time.Hour
)

// Translation is the structured lookup result for one word or phrase.
type Translation struct {
	Word         string   `json:"word"`
	LanguageCode string   `json:"language_code"`
	Translations []string `json:"translations"`
	PartOfSpeech string   `json:"part_of_speech,omitempty"`
	Examples     []string `json:"examples,omitempty"`
}

// VocabularyStats summarizes a user's saved words.
type VocabularyStats struct {
	TotalWords int64            `json:"total_words"`
	ByLanguage map[string]int64 `json:"by_language"`
}

type TranslationService interface {
	Translate(ctx context.Context, word, sourceLang, targetLang string) (*Translation, error)
	SaveWord(ctx context.Context, userID uuid.UUID, word, translation, languageCode, usage string) (*types.VocabularyWord, error)
	ListWords(ctx context.Context, userID uuid.UUID) ([]*types.VocabularyWord, error)
	DeleteWord(ctx context.Context, userID uuid.UUID, wordID uuid.UUID) error
	GetVocabularyStats(ctx context.Context, userID uuid.UUID) (*VocabularyStats, error)
}

type translationService struct {
	db             *gorm.DB
	log            *logger.Logger
	llmClient      llm.Client
	vocabularyRepo repos.VocabularyRepo
	lookups        cache.Cache
}

func NewTranslationService(
	db *gorm.DB,
	log *logger.Logger,
	llmClient llm.Client,
	vocabularyRepo repos.VocabularyRepo,
	lookups cache.Cache,
) TranslationService {
	return &translationService{
		db:             db,
		log:            log.With("service", "TranslationService"),
		llmClient:      llmClient,
		vocabularyRepo: vocabularyRepo,
		lookups:        lookups,
	}
}

var translationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"translations": map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "string"},
			"maxItems": maxTranslations,
		},
		"part_of_speech": map[string]any{"type": "string"},
		"examples": map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "string"},
			"maxItems": maxExamples,
		},
	},
	"required":             []string{"translations", "part_of_speech", "examples"},
	"additionalProperties": false,
}

// Translate looks a word up in the cache first, then asks the model for a
// structured translation. Cache entries are keyed per word and language pair.
func (ts *translationService) Translate(ctx context.Context, word, sourceLang, targetLang string) (*Translation, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return nil, fmt.Errorf("%w: word is required", apperr.ErrInvalidArgument)
	}
	if sourceLang == "" || targetLang == "" {
		return nil, fmt.Errorf("%w: source and target languages are required", apperr.ErrInvalidArgument)
	}

	cacheKey := translationCacheKey(word, sourceLang, targetLang)
	if cached, err := ts.lookups.Get(ctx, cacheKey); err == nil {
		var result Translation
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			return &result, nil
		}
	}

	system := fmt.Sprintf(
		"You are a dictionary for %s learners whose native language is %s. "+
			"Return up to %d translations, the part of speech, and up to %d short example sentences in %s.",
		sourceLang, targetLang, maxTranslations, maxExamples, sourceLang,
	)
	user := fmt.Sprintf("Translate %q from %s to %s.", word, sourceLang, targetLang)

	payload, err := ts.llmClient.GenerateJSON(ctx, system, user, "translation", translationSchema)
	if err != nil {
		return nil, fmt.Errorf("translate %q: %w", word, err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal translation payload: %w", err)
	}
	var result Translation
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("parse translation payload: %w", err)
	}
	result.Word = word
	result.LanguageCode = sourceLang
	if len(result.Translations) > maxTranslations {
		result.Translations = result.Translations[:maxTranslations]
	}
	if len(result.Examples) > maxExamples {
		result.Examples = result.Examples[:maxExamples]
	}
	if len(result.Translations) == 0 {
		return nil, fmt.Errorf("no translations returned for %q", word)
	}

	if data, err := json.Marshal(result); err == nil {
		if err := ts.lookups.Set(ctx, cacheKey, string(data), translationCacheTTL); err != nil {
			ts.log.Warn("Could not cache translation", "word", word, "error", err)
		}
	}
	return &result, nil
}

func (ts *translationService) SaveWord(ctx context.Context, userID uuid.UUID, word, translation, languageCode, usage string) (*types.VocabularyWord, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return nil, fmt.Errorf("%w: word is required", apperr.ErrInvalidArgument)
	}

	exists, err := ts.vocabularyRepo.WordExists(ctx, nil, userID, word)
	if err != nil {
		return nil, fmt.Errorf("check word: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: word already saved", apperr.ErrInvalidArgument)
	}

	entry := &types.VocabularyWord{
		ID:           uuid.New(),
		UserID:       userID,
		Word:         word,
		Translation:  strings.TrimSpace(translation),
		LanguageCode: languageCode,
		Context:      strings.TrimSpace(usage),
	}
	if _, err := ts.vocabularyRepo.Create(ctx, nil, []*types.VocabularyWord{entry}); err != nil {
		return nil, fmt.Errorf("save word: %w", err)
	}
	return entry, nil
}

func (ts *translationService) ListWords(ctx context.Context, userID uuid.UUID) ([]*types.VocabularyWord, error) {
	words, err := ts.vocabularyRepo.GetByUserIDs(ctx, nil, []uuid.UUID{userID})
	if err != nil {
		return nil, fmt.Errorf("list words: %w", err)
	}
	return words, nil
}

func (ts *translationService) DeleteWord(ctx context.Context, userID uuid.UUID, wordID uuid.UUID) error {
	words, err := ts.vocabularyRepo.GetByIDs(ctx, nil, []uuid.UUID{wordID})
	if err != nil {
		return fmt.Errorf("load word: %w", err)
	}
	if len(words) == 0 || words[0].UserID != userID {
		return fmt.Errorf("%w: word %s", apperr.ErrNotFound, wordID)
	}
	return ts.vocabularyRepo.FullDeleteByIDs(ctx, nil, []uuid.UUID{wordID})
}

func (ts *translationService) GetVocabularyStats(ctx context.Context, userID uuid.UUID) (*VocabularyStats, error) {
	words, err := ts.vocabularyRepo.GetByUserIDs(ctx, nil, []uuid.UUID{userID})
	if err != nil {
		return nil, fmt.Errorf("load words: %w", err)
	}
	stats := &VocabularyStats{
		TotalWords: int64(len(words)),
		ByLanguage: map[string]int64{},
	}
	for _, w := range words {
		if w.LanguageCode != "" {
			stats.ByLanguage[w.LanguageCode]++
		}
	}
	return stats, nil
}

func translationCacheKey(word, sourceLang, targetLang string) string {
	return "translation:" + sourceLang + ":" + targetLang + ":" + strings.ToLower(word)
}
