package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/storylingo/backend/internal/apperr"
	"github.com/storylingo/backend/internal/cache"
	"github.com/storylingo/backend/internal/repos"
	"github.com/storylingo/backend/internal/types"
)

type fakeLLM struct {
	calls    int
	response map[string]any
	err      error
}

func (f *fakeLLM) GenerateJSON(context.Context, string, string, string, map[string]any) (map[string]any, error) {
	f.calls++
	return f.response, f.err
}

func (f *fakeLLM) GenerateText(context.Context, string, string) (string, error) {
	return "", fmt.Errorf("unexpected GenerateText call")
}

func newTranslationFixture(t *testing.T, client *fakeLLM) (TranslationService, uuid.UUID) {
	t.Helper()
	db := testDB(t)
	log := testLogger()
	userID := uuid.New()
	if err := db.Create(&types.User{ID: userID, Email: "reader@example.com", Password: "x"}).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	svc := NewTranslationService(db, log, client, repos.NewVocabularyRepo(db, log), cache.NewMemoryCache())
	return svc, userID
}

func TestTranslateCachesLookups(t *testing.T) {
	ctx := context.Background()
	client := &fakeLLM{response: map[string]any{
		"translations":   []any{"lighthouse", "beacon"},
		"part_of_speech": "noun",
		"examples":       []any{"El faro brilla de noche."},
	}}
	svc, _ := newTranslationFixture(t, client)

	first, err := svc.Translate(ctx, "faro", "es", "en")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(first.Translations) != 2 || first.Translations[0] != "lighthouse" {
		t.Fatalf("translations = %v", first.Translations)
	}
	if first.Word != "faro" || first.PartOfSpeech != "noun" {
		t.Fatalf("result = %+v", first)
	}

	second, err := svc.Translate(ctx, "faro", "es", "en")
	if err != nil {
		t.Fatalf("cached translate: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("llm calls = %d, want 1 (second lookup from cache)", client.calls)
	}
	if second.Translations[0] != first.Translations[0] {
		t.Fatalf("cached result differs: %+v", second)
	}
}

func TestTranslateCapsCandidatesAndExamples(t *testing.T) {
	client := &fakeLLM{response: map[string]any{
		"translations":   []any{"a", "b", "c", "d", "e", "f", "g"},
		"part_of_speech": "noun",
		"examples":       []any{"1", "2", "3", "4", "5"},
	}}
	svc, _ := newTranslationFixture(t, client)

	result, err := svc.Translate(context.Background(), "palabra", "es", "en")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(result.Translations) != maxTranslations {
		t.Fatalf("translations = %d, want %d", len(result.Translations), maxTranslations)
	}
	if len(result.Examples) != maxExamples {
		t.Fatalf("examples = %d, want %d", len(result.Examples), maxExamples)
	}
}

func TestTranslateValidatesInput(t *testing.T) {
	svc, _ := newTranslationFixture(t, &fakeLLM{})
	if _, err := svc.Translate(context.Background(), " ", "es", "en"); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("empty word err = %v", err)
	}
	if _, err := svc.Translate(context.Background(), "faro", "", "en"); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("missing language err = %v", err)
	}
}

func TestSaveWordRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	svc, userID := newTranslationFixture(t, &fakeLLM{})

	if _, err := svc.SaveWord(ctx, userID, "faro", "lighthouse", "es", "El faro brilla."); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := svc.SaveWord(ctx, userID, "faro", "beacon", "es", ""); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Fatalf("duplicate err = %v, want ErrInvalidArgument", err)
	}
}

func TestVocabularyStatsGroupByLanguage(t *testing.T) {
	ctx := context.Background()
	svc, userID := newTranslationFixture(t, &fakeLLM{})

	words := []struct{ word, lang string }{
		{"faro", "es"}, {"gato", "es"}, {"phare", "fr"},
	}
	for _, w := range words {
		if _, err := svc.SaveWord(ctx, userID, w.word, "t", w.lang, ""); err != nil {
			t.Fatalf("save %s: %v", w.word, err)
		}
	}

	stats, err := svc.GetVocabularyStats(ctx, userID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalWords != 3 || stats.ByLanguage["es"] != 2 || stats.ByLanguage["fr"] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestDeleteWordEnforcesOwnership(t *testing.T) {
	ctx := context.Background()
	svc, userID := newTranslationFixture(t, &fakeLLM{})

	entry, err := svc.SaveWord(ctx, userID, "faro", "lighthouse", "es", "")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := svc.DeleteWord(ctx, uuid.New(), entry.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("stranger delete err = %v, want ErrNotFound", err)
	}
	if err := svc.DeleteWord(ctx, userID, entry.ID); err != nil {
		t.Fatalf("owner delete: %v", err)
	}
	remaining, err := svc.ListWords(ctx, userID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("words left = %d", len(remaining))
	}
}
