package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/storylingo/backend/internal/apperr"
	"github.com/storylingo/backend/internal/requestdata"
	"github.com/storylingo/backend/internal/services"
)

type TranslationHandler struct {
	translationService services.TranslationService
}

func NewTranslationHandler(translationService services.TranslationService) *TranslationHandler {
	return &TranslationHandler{translationService: translationService}
}

func (th *TranslationHandler) Translate(c *gin.Context) {
	word := c.Query("word")
	sourceLang := c.Query("source_lang")
	targetLang := c.Query("target_lang")
	result, err := th.translationService.Translate(c.Request.Context(), word, sourceLang, targetLang)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}

func (th *TranslationHandler) SaveWord(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondServiceError(c, fmt.Errorf("%w: no session", apperr.ErrUnauthorized))
		return
	}
	var req struct {
		Word         string `json:"word"`
		Translation  string `json:"translation"`
		LanguageCode string `json:"language_code"`
		Context      string `json:"context"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	entry, err := th.translationService.SaveWord(c.Request.Context(), rd.UserID, req.Word, req.Translation, req.LanguageCode, req.Context)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (th *TranslationHandler) ListWords(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondServiceError(c, fmt.Errorf("%w: no session", apperr.ErrUnauthorized))
		return
	}
	words, err := th.translationService.ListWords(c.Request.Context(), rd.UserID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"words": words})
}

func (th *TranslationHandler) DeleteWord(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondServiceError(c, fmt.Errorf("%w: no session", apperr.ErrUnauthorized))
		return
	}
	wordID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid word id"))
		return
	}
	if err := th.translationService.DeleteWord(c.Request.Context(), rd.UserID, wordID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": "word deleted"})
}

func (th *TranslationHandler) VocabularyStats(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondServiceError(c, fmt.Errorf("%w: no session", apperr.ErrUnauthorized))
		return
	}
	stats, err := th.translationService.GetVocabularyStats(c.Request.Context(), rd.UserID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, stats)
}
