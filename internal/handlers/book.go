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

type BookHandler struct {
	bookService services.BookService
}

func NewBookHandler(bookService services.BookService) *BookHandler {
	return &BookHandler{bookService: bookService}
}

func (bh *BookHandler) Generate(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondServiceError(c, fmt.Errorf("%w: no session", apperr.ErrUnauthorized))
		return
	}
	var req services.GenerateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	book, err := bh.bookService.GenerateBook(c.Request.Context(), rd.UserID, req)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, book)
}

func (bh *BookHandler) Status(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondServiceError(c, fmt.Errorf("%w: no session", apperr.ErrUnauthorized))
		return
	}
	bookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid book id"))
		return
	}
	status, err := bh.bookService.GetStatus(c.Request.Context(), rd.UserID, bookID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, status)
}

func (bh *BookHandler) Get(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondServiceError(c, fmt.Errorf("%w: no session", apperr.ErrUnauthorized))
		return
	}
	bookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid book id"))
		return
	}
	book, final, err := bh.bookService.GetBook(c.Request.Context(), rd.UserID, bookID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"book": book, "story": final})
}

func (bh *BookHandler) List(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondServiceError(c, fmt.Errorf("%w: no session", apperr.ErrUnauthorized))
		return
	}
	books, err := bh.bookService.ListBooks(c.Request.Context(), rd.UserID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"books": books})
}

func (bh *BookHandler) SetFavorite(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondServiceError(c, fmt.Errorf("%w: no session", apperr.ErrUnauthorized))
		return
	}
	bookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid book id"))
		return
	}
	var req struct {
		Favorite bool `json:"favorite"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	book, err := bh.bookService.SetFavorite(c.Request.Context(), rd.UserID, bookID, req.Favorite)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, book)
}

func (bh *BookHandler) Delete(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondServiceError(c, fmt.Errorf("%w: no session", apperr.ErrUnauthorized))
		return
	}
	bookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", fmt.Errorf("invalid book id"))
		return
	}
	if err := bh.bookService.DeleteBook(c.Request.Context(), rd.UserID, bookID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": "book deleted"})
}
