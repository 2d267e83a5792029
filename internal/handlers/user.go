package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/storylingo/backend/internal/apperr"
	"github.com/storylingo/backend/internal/requestdata"
	"github.com/storylingo/backend/internal/services"
)

type UserHandler struct {
	userService services.UserService
}

func NewUserHandler(userService services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

func (uh *UserHandler) GetMe(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondServiceError(c, fmt.Errorf("%w: no session", apperr.ErrUnauthorized))
		return
	}
	user, err := uh.userService.GetUser(c.Request.Context(), rd.UserID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, user)
}

func (uh *UserHandler) UpdateMe(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondServiceError(c, fmt.Errorf("%w: no session", apperr.ErrUnauthorized))
		return
	}
	var req struct {
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		NativeLanguage string `json:"native_language"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request", err)
		return
	}
	user, err := uh.userService.UpdateUser(c.Request.Context(), rd.UserID, req.FirstName, req.LastName, req.NativeLanguage)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, user)
}

func (uh *UserHandler) DeleteMe(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondServiceError(c, fmt.Errorf("%w: no session", apperr.ErrUnauthorized))
		return
	}
	if err := uh.userService.DeleteUser(c.Request.Context(), rd.UserID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"message": "account deleted"})
}

func (uh *UserHandler) GetStats(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondServiceError(c, fmt.Errorf("%w: no session", apperr.ErrUnauthorized))
		return
	}
	stats, err := uh.userService.GetStats(c.Request.Context(), rd.UserID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, stats)
}
