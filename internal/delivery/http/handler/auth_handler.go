package handler

import (
	"errors"
	"net/http"

	"github.com/ammar0101/campus-security-system/internal/service"
	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService service.AuthService
}

func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var input struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		bindError(c, err)
		return
	}

	res, err := h.authService.Login(c.Request.Context(), input.Email, input.Password)
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password", nil)
		return
	case errors.Is(err, service.ErrInactiveAccount):
		fail(c, http.StatusForbidden, "ACCOUNT_INACTIVE", "account is not active", nil)
		return
	case err != nil:
		writeError(c, err)
		return
	}

	respond(c, http.StatusOK, res)
}
