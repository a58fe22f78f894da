package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/popup-village/portal-backend/internal/service"
)

// AuthHandler exposes the passwordless login endpoints.
type AuthHandler struct {
	authService service.AuthService
}

type requestLoginCodeReq struct {
	Email string `json:"email" binding:"required,email"`
}

type verifyLoginCodeReq struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// RequestLoginCode emails a one-time login code to an existing citizen.
func (h *AuthHandler) RequestLoginCode(c *gin.Context) {
	var req requestLoginCodeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authService.RequestLoginCode(c.Request.Context(), req.Email); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Login code sent"})
}

// VerifyLoginCode exchanges an emailed code for a JWT.
func (h *AuthHandler) VerifyLoginCode(c *gin.Context) {
	var req verifyLoginCodeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, citizen, err := h.authService.AuthenticateByCode(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"citizen": toCitizenResponse(citizen),
	})
}
