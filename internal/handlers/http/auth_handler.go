package http

import (
	"net/http"
	"strings"
	"time"

	"livecast/internal/core/domain"
	"livecast/internal/core/services"
	"livecast/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AuthHandler struct {
	authService services.AuthService
	tokenTTL    time.Duration
}

func NewAuthHandler(authService services.AuthService, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		tokenTTL:    tokenTTL,
	}
}

func (h *AuthHandler) SetupRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/auth")
	{
		api.POST("/token", h.IssueToken)
	}
}

type TokenRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Role     string `json:"role" binding:"required,oneof=broadcaster viewer"`
}

// IssueToken hands out a signed access token for a broadcaster or viewer.
// TODO: validate credentials against a user store once one exists.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	req.Username = strings.TrimSpace(req.Username)

	userID := domain.UserID(uuid.New().String())
	role := domain.UserRole(req.Role)

	accessToken, err := h.authService.GenerateToken(userID, req.Username, role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"username":     req.Username,
		"role":         role,
		"access_token": accessToken,
		"expires_in":   int(h.tokenTTL / time.Second),
	})
}
