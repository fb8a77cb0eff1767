package handlers

import (
	"net/http"

	"skylark/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthHandler drives the session protocol of the calling client.
type AuthHandler struct{}

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterHandler handles POST /api/auth/register.
func (h *AuthHandler) RegisterHandler(c *gin.Context) {
	s, ok := middleware.ShellFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Insufficient authorization"})
		return
	}
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	account, token, err := s.Session().Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, "Registration failed", err)
		return
	}
	getLogger(c).Info("Account registered", zap.String("accountId", account.ID))
	c.JSON(http.StatusCreated, gin.H{"account": account, "token": token})
}

// LoginHandler handles POST /api/auth/login.
func (h *AuthHandler) LoginHandler(c *gin.Context) {
	s, ok := middleware.ShellFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Insufficient authorization"})
		return
	}
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	account, token, err := s.Session().Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		respondError(c, "Login failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": account, "token": token})
}

// LogoutHandler handles POST /api/auth/logout. Logging out twice is fine.
func (h *AuthHandler) LogoutHandler(c *gin.Context) {
	s, ok := middleware.ShellFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Insufficient authorization"})
		return
	}
	if err := s.Session().Logout(c.Request.Context()); err != nil {
		respondError(c, "Logout failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// SessionHandler handles GET /api/session.
func (h *AuthHandler) SessionHandler(c *gin.Context) {
	s, ok := middleware.ShellFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Insufficient authorization"})
		return
	}
	view := s.Current()
	c.JSON(http.StatusOK, gin.H{
		"authenticated": view.Authenticated(),
		"account":       view.Account,
		"impersonating": view.Impersonating,
		"activeGroup":   s.ActiveGroup(),
	})
}
