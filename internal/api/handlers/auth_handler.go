package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/launchkit/internal/api/middleware"
	"github.com/yoockh/launchkit/internal/models"
	"github.com/yoockh/launchkit/internal/services"
)

type AuthHandler struct {
	svc services.AuthService
}

func NewAuthHandler(svc services.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "AuthHandler.Login", err)
		return
	}

	res, err := h.svc.Login(c.Request.Context(), req, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AuthHandler) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "AuthHandler.Signup", err)
		return
	}

	res, err := h.svc.Signup(c.Request.Context(), req, c.ClientIP())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "AuthHandler.ResetPassword", err)
		return
	}

	h.svc.ResetPassword(c.Request.Context(), req.Email, c.ClientIP())
	c.JSON(http.StatusOK, models.Message{Message: "Password reset email sent"})
}

// Logout runs behind OptionalJWT; an absent or invalid token still succeeds.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.svc.Logout(c.Request.Context(),
		c.GetString(middleware.CtxAccessToken),
		c.GetString(middleware.CtxUserID),
		c.ClientIP())
	c.JSON(http.StatusOK, models.Message{Message: "Logged out successfully"})
}
