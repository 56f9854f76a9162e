package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/launchkit/internal/api/middleware"
	"github.com/yoockh/launchkit/internal/models"
	"github.com/yoockh/launchkit/internal/services"
)

type UserHandler struct {
	users services.UserService
	stats services.StatsService
}

func NewUserHandler(users services.UserService, stats services.StatsService) *UserHandler {
	return &UserHandler{users: users, stats: stats}
}

func (h *UserHandler) Me(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	u, err := h.users.Me(c.Request.Context(), userID, c.GetString(middleware.CtxEmail))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *UserHandler) UpdateMe(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req models.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "UserHandler.UpdateMe", err)
		return
	}

	u, err := h.users.UpdateMe(c.Request.Context(), userID, c.GetString(middleware.CtxEmail), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *UserHandler) DeleteMe(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	if err := h.users.DeleteMe(c.Request.Context(), userID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Message{Message: "Account deleted successfully"})
}

func (h *UserHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.stats.UserStats(c.Request.Context()))
}
