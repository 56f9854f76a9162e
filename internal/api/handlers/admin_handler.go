package handlers

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/launchkit/internal/models"
	"github.com/yoockh/launchkit/internal/services"
	"github.com/yoockh/launchkit/internal/utils"
)

type AdminHandler struct {
	admin services.AdminService
	stats services.StatsService
}

func NewAdminHandler(admin services.AdminService, stats services.StatsService) *AdminHandler {
	return &AdminHandler{admin: admin, stats: stats}
}

func (h *AdminHandler) ListUsers(c *gin.Context) {
	var q models.UserQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "AdminHandler.ListUsers", "invalid query", err))
		return
	}

	out, err := h.admin.ListUsers(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *AdminHandler) SetAdmin(c *gin.Context) {
	actor, ok := requireUserID(c)
	if !ok {
		return
	}

	var req models.SetAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "AdminHandler.SetAdmin", err)
		return
	}

	if err := h.admin.SetAdmin(c.Request.Context(), actor, c.Param("id"), *req.IsAdmin); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Message{Message: "User updated successfully"})
}

func (h *AdminHandler) DeleteUser(c *gin.Context) {
	actor, ok := requireUserID(c)
	if !ok {
		return
	}

	if err := h.admin.DeleteUser(c.Request.Context(), actor, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.Message{Message: "User deleted successfully"})
}

func (h *AdminHandler) Export(c *gin.Context) {
	actor, ok := requireUserID(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.admin.ExportCSV(c.Request.Context(), actor, &buf); err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="users.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (h *AdminHandler) Stats(c *gin.Context) {
	st, err := h.stats.AdminStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *AdminHandler) Activity(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(c, utils.E(utils.CodeInvalidArgument, "AdminHandler.Activity", "limit must be a number", err))
			return
		}
		limit = n
	}

	out, err := h.admin.Activity(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
