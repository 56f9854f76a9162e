package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yoockh/launchkit/internal/models"
)

// Pinger checks one backing service.
type Pinger func(ctx context.Context) error

type HealthHandler struct {
	service string
	checks  map[string]Pinger
	timeout time.Duration
}

func NewHealthHandler(service string, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{service: service, checks: checks, timeout: 3 * time.Second}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.Health{Status: "healthy", Service: h.service})
}

func (h *HealthHandler) Detailed(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := models.Health{Status: "healthy", Service: h.service, Checks: map[string]string{}}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			out.Status = "unhealthy"
			out.Checks[name] = "error: " + err.Error()
			continue
		}
		out.Checks[name] = "connected"
	}

	status := http.StatusOK
	if out.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, out)
}
