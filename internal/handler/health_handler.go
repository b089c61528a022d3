package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck reports whether a dependency is reachable. A nil check marks
// the dependency as disabled.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	checks  map[string]HealthCheck
	info    gin.H
	started time.Time
	timeout time.Duration
}

func NewHealthHandler(checks map[string]HealthCheck, info gin.H) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		info:    info,
		started: time.Now(),
		timeout: 2 * time.Second,
	}
}

func (h *HealthHandler) Register(router gin.IRouter) {
	router.GET("/health", h.Health)
	router.GET("/info", h.Info)
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	services := gin.H{}
	status := "healthy"

	for name, check := range h.checks {
		if check == nil {
			services[name] = "disabled"
			continue
		}
		if err := check(ctx); err != nil {
			services[name] = "unhealthy"
			status = "degraded"
			continue
		}
		services[name] = "healthy"
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":   status,
		"services": services,
	})
}

func (h *HealthHandler) Info(c *gin.Context) {
	info := gin.H{}
	for k, v := range h.info {
		info[k] = v
	}
	info["uptime"] = time.Since(h.started).Truncate(time.Second).String()

	c.JSON(http.StatusOK, info)
}
