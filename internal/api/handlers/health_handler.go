package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// RenewalService reports whether the background watch renewal loop is alive
type RenewalService interface {
	IsRunning() bool
}

// HealthHandler handles health check HTTP requests
type HealthHandler struct {
	db      *gorm.DB
	renewal RenewalService
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db *gorm.DB, renewal RenewalService) *HealthHandler {
	return &HealthHandler{db: db, renewal: renewal}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c echo.Context) error {
	services := make(map[string]string)
	status := "healthy"

	// Check database connection
	sqlDB, err := h.db.DB()
	if err != nil {
		services["database"] = "unhealthy"
		status = "unhealthy"
	} else if err := sqlDB.Ping(); err != nil {
		services["database"] = "unhealthy"
		status = "unhealthy"
	} else {
		services["database"] = "healthy"
	}

	// Renewal loop is optional (external schedulers may drive renewals),
	// so a stopped loop never degrades overall status
	if h.renewal != nil {
		if h.renewal.IsRunning() {
			services["watch_renewal"] = "running"
		} else {
			services["watch_renewal"] = "stopped"
		}
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, HealthResponse{
		Status:   status,
		Services: services,
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c echo.Context) error {
	// Check database connection
	sqlDB, err := h.db.DB()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database connection failed",
		})
	}

	if err := sqlDB.Ping(); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database ping failed",
		})
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "ready",
	})
}
