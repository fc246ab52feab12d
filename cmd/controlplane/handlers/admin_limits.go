package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pixeon/renderplane/cmd/controlplane/container"
	"github.com/pixeon/renderplane/cmd/controlplane/models"
)

// AdminLimitsHandler handles per-user quota administration
type AdminLimitsHandler struct {
	container *container.Container
}

// NewAdminLimitsHandler creates a new admin limits handler
func NewAdminLimitsHandler(c *container.Container) *AdminLimitsHandler {
	return &AdminLimitsHandler{container: c}
}

// GetLimits returns a user's quota settings
// GET /api/v1/admin/limits/:user_id
func (h *AdminLimitsHandler) GetLimits(c echo.Context) error {
	limits, err := h.container.LimitsRepo.Get(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, limits)
}

// SetLimits upserts a user's quota settings
// PUT /api/v1/admin/limits/:user_id
func (h *AdminLimitsHandler) SetLimits(c echo.Context) error {
	var req struct {
		MaxConcurrentJobs int `json:"max_concurrent_jobs"`
		MaxJobsPerDay     int `json:"max_jobs_per_day"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
	}
	if req.MaxConcurrentJobs < 1 || req.MaxJobsPerDay < 1 {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "limits must be at least 1"})
	}

	limits := &models.UserLimits{
		UserID:            c.Param("user_id"),
		MaxConcurrentJobs: req.MaxConcurrentJobs,
		MaxJobsPerDay:     req.MaxJobsPerDay,
	}
	if err := h.container.LimitsRepo.Upsert(c.Request().Context(), limits); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, limits)
}
