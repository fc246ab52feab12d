package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pixeon/renderplane/cmd/controlplane/container"
	"github.com/pixeon/renderplane/cmd/controlplane/middleware"
	"github.com/pixeon/renderplane/cmd/controlplane/models"
	"github.com/pixeon/renderplane/cmd/controlplane/service"
)

// JobHandler handles job submission and status requests
type JobHandler struct {
	container *container.Container
}

// NewJobHandler creates a new job handler
func NewJobHandler(c *container.Container) *JobHandler {
	return &JobHandler{container: c}
}

// SubmitJob creates a new job from a workflow submission
// POST /api/v1/jobs
func (h *JobHandler) SubmitJob(c echo.Context) error {
	userID := middleware.GetUserID(c)

	var req service.SubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
	}

	job, err := h.container.JobService.Submit(c.Request().Context(), userID, &req)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"id":         job.ID,
		"status":     job.Status,
		"created_at": job.CreatedAt,
	})
}

// GetJob returns one of the user's jobs
// GET /api/v1/jobs/:id
func (h *JobHandler) GetJob(c echo.Context) error {
	userID := middleware.GetUserID(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid job id"})
	}

	job, err := h.container.JobService.Get(c.Request().Context(), userID, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

// ListJobs returns the user's jobs, newest first
// GET /api/v1/jobs
func (h *JobHandler) ListJobs(c echo.Context) error {
	userID := middleware.GetUserID(c)

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	jobs, err := h.container.JobService.List(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return respondError(c, err)
	}
	if jobs == nil {
		jobs = []*models.Job{}
	}
	return c.JSON(http.StatusOK, map[string]any{"jobs": jobs})
}

// GetProgress returns live progress for a running job
// GET /api/v1/jobs/:id/progress
func (h *JobHandler) GetProgress(c echo.Context) error {
	userID := middleware.GetUserID(c)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid job id"})
	}

	p, err := h.container.JobService.Progress(c.Request().Context(), userID, id)
	if err != nil {
		return respondError(c, err)
	}
	if p == nil {
		return c.JSON(http.StatusOK, map[string]any{"progress": nil})
	}
	return c.JSON(http.StatusOK, map[string]any{"progress": p})
}
