package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pixeon/renderplane/cmd/controlplane/container"
	"github.com/pixeon/renderplane/cmd/controlplane/service"
)

// AdminWorkflowHandler handles workflow authoring operations
type AdminWorkflowHandler struct {
	container *container.Container
}

// NewAdminWorkflowHandler creates a new admin workflow handler
func NewAdminWorkflowHandler(c *container.Container) *AdminWorkflowHandler {
	return &AdminWorkflowHandler{container: c}
}

// CreateWorkflow stores a new workflow definition
// POST /api/v1/admin/workflows
func (h *AdminWorkflowHandler) CreateWorkflow(c echo.Context) error {
	var req service.CreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
	}

	wf, err := h.container.WorkflowService.Create(c.Request().Context(), &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, wf)
}

// GetWorkflow returns the full definition including the authoring graph
// GET /api/v1/admin/workflows/:id
func (h *AdminWorkflowHandler) GetWorkflow(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid workflow id"})
	}

	wf, err := h.container.WorkflowService.GetByID(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, wf)
}

// PatchSpec applies an RFC 7396 merge patch to a workflow's spec
// PATCH /api/v1/admin/workflows/:id/spec
func (h *AdminWorkflowHandler) PatchSpec(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid workflow id"})
	}

	patch, err := io.ReadAll(c.Request().Body)
	if err != nil || !json.Valid(patch) {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "body must be a JSON merge patch"})
	}

	wf, err := h.container.WorkflowService.PatchSpec(c.Request().Context(), id, patch)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, wf)
}

// SetActive flips a workflow's availability
// PUT /api/v1/admin/workflows/:id/active
func (h *AdminWorkflowHandler) SetActive(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid workflow id"})
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
	}

	if err := h.container.WorkflowService.SetActive(c.Request().Context(), id, req.Active); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
