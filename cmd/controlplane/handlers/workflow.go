package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pixeon/renderplane/cmd/controlplane/container"
)

// WorkflowHandler serves the user-facing workflow catalog
type WorkflowHandler struct {
	container *container.Container
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(c *container.Container) *WorkflowHandler {
	return &WorkflowHandler{container: c}
}

// ListWorkflows lists active workflows with reachable image inputs only
// GET /api/v1/workflows
func (h *WorkflowHandler) ListWorkflows(c echo.Context) error {
	wfs, err := h.container.WorkflowService.ListForUser(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}

	// The authoring graph is admin-only; users see the spec surface
	out := make([]map[string]any, 0, len(wfs))
	for _, wf := range wfs {
		out = append(out, map[string]any{
			"slug":          wf.Slug,
			"name":          wf.Name,
			"category":      wf.Category,
			"version":       wf.Version,
			"requires_mask": wf.RequiresMask,
			"spec":          wf.Spec,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"workflows": out})
}

// GetWorkflow returns one active workflow by slug
// GET /api/v1/workflows/:slug
func (h *WorkflowHandler) GetWorkflow(c echo.Context) error {
	wf, err := h.container.WorkflowService.Get(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return respondError(c, err)
	}
	if !wf.IsActive {
		return c.JSON(http.StatusNotFound, map[string]any{"error": "workflow not found"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"slug":          wf.Slug,
		"name":          wf.Name,
		"category":      wf.Category,
		"version":       wf.Version,
		"requires_mask": wf.RequiresMask,
		"spec":          wf.Spec,
	})
}
