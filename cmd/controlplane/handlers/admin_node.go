package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pixeon/renderplane/cmd/controlplane/container"
	"github.com/pixeon/renderplane/cmd/controlplane/service"
)

// AdminNodeHandler handles worker fleet administration
type AdminNodeHandler struct {
	container *container.Container
}

// NewAdminNodeHandler creates a new admin node handler
func NewAdminNodeHandler(c *container.Container) *AdminNodeHandler {
	return &AdminNodeHandler{container: c}
}

// CreateNode registers a worker node
// POST /api/v1/admin/nodes
func (h *AdminNodeHandler) CreateNode(c echo.Context) error {
	var req service.NodeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
	}

	node, err := h.container.NodeService.Create(c.Request().Context(), &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, node)
}

// ListNodes lists all worker nodes
// GET /api/v1/admin/nodes
func (h *AdminNodeHandler) ListNodes(c echo.Context) error {
	nodes, err := h.container.NodeService.List(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"nodes": nodes})
}

// UpdateNode changes a node's settings
// PUT /api/v1/admin/nodes/:id
func (h *AdminNodeHandler) UpdateNode(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid node id"})
	}

	var req service.NodeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid request body"})
	}

	node, err := h.container.NodeService.Update(c.Request().Context(), id, &req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, node)
}

// DeleteNode removes a node from the fleet
// DELETE /api/v1/admin/nodes/:id
func (h *AdminNodeHandler) DeleteNode(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid node id"})
	}

	if err := h.container.NodeService.Delete(c.Request().Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// TriggerHealthcheck forces one probe pass over the fleet
// POST /api/v1/admin/nodes/healthcheck
func (h *AdminNodeHandler) TriggerHealthcheck(c echo.Context) error {
	h.container.HealthLoop.RunOnce(c.Request().Context())

	nodes, err := h.container.NodeService.List(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"nodes": nodes})
}

// RefreshCatalog refetches a node's schema catalog
// POST /api/v1/admin/nodes/:id/catalog/refresh
func (h *AdminNodeHandler) RefreshCatalog(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "invalid node id"})
	}

	classes, err := h.container.NodeService.RefreshCatalog(c.Request().Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"classes": classes})
}
