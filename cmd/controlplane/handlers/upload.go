package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pixeon/renderplane/cmd/controlplane/container"
	"github.com/pixeon/renderplane/cmd/controlplane/middleware"
)

const maxUploadBytes = 32 << 20

// UploadHandler handles input file uploads
type UploadHandler struct {
	container *container.Container
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(c *container.Container) *UploadHandler {
	return &UploadHandler{container: c}
}

// Upload stores one input file and returns its storage path. Clients pass
// the path back as a files entry when submitting a job.
// POST /api/v1/uploads
func (h *UploadHandler) Upload(c echo.Context) error {
	userID := middleware.GetUserID(c)

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "file field is required"})
	}
	if fh.Size > maxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]any{"error": "file too large"})
	}

	src, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "cannot read upload"})
	}
	defer src.Close()

	content, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"error": "cannot read upload"})
	}
	if len(content) > maxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, map[string]any{"error": "file too large"})
	}

	path, err := h.container.UploadService.Save(c.Request().Context(), userID, fh.Filename, content)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{"path": path})
}
