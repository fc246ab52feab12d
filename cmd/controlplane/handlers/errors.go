package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/pixeon/renderplane/common/errors"
)

// respondError maps control-plane error kinds onto HTTP status codes.
// Compiler and validation errors are the submitter's fault; backend errors
// surface as 502 so callers can distinguish fleet trouble from bad input.
func respondError(c echo.Context, err error) error {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperrors.ErrQuotaExceeded):
		status = http.StatusTooManyRequests
	case errors.Is(err, apperrors.ErrInvalidGraph),
		errors.Is(err, apperrors.ErrBindingNotFound),
		errors.Is(err, apperrors.ErrInvalidModeForKey),
		errors.Is(err, apperrors.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, apperrors.ErrBackendUnavailable):
		status = http.StatusBadGateway
	}

	var backendErr *apperrors.BackendError
	if errors.As(err, &backendErr) {
		status = http.StatusBadGateway
	}

	return c.JSON(status, map[string]any{"error": err.Error()})
}
