package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/pixeon/renderplane/common/errors"
)

func TestRespondError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", apperrors.ErrNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("job: %w", apperrors.ErrNotFound), http.StatusNotFound},
		{"quota", apperrors.ErrQuotaExceeded, http.StatusTooManyRequests},
		{"invalid graph", apperrors.InvalidGraph("cycle at node 3"), http.StatusBadRequest},
		{"binding", apperrors.BindingNotFound("4", "text"), http.StatusBadRequest},
		{"mode", apperrors.InvalidModeForKey("draft", "steps"), http.StatusBadRequest},
		{"invalid input", apperrors.ErrInvalidInput, http.StatusBadRequest},
		{"unavailable", apperrors.ErrBackendUnavailable, http.StatusBadGateway},
		{"backend status", &apperrors.BackendError{Status: 400, Body: "bad prompt"}, http.StatusBadGateway},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	e := echo.New()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			require.NoError(t, respondError(c, tc.err))
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}
