package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixeon/renderplane/common/config"
	apperrors "github.com/pixeon/renderplane/common/errors"
	"github.com/pixeon/renderplane/common/logger"
)

func testClient() *WorkerClient {
	cfg := &config.Config{
		Worker: config.WorkerConfig{
			ConnectTimeout: 2 * time.Second,
			ReadTimeout:    5 * time.Second,
		},
	}
	return NewWorkerClient(cfg, logger.New("error", "text"))
}

func TestSubmit(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/prompt", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Write([]byte(`{"prompt_id": "abc-123", "number": 1}`))
	}))
	defer srv.Close()

	promptID, err := testClient().Submit(context.Background(), srv.URL, map[string]any{
		"prompt": map[string]any{"1": map[string]any{"class_type": "SaveImage"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "abc-123", promptID)
	assert.Contains(t, received, "prompt")
}

func TestSubmit_WrapsBareGraph(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.Write([]byte(`{"prompt_id": "abc"}`))
	}))
	defer srv.Close()

	_, err := testClient().Submit(context.Background(), srv.URL, map[string]any{
		"1": map[string]any{"class_type": "SaveImage"},
	})
	require.NoError(t, err)
	assert.Contains(t, received, "prompt")
}

func TestSubmit_BackendErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "node validation failed", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient().Submit(context.Background(), srv.URL, map[string]any{"prompt": map[string]any{}})
	require.Error(t, err)

	var backendErr *apperrors.BackendError
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, http.StatusBadRequest, backendErr.Status)

	// connection refused maps to the unavailable sentinel
	srv.Close()
	_, err = testClient().Submit(context.Background(), srv.URL, map[string]any{"prompt": map[string]any{}})
	assert.ErrorIs(t, err, apperrors.ErrBackendUnavailable)
}

func TestHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/history/p1", r.URL.Path)
		w.Write([]byte(`{
			"p1": {
				"status": {"status_str": "success"},
				"outputs": {
					"9": {"images": [{"filename": "a.png", "subfolder": "", "type": "output"}]}
				}
			}
		}`))
	}))
	defer srv.Close()

	outputs, err := testClient().History(context.Background(), srv.URL, "p1")
	require.NoError(t, err)
	require.NotNil(t, outputs)
	assert.Contains(t, outputs, "9")
}

func TestHistory_PendingAndUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/history/pending":
			w.Write([]byte(`{"pending": {"status": {"status_str": "running"}, "outputs": {}}}`))
		default:
			w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	outputs, err := testClient().History(context.Background(), srv.URL, "pending")
	require.NoError(t, err)
	assert.Nil(t, outputs)

	outputs, err = testClient().History(context.Background(), srv.URL, "unknown")
	require.NoError(t, err)
	assert.Nil(t, outputs)
}

func TestObjectInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/object_info", r.URL.Path)
		w.Write([]byte(`{"KSampler": {"input": {"required": {}}}}`))
	}))
	defer srv.Close()

	raw, err := testClient().ObjectInfo(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "KSampler")
}

func TestObjectInfo_RejectsInvalidDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[1, 2, 3]`))
	}))
	defer srv.Close()

	_, err := testClient().ObjectInfo(context.Background(), srv.URL)
	assert.ErrorIs(t, err, apperrors.ErrBackendUnavailable)
}

func TestUploadImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/upload/image", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		file, header, err := r.FormFile("image")
		require.NoError(t, err)
		defer file.Close()

		assert.Equal(t, "image_4.png", header.Filename)
		assert.Equal(t, "true", r.FormValue("overwrite"))

		w.Write([]byte(`{"name": "image_4.png", "subfolder": "inputs"}`))
	}))
	defer srv.Close()

	remote, err := testClient().UploadImage(context.Background(), srv.URL, "image_4.png", []byte("data"), "", true)
	require.NoError(t, err)
	assert.Equal(t, "inputs/image_4.png", remote)
}

func TestUploadImage_FallsBackToAPIPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/upload/image" {
			http.NotFound(w, r)
			return
		}
		require.Equal(t, "/api/upload/image", r.URL.Path)
		w.Write([]byte(`{"name": "mask.png"}`))
	}))
	defer srv.Close()

	remote, err := testClient().UploadImage(context.Background(), srv.URL, "mask.png", []byte("data"), "", false)
	require.NoError(t, err)
	assert.Equal(t, "mask.png", remote)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/system_stats", r.URL.Path)
		w.Write([]byte(`{"system": {}}`))
	}))

	require.NoError(t, testClient().Ping(context.Background(), srv.URL))

	srv.Close()
	assert.Error(t, testClient().Ping(context.Background(), srv.URL))
}
