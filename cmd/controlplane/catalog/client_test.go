package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixeon/renderplane/common/cache"
	"github.com/pixeon/renderplane/common/clients"
	"github.com/pixeon/renderplane/common/config"
	"github.com/pixeon/renderplane/common/logger"
)

func catalogWorker(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/object_info", r.URL.Path)
		hits.Add(1)
		w.Write([]byte(`{"KSampler": {"input": {"required": {"steps": ["INT", {"default": 20}]}}}}`))
	}))
}

func newTestClient(c cache.Cache) *Client {
	log := logger.New("error", "text")
	worker := clients.NewWorkerClient(&config.Config{
		Worker: config.WorkerConfig{
			ConnectTimeout: 2 * time.Second,
			ReadTimeout:    5 * time.Second,
		},
	}, log)
	return NewClient(worker, c, time.Minute, log)
}

func TestClient_GetCaches(t *testing.T) {
	var hits atomic.Int64
	srv := catalogWorker(t, &hits)
	defer srv.Close()

	client := newTestClient(cache.NewMemoryCache(logger.New("error", "text")))
	ctx := context.Background()

	cat, err := client.Get(ctx, srv.URL)
	require.NoError(t, err)
	require.NotNil(t, cat.Class("KSampler"))
	assert.Equal(t, int64(1), hits.Load())

	// second hit is served from cache
	_, err = client.Get(ctx, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int64(1), hits.Load())
}

func TestClient_RefreshBypassesCache(t *testing.T) {
	var hits atomic.Int64
	srv := catalogWorker(t, &hits)
	defer srv.Close()

	client := newTestClient(cache.NewMemoryCache(logger.New("error", "text")))
	ctx := context.Background()

	_, err := client.Get(ctx, srv.URL)
	require.NoError(t, err)

	_, err = client.Refresh(ctx, srv.URL)
	require.NoError(t, err)
	assert.Equal(t, int64(2), hits.Load())
}

func TestClient_GetUnreachableWorker(t *testing.T) {
	client := newTestClient(cache.NewMemoryCache(logger.New("error", "text")))

	_, err := client.Get(context.Background(), "http://127.0.0.1:1")
	assert.Error(t, err)
}
