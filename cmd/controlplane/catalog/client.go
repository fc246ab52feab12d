package catalog

import (
	"context"
	"time"

	"github.com/pixeon/renderplane/common/cache"
	"github.com/pixeon/renderplane/common/clients"
	"github.com/pixeon/renderplane/common/logger"
)

const cacheKeyPrefix = "catalog:"

// Client fetches schema catalogs from worker nodes, with a per-node cache
// so the scheduler does not hammer /object_info on every dispatch.
type Client struct {
	worker *clients.WorkerClient
	cache  cache.Cache
	ttl    time.Duration
	log    *logger.Logger
}

func NewClient(worker *clients.WorkerClient, c cache.Cache, ttl time.Duration, log *logger.Logger) *Client {
	return &Client{worker: worker, cache: c, ttl: ttl, log: log}
}

// Get returns the catalog for a node, served from cache when fresh.
func (c *Client) Get(ctx context.Context, baseURL string) (*Catalog, error) {
	key := cacheKeyPrefix + baseURL

	if raw, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		cat, perr := Parse(raw)
		if perr == nil {
			return cat, nil
		}
		c.log.Warn("discarding unparseable cached catalog", "base_url", baseURL, "error", perr)
	}

	raw, err := c.worker.ObjectInfo(ctx, baseURL)
	if err != nil {
		return nil, err
	}
	cat, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
		c.log.Warn("failed to cache catalog", "base_url", baseURL, "error", err)
	}
	return cat, nil
}

// Invalidate drops the cached catalog for a node. Used by the admin
// refresh endpoint after custom nodes change on a worker.
func (c *Client) Invalidate(ctx context.Context, baseURL string) error {
	return c.cache.Delete(ctx, cacheKeyPrefix+baseURL)
}

// Refresh forces a fetch, replacing whatever is cached.
func (c *Client) Refresh(ctx context.Context, baseURL string) (*Catalog, error) {
	if err := c.Invalidate(ctx, baseURL); err != nil {
		c.log.Warn("failed to invalidate catalog cache", "base_url", baseURL, "error", err)
	}
	return c.Get(ctx, baseURL)
}
