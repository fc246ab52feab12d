package bootstrap

import (
	"context"
	"fmt"

	"github.com/pixeon/renderplane/common/cache"
	"github.com/pixeon/renderplane/common/config"
	"github.com/pixeon/renderplane/common/db"
	"github.com/pixeon/renderplane/common/logger"
	"github.com/pixeon/renderplane/common/redis"
	"github.com/pixeon/renderplane/common/storage"
)

// Setup initializes all service components
// This is the main entry point for the service binary
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	// Apply options
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	components := &Components{
		cleanupFuncs: make([]func() error, 0),
	}

	// 1. Load configuration
	var err error
	if options.customConfig != nil {
		components.Config = options.customConfig
	} else {
		components.Config, err = config.Load(serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	// 2. Initialize logger
	if options.customLogger != nil {
		components.Logger = options.customLogger
	} else {
		components.Logger = logger.New(
			components.Config.Service.LogLevel,
			components.Config.Service.LogFormat,
		)
	}

	components.Logger.Info("initializing service",
		"service", serviceName,
		"environment", components.Config.Service.Environment,
	)

	// 3. Initialize database (if not skipped)
	if !options.skipDB {
		components.Logger.Info("connecting to database")
		components.DB, err = db.New(ctx, components.Config, components.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		components.addCleanup(func() error {
			components.Logger.Info("closing database connection")
			components.DB.Close()
			return nil
		})
	}

	// 4. Initialize cache for the schema catalog (redis-backed when configured)
	if !options.skipCache {
		switch components.Config.Cache.Backend {
		case "redis":
			components.Logger.Info("connecting to redis", "addr", components.Config.RedisAddr())
			components.Redis, err = redis.Connect(ctx, components.Config, components.Logger)
			if err != nil {
				components.Shutdown(ctx)
				return nil, fmt.Errorf("failed to connect to redis: %w", err)
			}
			components.addCleanup(func() error {
				components.Logger.Info("closing redis connection")
				return components.Redis.Close()
			})
			components.Cache = cache.NewRedisCache(components.Redis, serviceName+":")
		default:
			components.Cache = cache.NewMemoryCache(components.Logger)
			components.addCleanup(func() error {
				components.Logger.Info("closing cache")
				return components.Cache.Close()
			})
		}
	}

	// 5. Initialize file storage
	if !options.skipStorage {
		components.Storage, err = storage.NewLocalStore(components.Config.Storage.Root, components.Logger)
		if err != nil {
			components.Shutdown(ctx)
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
	}

	components.Logger.Info("service initialization complete",
		"service", serviceName,
		"db", components.DB != nil,
		"redis", components.Redis != nil,
		"cache", components.Cache != nil,
		"storage", components.Storage != nil,
	)

	return components, nil
}
