package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/pixeon/renderplane/cmd/controlplane/container"
	"github.com/pixeon/renderplane/cmd/controlplane/routes"
	"github.com/pixeon/renderplane/common/bootstrap"
	"github.com/pixeon/renderplane/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (DB, logger, cache, storage)
	components, err := bootstrap.Setup(ctx, "controlplane")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap controlplane: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	// Initialize Echo server
	e := setupEcho()

	// Setup middleware
	setupMiddleware(e)

	// Setup health check
	setupHealthCheck(e, components)

	// Register all routes
	registerRoutes(e, serviceContainer)

	// Start background loops on a context canceled during shutdown
	loopCtx, stopLoops := context.WithCancel(ctx)
	go serviceContainer.Scheduler.Run(loopCtx)
	go serviceContainer.HealthLoop.Run(loopCtx)

	// Start server with graceful shutdown
	srv := server.New("controlplane", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(stopLoops); err != nil {
		components.Logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]string{
				"status":  "unhealthy",
				"service": "controlplane",
				"error":   err.Error(),
			})
		}
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"service": "controlplane",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterUserRoutes(e, serviceContainer)
	routes.RegisterAdminRoutes(e, serviceContainer)
}
