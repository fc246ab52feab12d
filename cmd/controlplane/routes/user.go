package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/pixeon/renderplane/cmd/controlplane/container"
	"github.com/pixeon/renderplane/cmd/controlplane/handlers"
	"github.com/pixeon/renderplane/cmd/controlplane/middleware"
)

// RegisterUserRoutes registers the user-facing API
func RegisterUserRoutes(e *echo.Echo, c *container.Container) {
	jobs := handlers.NewJobHandler(c)
	uploads := handlers.NewUploadHandler(c)
	workflows := handlers.NewWorkflowHandler(c)

	api := e.Group("/api/v1")
	api.Use(middleware.RequireUserID())
	{
		api.POST("/jobs", jobs.SubmitJob)
		api.GET("/jobs", jobs.ListJobs)
		api.GET("/jobs/:id", jobs.GetJob)
		api.GET("/jobs/:id/progress", jobs.GetProgress)

		api.POST("/uploads", uploads.Upload)

		api.GET("/workflows", workflows.ListWorkflows)
		api.GET("/workflows/:slug", workflows.GetWorkflow)
	}
}
