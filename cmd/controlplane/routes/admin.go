package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/pixeon/renderplane/cmd/controlplane/container"
	"github.com/pixeon/renderplane/cmd/controlplane/handlers"
	"github.com/pixeon/renderplane/cmd/controlplane/middleware"
)

// RegisterAdminRoutes registers the fleet and authoring API. Admin
// authentication is enforced by the gateway in front of this service.
func RegisterAdminRoutes(e *echo.Echo, c *container.Container) {
	nodes := handlers.NewAdminNodeHandler(c)
	workflows := handlers.NewAdminWorkflowHandler(c)
	limits := handlers.NewAdminLimitsHandler(c)

	admin := e.Group("/api/v1/admin")
	admin.Use(middleware.RequireUserID())
	{
		admin.POST("/nodes", nodes.CreateNode)
		admin.GET("/nodes", nodes.ListNodes)
		admin.PUT("/nodes/:id", nodes.UpdateNode)
		admin.DELETE("/nodes/:id", nodes.DeleteNode)
		admin.POST("/nodes/healthcheck", nodes.TriggerHealthcheck)
		admin.POST("/nodes/:id/catalog/refresh", nodes.RefreshCatalog)

		admin.POST("/workflows", workflows.CreateWorkflow)
		admin.GET("/workflows/:id", workflows.GetWorkflow)
		admin.PATCH("/workflows/:id/spec", workflows.PatchSpec)
		admin.PUT("/workflows/:id/active", workflows.SetActive)

		admin.GET("/limits/:user_id", limits.GetLimits)
		admin.PUT("/limits/:user_id", limits.SetLimits)
	}
}
