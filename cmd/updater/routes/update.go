package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/scaleflower/otrs-updater/cmd/updater/container"
	"github.com/scaleflower/otrs-updater/cmd/updater/handlers"
	"github.com/scaleflower/otrs-updater/cmd/updater/middleware"
)

// RegisterUpdateRoutes registers the update lifecycle and audit endpoints.
// Reads are open; mutating endpoints require the admin token when one is
// configured.
func RegisterUpdateRoutes(e *echo.Echo, c *container.Container) {
	updateHandler := handlers.NewUpdateHandler(c.Components, c.UpdateService)
	logsHandler := handlers.NewLogsHandler(c.Components, c.UpdateService)

	adminOnly := middleware.RequireAdminToken(c.Components.Config.Service.AdminToken)

	update := e.Group("/update")
	{
		update.GET("/status", updateHandler.GetStatus)
		update.POST("/check", updateHandler.CheckNow, adminOnly)
		update.POST("/execute", updateHandler.Execute, adminOnly)
		update.POST("/acknowledge", updateHandler.Acknowledge, adminOnly)

		update.GET("/logs", logsHandler.ListRuns)
		update.GET("/logs/:id", logsHandler.GetRun)
	}
}
