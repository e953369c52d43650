package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/scaleflower/otrs-updater/cmd/updater/container"
	"github.com/scaleflower/otrs-updater/cmd/updater/routes"
	"github.com/scaleflower/otrs-updater/common/bootstrap"
	"github.com/scaleflower/otrs-updater/common/config"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load("updater")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Bootstrap common components (DB, logger, queue, cache, telemetry);
	// schema migrations run before anything touches the tables
	components, err := bootstrap.Setup(ctx, "updater",
		bootstrap.WithCustomConfig(cfg),
		bootstrap.WithMigrations(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap updater: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	// Background worker for triggered update runs
	if err := serviceContainer.UpdateService.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start update worker: %v\n", err)
		os.Exit(1)
	}

	// Periodic release polling
	go serviceContainer.Poller.Run(ctx)

	// Initialize Echo server
	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, components)
	routes.RegisterUpdateRoutes(e, serviceContainer)

	startServer(e, components)
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
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "updater",
			"version": components.Config.Service.Version,
		})
	})
}

// startServer starts the Echo server on the configured port
func startServer(e *echo.Echo, components *bootstrap.Components) {
	port := components.Config.Service.Port
	components.Logger.Info("Starting updater", "port", port)

	if err := e.Start(fmt.Sprintf(":%d", port)); err != nil {
		components.Logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
