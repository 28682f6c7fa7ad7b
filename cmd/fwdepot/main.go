package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/fleetware/fwdepot/cmd/fwdepot/container"
	"github.com/fleetware/fwdepot/cmd/fwdepot/routes"
	"github.com/fleetware/fwdepot/common/bootstrap"
	"github.com/fleetware/fwdepot/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (config, logger, DB, upload lock, telemetry)
	components, err := bootstrap.Setup(ctx, "fwdepot")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap fwdepot: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, components)
	registerRoutes(e, serviceContainer)

	// Start server with graceful shutdown
	srv := server.New("fwdepot", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
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
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(echomw.RequestID())
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, components *bootstrap.Components) {
	e.GET("/health", func(c echo.Context) error {
		if err := components.Health(c.Request().Context()); err != nil {
			return c.JSON(503, map[string]string{
				"status":  "unhealthy",
				"service": "fwdepot",
			})
		}
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"service": "fwdepot",
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, serviceContainer *container.Container) {
	routes.RegisterUploadRoutes(e, serviceContainer.UploadHandler, serviceContainer.RequireAdmin)
}
