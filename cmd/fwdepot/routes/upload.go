package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/fleetware/fwdepot/cmd/fwdepot/handlers"
)

// RegisterUploadRoutes registers the admin firmware upload routes
func RegisterUploadRoutes(e *echo.Echo, handler *handlers.UploadHandler, requireAdmin echo.MiddlewareFunc) {
	admin := e.Group("/api/admin", requireAdmin)

	// POST /api/admin/fws/upload/:versionStatus - upload a main or delta artifact
	admin.POST("/fws/upload/:versionStatus", handler.Upload)
}
