package container

import (
	"github.com/labstack/echo/v4"

	"github.com/fleetware/fwdepot/cmd/fwdepot/handlers"
	"github.com/fleetware/fwdepot/cmd/fwdepot/middleware"
	"github.com/fleetware/fwdepot/cmd/fwdepot/repository"
	"github.com/fleetware/fwdepot/cmd/fwdepot/service"
	"github.com/fleetware/fwdepot/common/bootstrap"
	"github.com/fleetware/fwdepot/common/storage"
)

// Container holds all initialized services and repositories (singleton pattern)
type Container struct {
	Components *bootstrap.Components

	// Repositories
	FirmwareRepo *repository.FirmwareRepository

	// Services
	UploadService *service.UploadService

	// HTTP surface
	UploadHandler *handlers.UploadHandler
	RequireAdmin  echo.MiddlewareFunc
}

// NewContainer initializes all services and repositories once
func NewContainer(components *bootstrap.Components) (*Container, error) {
	cfg := components.Config

	resolver := storage.NewResolver(cfg.Storage.Root, cfg.Storage.PublicPrefix)

	firmwareRepo := repository.NewFirmwareRepository(components.DB)

	uploadService := service.NewUploadService(
		firmwareRepo,
		resolver,
		components.Locker,
		components.Logger,
		cfg.Upload.MaxBytes,
	)

	uploadHandler := handlers.NewUploadHandler(
		uploadService,
		components.Logger,
		cfg.Upload.MaxBytes,
	)

	requireAdmin := middleware.RequireAdmin(
		[]byte(cfg.Auth.Secret),
		cfg.Auth.AdminThreshold,
		components.Logger,
	)

	return &Container{
		Components:    components,
		FirmwareRepo:  firmwareRepo,
		UploadService: uploadService,
		UploadHandler: uploadHandler,
		RequireAdmin:  requireAdmin,
	}, nil
}
