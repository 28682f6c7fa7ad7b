package handlers

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fleetware/fwdepot/cmd/fwdepot/models"
	"github.com/fleetware/fwdepot/cmd/fwdepot/service"
	"github.com/fleetware/fwdepot/common/logger"
)

const multipartMediaType = "multipart/form-data"

// UploadHandler exposes the firmware upload pipeline over HTTP
type UploadHandler struct {
	svc      *service.UploadService
	log      *logger.Logger
	maxBytes int64
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(svc *service.UploadService, log *logger.Logger, maxBytes int64) *UploadHandler {
	return &UploadHandler{
		svc:      svc,
		log:      log,
		maxBytes: maxBytes,
	}
}

// Upload handles one admin firmware upload.
// POST /api/admin/fws/upload/:versionStatus
//
// Header preconditions are checked before the body is touched so oversized
// or mistyped requests are rejected without wasted I/O. Responses carry a
// bare status code; rejection details go to the log, not the caller.
func (h *UploadHandler) Upload(c echo.Context) error {
	req := c.Request()

	kind, ok := service.ParseVersionKind(c.Param("versionStatus"))
	if !ok {
		h.log.Warn("upload to unknown version status", requesterFields(c)...)
		return c.NoContent(http.StatusNotFound)
	}

	// Content-Type must be multipart/form-data; parameters are ignored
	mediaType, _, err := mime.ParseMediaType(req.Header.Get(echo.HeaderContentType))
	if err != nil || mediaType != multipartMediaType {
		h.log.Warn("upload with wrong content type", requesterFields(c)...)
		return c.NoContent(http.StatusUnprocessableEntity)
	}

	// Content-Length must be present, numeric and within the cap. The cap is
	// re-enforced on the byte stream itself during ingest.
	length := req.Header.Get(echo.HeaderContentLength)
	declared, perr := strconv.ParseInt(length, 10, 64)
	if length == "" || perr != nil || declared < 0 || declared > h.maxBytes {
		h.log.Warn("upload with missing or oversized content length",
			append(requesterFields(c), "content_length", length)...)
		return c.NoContent(http.StatusRequestEntityTooLarge)
	}

	if _, err := h.svc.Upload(req.Context(), kind, req); err != nil {
		return h.reject(c, err)
	}

	return c.NoContent(http.StatusCreated)
}

// reject maps a pipeline failure onto its transport status and logs it with
// requester fingerprinting before the response is written.
func (h *UploadHandler) reject(c echo.Context, err error) error {
	fields := append(requesterFields(c), "error", err)

	switch {
	case errors.Is(err, models.ErrPayloadTooLarge):
		h.log.Warn("upload exceeded byte cap", fields...)
		return c.NoContent(http.StatusRequestEntityTooLarge)

	case errors.Is(err, models.ErrUnsupportedMedia):
		h.log.Warn("upload with unsupported file type", fields...)
		return c.NoContent(http.StatusUnprocessableEntity)

	case errors.Is(err, models.ErrMalformedUpload):
		h.log.Warn("malformed upload", fields...)
		return c.NoContent(http.StatusNotAcceptable)

	case errors.Is(err, models.ErrEmptyUpload):
		h.log.Warn("upload carried no file", fields...)
		return c.NoContent(http.StatusNotAcceptable)

	case errors.Is(err, models.ErrMissingReference):
		h.log.Warn("upload without resolvable firmware reference", fields...)
		return c.NoContent(http.StatusFailedDependency)

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Client went away mid-transfer; partial data is already discarded
		// and nobody is listening for the response.
		h.log.Warn("client closed connection during upload", fields...)
		return c.NoContent(http.StatusInternalServerError)

	case errors.Is(err, models.ErrInternal):
		h.log.Error("firmware upload failed", fields...)
		return c.NoContent(http.StatusInternalServerError)

	default:
		// Unanticipated failure: unlike classified internal errors, the
		// diagnostic is echoed to the caller. Kept for parity with existing
		// clients that scrape it; see DESIGN.md.
		h.log.Error("firmware upload failed unexpectedly", fields...)
		return c.String(http.StatusInternalServerError, err.Error())
	}
}

// requesterFields fingerprints the requester for rejection logs
func requesterFields(c echo.Context) []any {
	return []any{
		"remote_ip", c.RealIP(),
		"user_agent", c.Request().UserAgent(),
		"method", c.Request().Method,
		"uri", c.Request().RequestURI,
		"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
	}
}
