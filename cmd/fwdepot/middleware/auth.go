package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/fleetware/fwdepot/common/auth"
	"github.com/fleetware/fwdepot/common/logger"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// UserIDKey is the context key for the authenticated user identity
	UserIDKey ContextKey = "user_id"

	// PermissionsKey is the context key for the caller's permission level
	PermissionsKey ContextKey = "permissions"
)

// RequireAdmin verifies the bearer token and enforces the admin permission
// threshold. The permission level is an opaque ordinal; admin upload needs a
// level strictly greater than the threshold. Failed attempts are logged with
// requester fingerprinting before the bare status is returned.
func RequireAdmin(secret []byte, threshold int, log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c.Request())
			if token == "" {
				log.Warn("request without credentials on admin route", fingerprint(c)...)
				return c.NoContent(http.StatusUnauthorized)
			}

			claims, err := auth.VerifyToken(token, secret)
			if err != nil {
				log.Warn("request with invalid token on admin route",
					append(fingerprint(c), "error", err)...)
				return c.NoContent(http.StatusUnauthorized)
			}

			if claims.Permissions <= threshold {
				log.Warn("user with low permissions tried an admin operation",
					append(fingerprint(c), "user_id", claims.UserID, "permissions", claims.Permissions)...)
				return c.NoContent(http.StatusForbidden)
			}

			c.Set(string(UserIDKey), claims.UserID)
			c.Set(string(PermissionsKey), claims.Permissions)
			return next(c)
		}
	}
}

// GetUserID retrieves the authenticated user identity from the request
// context. Returns empty string if not set.
func GetUserID(c echo.Context) string {
	userID := c.Get(string(UserIDKey))
	if userID == nil {
		return ""
	}
	return userID.(string)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func fingerprint(c echo.Context) []any {
	return []any{
		"remote_ip", c.RealIP(),
		"user_agent", c.Request().UserAgent(),
		"method", c.Request().Method,
		"uri", c.Request().RequestURI,
	}
}
