package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// KeyAuthMiddleware validates the proxy key on every request. Callers may
// present the key as "Authorization: Bearer <key>" or as a ?key= query
// parameter. Paths in skipPaths bypass the check.
func KeyAuthMiddleware(proxyKey string, skipPaths []string) echo.MiddlewareFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip[c.Request().URL.Path] {
				return next(c)
			}

			if key, ok := presentedKey(c); ok {
				if subtle.ConstantTimeCompare([]byte(key), []byte(proxyKey)) == 1 {
					return next(c)
				}
				return authFailure(c, "invalid key")
			}
			return authFailure(c, "missing credentials: pass the key as a Bearer token or ?key= parameter")
		}
	}
}

func presentedKey(c echo.Context) (string, bool) {
	const prefix = "Bearer "
	if header := c.Request().Header.Get("Authorization"); strings.HasPrefix(header, prefix) {
		return strings.TrimPrefix(header, prefix), true
	}
	if key := c.QueryParam("key"); key != "" {
		return key, true
	}
	return "", false
}

func authFailure(c echo.Context, message string) error {
	return c.JSON(http.StatusUnauthorized, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "authentication_error",
			"message": message,
		},
	})
}
