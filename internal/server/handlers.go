// Package server provides the inbound HTTP surface of the bridge.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/waylon256yhw/simple-vertex-bridge/internal/core"
	"github.com/waylon256yhw/simple-vertex-bridge/internal/proxy"
)

// Bridge is the dispatch surface the handlers drive.
type Bridge interface {
	ChatCompletion(ctx context.Context, body []byte, query url.Values) (*proxy.Result, error)
	Generate(ctx context.Context, model, method string, body []byte, query url.Values) (*proxy.Result, error)
	ListModels(ctx context.Context) (*core.ModelsResponse, error)
}

// Handler holds the HTTP handlers
type Handler struct {
	bridge   Bridge
	authMode string
}

// NewHandler creates a new handler over the dispatcher.
func NewHandler(bridge Bridge, authMode string) *Handler {
	return &Handler{bridge: bridge, authMode: authMode}
}

// ChatCompletion handles POST /v1/chat/completions
func (h *Handler) ChatCompletion(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return handleError(c, core.NewInvalidRequestError("failed to read request body", err))
	}

	res, err := h.bridge.ChatCompletion(c.Request().Context(), body, c.QueryParams())
	if err != nil {
		return handleError(c, err)
	}
	return writeResult(c, res)
}

// Generate handles the native model endpoints:
// POST /v1/models/{model}:generateContent and :streamGenerateContent,
// with optional publisher prefix and /v1beta aliases.
func (h *Handler) Generate(c echo.Context) error {
	model, method, ok := strings.Cut(c.Param("model"), ":")
	if !ok || model == "" || method == "" {
		return handleError(c, core.NewNotFoundError("expected models/{model}:{method}"))
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return handleError(c, core.NewInvalidRequestError("failed to read request body", err))
	}

	res, err := h.bridge.Generate(c.Request().Context(), model, method, body, c.QueryParams())
	if err != nil {
		return handleError(c, err)
	}
	return writeResult(c, res)
}

// ListModels handles GET /v1/models
func (h *Handler) ListModels(c echo.Context) error {
	resp, err := h.bridge.ListModels(c.Request().Context())
	if err != nil {
		return handleError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Health handles GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Root handles GET /
func (h *Handler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "auth_mode": h.authMode})
}

// writeResult copies a dispatched response to the caller. Streamed bodies are
// flushed chunk by chunk as they arrive; once streaming has begun a transport
// failure truncates the stream rather than reporting a clean error.
func writeResult(c echo.Context, res *proxy.Result) error {
	defer func() {
		_ = res.Body.Close() //nolint:errcheck
	}()

	c.Response().Header().Set("Content-Type", res.ContentType)
	if res.Stream {
		c.Response().Header().Set("Cache-Control", "no-cache")
		c.Response().Header().Set("Connection", "keep-alive")
	}
	c.Response().WriteHeader(res.StatusCode)

	if !res.Stream {
		_, _ = io.Copy(c.Response().Writer, res.Body) //nolint:errcheck
		return nil
	}

	buf := make([]byte, 4096)
	for {
		n, err := res.Body.Read(buf)
		if n > 0 {
			if _, werr := c.Response().Writer.Write(buf[:n]); werr != nil {
				// Caller went away; stop consuming the upstream stream.
				return nil
			}
			c.Response().Flush()
		}
		if err != nil {
			return nil
		}
	}
}

// handleError converts bridge errors to appropriate HTTP responses
func handleError(c echo.Context, err error) error {
	var bridgeErr *core.BridgeError
	if errors.As(err, &bridgeErr) {
		if bridgeErr.Type == core.ErrorTypeUpstream && len(bridgeErr.UpstreamBody) > 0 {
			return c.Blob(bridgeErr.HTTPStatusCode(), "application/json", bridgeErr.UpstreamBody)
		}
		return c.JSON(bridgeErr.HTTPStatusCode(), bridgeErr.ToJSON())
	}

	// Fallback for unexpected errors
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": map[string]interface{}{
			"type":    "internal_error",
			"message": "an unexpected error occurred",
		},
	})
}
