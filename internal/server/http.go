package server

import (
	"context"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wraps the Echo server
type Server struct {
	echo    *echo.Echo
	handler *Handler
}

// Config holds server configuration options
type Config struct {
	ProxyKey        string // Optional: key callers must present to use the bridge
	AuthMode        string // "service_account" or "express", reported on /
	MetricsEnabled  bool   // Whether to expose Prometheus metrics endpoint
	MetricsEndpoint string // HTTP path for metrics endpoint (default: /metrics)
	BodySizeLimit   string // Max request body size (echo format, default: 10M)
}

// New creates the HTTP server over the dispatcher.
func New(bridge Bridge, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	handler := NewHandler(bridge, cfg.AuthMode)

	// Paths that skip proxy-key authentication
	authSkipPaths := []string{"/", "/health"}

	metricsPath := "/metrics"
	if cfg.MetricsEnabled {
		if cfg.MetricsEndpoint != "" {
			metricsPath = path.Clean(cfg.MetricsEndpoint)
		}
		authSkipPaths = append(authSkipPaths, metricsPath)
	}

	e.Use(middleware.Recover())
	e.Use(requestMetrics())

	bodyLimit := cfg.BodySizeLimit
	if bodyLimit == "" {
		bodyLimit = "10M"
	}
	e.Use(middleware.BodyLimit(bodyLimit))

	if cfg.ProxyKey != "" {
		e.Use(KeyAuthMiddleware(cfg.ProxyKey, authSkipPaths))
	}

	// Public routes
	e.GET("/", handler.Root)
	e.GET("/health", handler.Health)
	if cfg.MetricsEnabled {
		e.GET(metricsPath, echo.WrapHandler(promhttp.Handler()))
	}

	// API routes. The native model methods arrive as one path segment
	// ("gemini-2.5-flash:generateContent"), split inside the handler.
	for _, prefix := range []string{"/v1", "/v1beta"} {
		g := e.Group(prefix)
		g.POST("/chat/completions", handler.ChatCompletion)
		g.GET("/models", handler.ListModels)
		g.POST("/models/:model", handler.Generate)
		g.POST("/models/:publisher/:model", handler.Generate)
	}

	return &Server{
		echo:    e,
		handler: handler,
	}
}

// Start starts the HTTP server on the given address
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements the http.Handler interface, allowing Server to be used with httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
