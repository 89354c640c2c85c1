// Package main is the entry point for the simple-vertex-bridge server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"

	"github.com/waylon256yhw/simple-vertex-bridge/config"
	"github.com/waylon256yhw/simple-vertex-bridge/internal/auth"
	"github.com/waylon256yhw/simple-vertex-bridge/internal/httpclient"
	"github.com/waylon256yhw/simple-vertex-bridge/internal/proxy"
	"github.com/waylon256yhw/simple-vertex-bridge/internal/server"
	"github.com/waylon256yhw/simple-vertex-bridge/internal/vertex"
)

func main() {
	port := flag.Int("p", 0, "Port (default: 8086)")
	bind := flag.String("b", "", "Bind address (default: localhost)")
	key := flag.String("k", "", "Proxy authentication key")
	flag.Parse()

	setupLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// CLI flags override env and file values
	if *port != 0 {
		cfg.Port = *port
	}
	if *bind != "" {
		cfg.Bind = *bind
	}
	if *key != "" {
		cfg.ProxyKey = *key
	}

	ctx := context.Background()

	provider, err := buildAuthProvider(ctx, cfg)
	if err != nil {
		slog.Error("failed to set up auth", "error", err)
		os.Exit(1)
	}
	if err := provider.Start(ctx); err != nil {
		slog.Error("failed to start auth provider", "error", err)
		os.Exit(1)
	}
	defer provider.Stop()

	resolver := vertex.NewRegionResolver(cfg.RegionRules(), cfg.Location)

	dispatcher := proxy.New(httpclient.New(nil), provider, resolver, proxy.Options{
		Publishers:       cfg.Publishers,
		FilterModelNames: cfg.FilterModelNames,
		NameFilters:      cfg.NameFilters,
		ExtraModels:      cfg.ExtraModels,
	}, slog.Default())

	srv := server.New(dispatcher, &server.Config{
		ProxyKey:        cfg.ProxyKey,
		AuthMode:        cfg.AuthMode,
		MetricsEnabled:  cfg.MetricsEnabled,
		MetricsEndpoint: cfg.MetricsEndpoint,
	})

	slog.Info("starting simple-vertex-bridge",
		"auth_mode", cfg.AuthMode,
		"region", cfg.Location,
		"bind", cfg.Bind,
		"port", cfg.Port,
	)
	if cfg.AuthMode == config.AuthModeServiceAccount {
		slog.Info("service account mode", "project", cfg.ProjectID)
	}
	if cfg.ProxyKey == "" && cfg.Bind != "localhost" && cfg.Bind != "127.0.0.1" && cfg.Bind != "::1" {
		slog.Warn("server is exposed without a key, set PROXY_KEY")
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Bind, cfg.Port)
	if err := srv.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
		} else {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}
}

// setupLogging installs a tinted handler on terminals and JSON otherwise.
func setupLogging() {
	var handler slog.Handler
	if term.IsTerminal(int(os.Stdout.Fd())) {
		handler = tint.NewHandler(os.Stdout, &tint.Options{TimeFormat: time.TimeOnly})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, nil)
	}
	slog.SetDefault(slog.New(handler))
}

// buildAuthProvider selects the auth variant once at startup from config.
func buildAuthProvider(ctx context.Context, cfg *config.Config) (auth.Provider, error) {
	if cfg.AuthMode == config.AuthModeExpress {
		slog.Info("express mode enabled", "endpoint", "global")
		return auth.NewExpressAuth(cfg.APIKey), nil
	}

	source, err := auth.NewGoogleTokenSource(ctx)
	if err != nil {
		return nil, err
	}
	if cfg.ProjectID == "" {
		cfg.ProjectID, err = auth.DefaultProjectID(ctx)
		if err != nil {
			return nil, err
		}
	}

	refreshInterval := time.Duration(0)
	if cfg.AutoRefresh {
		refreshInterval = auth.DefaultRefreshInterval
	}
	return auth.NewServiceAccountAuth(auth.ServiceAccountConfig{
		ProjectID:       cfg.ProjectID,
		Source:          source,
		ExpiryBuffer:    cfg.TokenExpiryBuffer,
		RefreshInterval: refreshInterval,
		CacheFile:       cfg.TokenCacheFile,
		Logger:          slog.Default(),
	}), nil
}
