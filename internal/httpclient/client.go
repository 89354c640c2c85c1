// Package httpclient builds the single shared outbound HTTP client used by
// every in-flight request.
package httpclient

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"time"
)

// ClientConfig holds the outbound connection pool and timeout budget.
type ClientConfig struct {
	// MaxConnsPerHost bounds the total connections to the upstream host.
	MaxConnsPerHost int

	// MaxIdleConnsPerHost bounds the keep-alive subset of the pool.
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle keep-alive connection may linger.
	IdleConnTimeout time.Duration

	// Timeout caps one whole request. Generation can take minutes, so this
	// budget is deliberately long.
	Timeout time.Duration

	// DialTimeout is the connect budget; kept short so a dead host fails fast.
	DialTimeout time.Duration

	// ResponseHeaderTimeout is how long to wait for upstream response headers.
	ResponseHeaderTimeout time.Duration

	// TLSHandshakeTimeout is the TLS handshake budget.
	TLSHandshakeTimeout time.Duration
}

// getEnvDuration reads a duration from an environment variable, returning the
// default if not set or invalid. Accepts plain integers (seconds) or Go
// duration strings (e.g. "10m").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	return defaultVal
}

// DefaultConfig returns the bridge's standard outbound budget: a pool of 200
// connections with 50 kept alive, a 10s connect budget and a 10m read budget.
// The read budget can be overridden via SVBRIDGE_HTTP_TIMEOUT (seconds or Go
// duration format).
func DefaultConfig() ClientConfig {
	return ClientConfig{
		MaxConnsPerHost:       200,
		MaxIdleConnsPerHost:   50,
		IdleConnTimeout:       90 * time.Second,
		Timeout:               getEnvDuration("SVBRIDGE_HTTP_TIMEOUT", 600*time.Second),
		DialTimeout:           10 * time.Second,
		ResponseHeaderTimeout: getEnvDuration("SVBRIDGE_HTTP_HEADER_TIMEOUT", 600*time.Second),
		TLSHandshakeTimeout:   10 * time.Second,
	}
}

// New creates the shared outbound client. All dispatchers borrow from this
// one client for the process lifetime; none create per-request connections.
func New(config *ClientConfig) *http.Client {
	if config == nil {
		cfg := DefaultConfig()
		config = &cfg
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		MaxIdleConns:          config.MaxIdleConnsPerHost,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
	}
}
