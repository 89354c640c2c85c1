// Package auth supplies per-request authorization material for outbound
// Vertex calls under one of two strategies: service-account tokens with
// background refresh, or a static express API key.
package auth

import (
	"context"
	"time"
)

// Provider is the capability contract shared by the two auth strategies.
// The active variant is selected once at startup and never re-evaluated.
type Provider interface {
	// Headers returns the authorization headers for one outbound request.
	// It may block on a token refresh; the refresh itself is serialized so
	// concurrent callers trigger at most one credential exchange.
	Headers(ctx context.Context) (map[string]string, error)

	// SupportsNativePassthrough reports whether the upstream endpoint behind
	// this strategy accepts the native Gemini wire format unmodified.
	SupportsNativePassthrough() bool

	// ChatCompletionsURL returns the OpenAI-compatible upstream endpoint for
	// the given region. Strategies without one return an error.
	ChatCompletionsURL(region string) (string, error)

	// GenerateURL returns the generateContent/streamGenerateContent endpoint
	// for a bare (publisher-stripped) model name.
	GenerateURL(region, model, method string) string

	// ModelsURL returns the publisher model listing endpoint.
	ModelsURL(publisher string) string

	// Start begins background credential maintenance, if any.
	Start(ctx context.Context) error
	// Stop tears down background credential maintenance.
	Stop()
}

// TokenSource exchanges long-lived platform credentials for a short-lived
// bearer token. Implementations may block on the network.
type TokenSource interface {
	Token(ctx context.Context) (value string, expiry time.Time, err error)
}
