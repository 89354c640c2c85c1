package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const expressBaseURL = "https://aiplatform.googleapis.com"

// ErrNoOpenAIEndpoint is returned when the express strategy is asked for the
// OpenAI-compatible endpoint it does not have.
var ErrNoOpenAIEndpoint = errors.New("express mode has no OpenAI-compatible endpoint; request bodies must be converted")

// ExpressAuth authenticates with a single immutable API key appended as a
// query parameter. No refresh cycle, no shared mutable state.
type ExpressAuth struct {
	apiKey string
}

// NewExpressAuth creates the static-key strategy.
func NewExpressAuth(apiKey string) *ExpressAuth {
	return &ExpressAuth{apiKey: apiKey}
}

// Headers returns no headers; the key travels in the URL.
func (a *ExpressAuth) Headers(_ context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

// SupportsNativePassthrough reports false: the express endpoint cannot accept
// the native wire format, forcing conversion.
func (a *ExpressAuth) SupportsNativePassthrough() bool {
	return false
}

// ChatCompletionsURL always fails for express mode.
func (a *ExpressAuth) ChatCompletionsURL(string) (string, error) {
	return "", ErrNoOpenAIEndpoint
}

// GenerateURL returns the global express endpoint; express mode is
// region-agnostic.
func (a *ExpressAuth) GenerateURL(_, model, method string) string {
	return a.appendKey(fmt.Sprintf("%s/v1/publishers/google/models/%s:%s", expressBaseURL, model, method))
}

// ModelsURL returns the publisher model listing endpoint.
func (a *ExpressAuth) ModelsURL(publisher string) string {
	return a.appendKey(fmt.Sprintf("%s/v1beta1/publishers/%s/models", expressBaseURL, publisher))
}

func (a *ExpressAuth) appendKey(url string) string {
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	return url + sep + "key=" + a.apiKey
}

// Start is a no-op for the static strategy.
func (a *ExpressAuth) Start(context.Context) error { return nil }

// Stop is a no-op for the static strategy.
func (a *ExpressAuth) Stop() {}
