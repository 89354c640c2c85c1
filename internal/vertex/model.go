package vertex

import "strings"

// DefaultPublisher is assumed when a model identifier carries no namespace.
const DefaultPublisher = "google"

// NormalizeModel returns the namespaced form of a model identifier.
// "gemini-2.5-flash" becomes "google/gemini-2.5-flash"; identifiers that
// already carry a publisher pass through unchanged.
func NormalizeModel(model string) string {
	if model == "" || strings.Contains(model, "/") {
		return model
	}
	return DefaultPublisher + "/" + model
}

// StripPublisher removes the namespace prefix, if any, giving the bare model
// name used when building outbound URLs.
func StripPublisher(model string) string {
	if i := strings.IndexByte(model, '/'); i >= 0 {
		return model[i+1:]
	}
	return model
}

// Publisher returns the namespace of a model identifier, falling back to
// DefaultPublisher for bare names.
func Publisher(model string) string {
	if i := strings.IndexByte(model, '/'); i >= 0 {
		return model[:i]
	}
	return DefaultPublisher
}
