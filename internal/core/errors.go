// Package core provides shared wire types and the error taxonomy for the bridge.
package core

import (
	"fmt"
	"net/http"
)

// ErrorType classifies a request failure.
type ErrorType string

const (
	// ErrorTypeAuth indicates a credential refresh or exchange failure.
	ErrorTypeAuth ErrorType = "auth_error"
	// ErrorTypeUpstream indicates Vertex returned a non-success status.
	ErrorTypeUpstream ErrorType = "upstream_error"
	// ErrorTypeConversion indicates malformed or unrepresentable content in a
	// format-mapping step.
	ErrorTypeConversion ErrorType = "conversion_error"
	// ErrorTypeTransport indicates a connect/read/write timeout or network failure.
	ErrorTypeTransport ErrorType = "transport_error"
	// ErrorTypeInvalidRequest indicates a client error before any mapping ran.
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
)

// BridgeError is the base error type for all bridge failures.
type BridgeError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code"`
	// Upstream response body, preserved verbatim for upstream errors.
	UpstreamBody []byte `json:"-"`
	// Original error for debugging (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface
func (e *BridgeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *BridgeError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the status code to surface to the caller.
func (e *BridgeError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeAuth:
		return http.StatusInternalServerError
	case ErrorTypeConversion, ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeUpstream, ErrorTypeTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToJSON converts the error to an OpenAI-style error envelope.
func (e *BridgeError) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"error": map[string]interface{}{
			"type":    e.Type,
			"message": e.Message,
		},
	}
}

// NewAuthError creates an error for a failed credential refresh or exchange.
func NewAuthError(message string, err error) *BridgeError {
	return &BridgeError{
		Type:    ErrorTypeAuth,
		Message: message,
		Err:     err,
	}
}

// NewUpstreamError preserves a non-success Vertex response. The body is kept
// verbatim so the caller sees the upstream's own error semantics.
func NewUpstreamError(statusCode int, body []byte) *BridgeError {
	return &BridgeError{
		Type:         ErrorTypeUpstream,
		Message:      fmt.Sprintf("upstream returned status %d", statusCode),
		StatusCode:   statusCode,
		UpstreamBody: body,
	}
}

// NewConversionError creates an error for a malformed or unrepresentable
// payload in a format-mapping step.
func NewConversionError(message string, err error) *BridgeError {
	return &BridgeError{
		Type:    ErrorTypeConversion,
		Message: message,
		Err:     err,
	}
}

// NewTransportError creates an error for a network failure or timeout on the
// outbound call.
func NewTransportError(message string, err error) *BridgeError {
	return &BridgeError{
		Type:    ErrorTypeTransport,
		Message: message,
		Err:     err,
	}
}

// NewNotFoundError creates a not found error (404).
func NewNotFoundError(message string) *BridgeError {
	return &BridgeError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewInvalidRequestError creates a client error (400).
func NewInvalidRequestError(message string, err error) *BridgeError {
	return &BridgeError{
		Type:       ErrorTypeInvalidRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Err:        err,
	}
}
