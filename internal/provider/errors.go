package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors for provider operations. Concrete clients wrap these with
// %w so callers can match with errors.Is.
var (
	// ErrTransport indicates a network or HTTP-level failure. Retryable.
	ErrTransport = errors.New("provider transport failure")

	// ErrProtocol indicates a malformed or unexpected response shape.
	// Retryable up to the retry budget since it may be transient.
	ErrProtocol = errors.New("unexpected provider response")

	// ErrUnsupportedOperation indicates the provider lacks a capability.
	// Never retried, surfaced immediately.
	ErrUnsupportedOperation = errors.New("operation not supported by provider")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid provider configuration")

	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")
)

// Retryable reports whether an error is worth another attempt under the
// retry budget. Capability and configuration errors are final.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrProtocol)
}

// statusError classifies an HTTP status code outside 2xx. Rate limiting and
// server errors are transport-level (retryable); everything else is a
// protocol error carrying the response body for diagnostics.
func statusError(status int, body []byte) error {
	if status == 429 || status >= 500 {
		return fmt.Errorf("%w: status %d: %s", ErrTransport, status, truncate(body, 512))
	}
	return fmt.Errorf("%w: status %d: %s", ErrProtocol, status, truncate(body, 512))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
