package ktalk

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned before any network activity when the session
// is missing its token or referer.
var ErrNotConfigured = errors.New("ConfigurationError: auth token and referer must be set")

// ProtocolError means the endpoint answered, but not with a usable payload.
type ProtocolError struct {
	Status int
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("ProtocolError: unexpected response (status %d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("ProtocolError: unexpected response (status %d)", e.Status)
}

// NetworkError wraps transport-level failures (DNS, refused, timeout).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "NetworkError: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }
