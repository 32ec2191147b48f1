package billing

import (
	"errors"
	"fmt"
)

// Base error types callers can match with errors.Is.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrTransport     = errors.New("transport failure")
)

// ConfigError reports a missing or malformed configuration field. It is
// returned synchronously from New, before any request is made.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("billing config: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// RequestError represents a non-2xx response from the billing API. Message is
// taken from the response body's "message" field when present, otherwise a
// generic status-coded string. It never contains the public key or the
// customer token.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("billing: %s (status %d)", e.Message, e.Status)
}

// TransportError wraps a network-level failure where no response was
// received. The absence of a status code distinguishes "transport failure"
// from "server rejected".
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("billing: request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ValidationError reports a request that could not be built, such as a track
// call with neither a feature id nor an event name.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "billing: invalid request: " + e.Reason
}
