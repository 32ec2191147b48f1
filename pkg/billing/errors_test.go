package billing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestErrorString(t *testing.T) {
	err := &RequestError{Status: 402, Message: "insufficient balance"}
	assert.Equal(t, "billing: insufficient balance (status 402)", err.Error())
}

func TestTransportErrorUnwraps(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := &TransportError{Err: cause}

	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestConfigErrorMatchesSentinel(t *testing.T) {
	var err error = &ConfigError{Field: "public key", Reason: "is required"}

	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "public key")

	var cfgErr *ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestValidationErrorString(t *testing.T) {
	err := &ValidationError{Reason: "either a feature id or an event name must be provided"}
	assert.Contains(t, err.Error(), "invalid request")
}
