package error

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBaseError(t *testing.T) {
	err := NewError("CONFIG_INVALID", "bad config").WithContext("field", "ttl")
	assert.Equal(t, "CONFIG_INVALID: bad config", err.Error())
	assert.Equal(t, "ttl", err.Context["field"])
	assert.False(t, err.Timestamp.IsZero())

	wrapped := WrapError("LOAD_FAILED", "load", io.EOF)
	assert.Equal(t, "LOAD_FAILED: load: EOF", wrapped.Error())
	assert.True(t, errors.Is(wrapped, io.EOF))
}

func TestBaseError_IsByCode(t *testing.T) {
	sentinel := NewError("KEY_NOT_FOUND", "not found")
	other := NewError("KEY_NOT_FOUND", "missing key").WithContext("key", "a")

	assert.True(t, errors.Is(other, sentinel))
	assert.False(t, errors.Is(other, NewError("CACHE_CLOSED", "closed")))
	assert.False(t, errors.Is(other, io.EOF))

	var target *BaseError
	assert.True(t, errors.As(WrapError("X", "outer", other), &target))
	assert.Equal(t, ErrorCode("X"), target.ErrorCode())
}

func TestWithContext_NilMap(t *testing.T) {
	err := &BaseError{Code: "X"}
	err.WithContext("k", 1)
	assert.Equal(t, 1, err.Context["k"])
}
