package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.class.String())
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"connection timeout", ErrConnectionTimeout, true},
		{"connection lost", ErrConnectionLost, true},
		{"no connection", ErrNoConnection, true},
		{"storage unavailable", ErrStorageUnavailable, true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"invalid data", ErrInvalidData, false},
		{"value kind", ErrValueKind, false},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("x")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("x")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsTransient(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"missing config", ErrMissingConfig, true},
		{"handler panic", ErrHandlerPanic, true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("x")}, true},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("x")}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsFatal(tt.err))
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid data", ErrInvalidData, true},
		{"invalid config", ErrInvalidConfig, true},
		{"type kind", ErrTypeKind, true},
		{"import kind wrapped", fmt.Errorf("x: %w", ErrImportKind), true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("x")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsInvalid(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorTransient, Classify(nil))
	assert.Equal(t, ErrorInvalid, Classify(ErrAttributeKind))
	assert.Equal(t, ErrorFatal, Classify(ErrMissingConfig))
	assert.Equal(t, ErrorTransient, Classify(fmt.Errorf("something odd")))
}

func TestKindHelpers(t *testing.T) {
	tests := []struct {
		kind error
		name string
		is   func(error) bool
	}{
		{ErrTypeKind, "type", IsTypeKind},
		{ErrValueKind, "value", IsValueKind},
		{ErrImportKind, "import", IsImportKind},
		{ErrAttributeKind, "attribute", IsAttributeKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Newf(tt.kind, "Loader", "Resolve", "bad reference %q", "x")
			assert.True(t, tt.is(err))
			assert.True(t, IsInvalid(err))
			assert.Equal(t, tt.name, Kind(err))
			assert.Contains(t, err.Error(), `Loader.Resolve: bad reference "x"`)

			var ce *ClassifiedError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, "Loader", ce.Component)
			assert.Equal(t, "Resolve", ce.Operation)
		})
	}

	assert.Equal(t, "", Kind(fmt.Errorf("plain")))
}

func TestKindsAreDistinct(t *testing.T) {
	err := Newf(ErrImportKind, "Loader", "Resolve", "no module")
	assert.False(t, IsTypeKind(err))
	assert.False(t, IsValueKind(err))
	assert.False(t, IsAttributeKind(err))
}

func TestWrap(t *testing.T) {
	base := errors.New("boom")

	assert.Nil(t, Wrap(nil, "c", "m", "a"))
	assert.Nil(t, WrapInvalid(nil, "c", "m", "a"))
	assert.Nil(t, WrapTransient(nil, "c", "m", "a"))
	assert.Nil(t, WrapFatal(nil, "c", "m", "a"))

	err := Wrap(base, "Router", "Load", "sink setup")
	assert.Equal(t, "Router.Load: sink setup failed: boom", err.Error())
	assert.ErrorIs(t, err, base)

	tests := []struct {
		name  string
		wrap  func(error, string, string, string) error
		class ErrorClass
	}{
		{"transient", WrapTransient, ErrorTransient},
		{"invalid", WrapInvalid, ErrorInvalid},
		{"fatal", WrapFatal, ErrorFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.wrap(base, "Router", "Load", "sink setup")
			assert.Equal(t, tt.class, Classify(err))
			assert.ErrorIs(t, err, base)
			assert.Equal(t, "Router.Load: sink setup failed: boom", err.Error())
		})
	}
}

func TestWrapInvalidKeepsKind(t *testing.T) {
	err := WrapInvalid(fmt.Errorf("dup: %w", ErrValueKind), "Router", "Load", "register")
	assert.True(t, IsValueKind(err))
}

func TestDeliveryError(t *testing.T) {
	base := errors.New("disk full")
	de := &DeliveryError{Sink: "habitat.sinks.JSONLFile", MessageID: "abc", Type: "TELEM", Err: base}

	assert.Equal(t, "sink habitat.sinks.JSONLFile: handle TELEM message abc failed: disk full", de.Error())
	assert.ErrorIs(t, de, base)

	de.Panic = true
	de.Err = fmt.Errorf("%w: nil map", ErrHandlerPanic)
	assert.Contains(t, de.Error(), "panicked")
	assert.True(t, IsFatal(de))

	var target *DeliveryError
	wrapped := fmt.Errorf("outer: %w", de)
	require.True(t, As(wrapped, &target))
	assert.Equal(t, "abc", target.MessageID)
}
