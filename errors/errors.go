// Package errors provides standardized error handling for the habitat router.
// It includes error classification, the load-time error kinds reported by the
// loader and router, and helpers for consistent error wrapping.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input or configuration
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Load-time error kinds. Errors from message construction and reference
// resolution wrap exactly one of these, so callers can tell a malformed
// reference from a missing module.
var (
	// ErrTypeKind reports a value of the wrong kind (a TypeError).
	ErrTypeKind = errors.New("wrong kind")
	// ErrValueKind reports a value of the right kind that is not acceptable.
	ErrValueKind = errors.New("invalid value")
	// ErrImportKind reports a module that is not registered.
	ErrImportKind = errors.New("module not found")
	// ErrAttributeKind reports a member missing from an existing module.
	ErrAttributeKind = errors.New("member not found")
)

// Standard error variables for common conditions
var (
	// Lifecycle errors
	ErrShuttingDown = errors.New("shutting down")
	ErrClosed       = errors.New("closed")

	// Connection and networking errors
	ErrNoConnection      = errors.New("no connection available")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")

	// Data and storage errors
	ErrInvalidData        = errors.New("invalid data format")
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")

	// Delivery errors
	ErrHandlerPanic = errors.New("handler panicked")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// DeliveryError describes one abandoned delivery of a message to a sink.
// It is never returned to producers; the router logs it and records it in
// metrics and health.
type DeliveryError struct {
	Sink      string
	MessageID string
	Type      string
	Panic     bool
	Err       error
}

// Error implements the error interface
func (de *DeliveryError) Error() string {
	what := "failed"
	if de.Panic {
		what = "panicked"
	}
	return fmt.Sprintf("sink %s: handle %s message %s %s: %v", de.Sink, de.Type, de.MessageID, what, de.Err)
}

// Unwrap returns the underlying error
func (de *DeliveryError) Unwrap() error {
	return de.Err
}

// IsTransient checks if an error is transient and should be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	if errors.Is(err, ErrConnectionTimeout) ||
		errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrNoConnection) ||
		errors.Is(err, ErrStorageUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "connection", "temporary", "unavailable"} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// IsFatal checks if an error is fatal and should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrMissingConfig) || errors.Is(err, ErrHandlerPanic)
}

// IsInvalid checks if an error is due to invalid input
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	return errors.Is(err, ErrInvalidData) ||
		errors.Is(err, ErrInvalidConfig) ||
		IsTypeKind(err) || IsValueKind(err) || IsImportKind(err) || IsAttributeKind(err)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient
	}

	if IsInvalid(err) {
		return ErrorInvalid
	}
	if IsFatal(err) {
		return ErrorFatal
	}

	// Unknown errors default to transient so callers may retry
	return ErrorTransient
}

// IsTypeKind reports whether err wraps ErrTypeKind
func IsTypeKind(err error) bool { return errors.Is(err, ErrTypeKind) }

// IsValueKind reports whether err wraps ErrValueKind
func IsValueKind(err error) bool { return errors.Is(err, ErrValueKind) }

// IsImportKind reports whether err wraps ErrImportKind
func IsImportKind(err error) bool { return errors.Is(err, ErrImportKind) }

// IsAttributeKind reports whether err wraps ErrAttributeKind
func IsAttributeKind(err error) bool { return errors.Is(err, ErrAttributeKind) }

// Kind returns the name of the load-time kind wrapped by err, or "" if none.
func Kind(err error) string {
	switch {
	case IsTypeKind(err):
		return "type"
	case IsValueKind(err):
		return "value"
	case IsImportKind(err):
		return "import"
	case IsAttributeKind(err):
		return "attribute"
	default:
		return ""
	}
}

func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}

// Newf builds an invalid-class error of the given kind with a formatted
// detail, e.g. Newf(ErrValueKind, "Message", "New", "type %d out of range", t).
// The result matches both errors.Is(err, kind) and IsInvalid(err).
func Newf(kind error, component, method, format string, args ...any) error {
	detail := fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), kind)
	msg := fmt.Sprintf("%s.%s: %s", component, method, detail.Error())
	return newClassified(ErrorInvalid, detail, component, method, msg)
}

// Is reports whether any error in err's chain matches target.
// It lets callers use this package in place of the standard library one.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return errors.As(err, target) }

// New returns an error that formats as the given text.
func New(text string) error { return errors.New(text) }

// Join returns an error that wraps the given errors.
func Join(errs ...error) error { return errors.Join(errs...) }
