package inference

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrLandmarksUnavailable signals callers to use proportional eye regions.
	ErrLandmarksUnavailable = errors.New("inference: landmarks unavailable")

	// ErrModelUnavailable is returned when the required model is not loaded.
	ErrModelUnavailable = errors.New("inference: model unavailable")

	// ErrEmptyCrop is returned when a region does not overlap the frame.
	ErrEmptyCrop = errors.New("inference: empty crop")

	// ErrUnsupportedFrame is returned when a backend receives a frame it did not produce.
	ErrUnsupportedFrame = errors.New("inference: unsupported frame type")

	// ErrBackendUnavailable is returned when no backends are available.
	ErrBackendUnavailable = errors.New("inference: backend unavailable")
)

// BackendError wraps an error with backend context.
type BackendError struct {
	Backend string
	Op      string
	Err     error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("inference [%s] %s: %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("inference [%s]: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with backend and operation context.
func WrapError(backend, op string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Backend: backend, Op: op, Err: err}
}

// ChainError aggregates errors from all backends in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "inference chain: no errors recorded"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("inference chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("inference chain: all %d backends failed, last error: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap returns every recorded error so errors.Is matches any of them.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}
