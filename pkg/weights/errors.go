package weights

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrInsufficientSamples is returned by Train with too few samples.
	ErrInsufficientSamples = errors.New("weights: insufficient training samples")

	// ErrMissingComponent is returned when a profile omits a component.
	ErrMissingComponent = errors.New("weights: missing component")

	// ErrUnknownComponent is returned when a profile names an unknown component.
	ErrUnknownComponent = errors.New("weights: unknown component")

	// ErrInvalidWeight is returned for negative, NaN or infinite weights.
	ErrInvalidWeight = errors.New("weights: invalid weight")

	// ErrReservedProfile is returned when authoring a reserved profile name.
	ErrReservedProfile = errors.New("weights: reserved profile name")

	// ErrInvalidGroundTruth is returned for labels outside [0,100].
	ErrInvalidGroundTruth = errors.New("weights: ground truth must be within [0,100]")

	// ErrFitFailed is returned when regression cannot produce weights.
	ErrFitFailed = errors.New("weights: fit failed")
)

// ValidationError reports which component failed validation.
type ValidationError struct {
	Component Component
	Err       error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("weights [%s]: %v", e.Component, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}
