package eyestate

import "errors"

// ErrInvalidPolicy is returned when a Policy fails validation.
var ErrInvalidPolicy = errors.New("eyestate: invalid policy")
