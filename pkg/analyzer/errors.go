package analyzer

import "errors"

var (
	// ErrNoScores is returned when a training sample is requested before
	// any frame has been scored.
	ErrNoScores = errors.New("analyzer: no frame scored yet")

	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("analyzer: session not found")

	// ErrRateLimited is returned when frames arrive faster than allowed.
	ErrRateLimited = errors.New("analyzer: frame rate limit exceeded")

	// ErrTooManySessions is returned when the registry is full.
	ErrTooManySessions = errors.New("analyzer: too many sessions")
)
