package analyzer

import "errors"

var (
	// ErrValidation marks rejected input. The request never reaches the
	// pipeline and no risk outcome is recorded.
	ErrValidation = errors.New("invalid transaction intent")

	// ErrUpstreamUnavailable marks a semantic layer that could not produce
	// a judgment within its deadline.
	ErrUpstreamUnavailable = errors.New("semantic layer unavailable")

	// ErrConfiguration marks an unusable agent or service configuration.
	ErrConfiguration = errors.New("invalid configuration")
)
