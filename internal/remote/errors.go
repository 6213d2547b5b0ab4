package remote

import "errors"

// Sentinel errors for the resolver fallback chain. Both are recoverable:
// the orchestrator converts them into a fall-through to the local
// classifier, never a process failure.
var (
	// ErrUnavailable means the network call failed or timed out.
	ErrUnavailable = errors.New("remote resolver unavailable")

	// ErrMalformedResponse means the model returned a payload that cannot
	// be parsed into the expected (intent, action, parameters, confidence)
	// shape.
	ErrMalformedResponse = errors.New("malformed remote response")
)
