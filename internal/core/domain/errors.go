package domain

import "go.trai.ch/zerr"

var (
	// ErrInvalidKey is returned when a requested frame key lies outside the
	// loaded graph's output or frame range.
	ErrInvalidKey = zerr.New("frame key out of range")

	// ErrCapacityConfig is returned when a cache is constructed with a
	// non-positive byte capacity.
	ErrCapacityConfig = zerr.New("cache capacity must be positive")

	// ErrBackendFailure wraps a failure reported by the rendering backend for
	// a specific frame. Backend failures are never cached; re-requesting the
	// same key retries against the backend.
	ErrBackendFailure = zerr.New("backend failed to render frame")

	// ErrNoOutputs is returned when a session is opened against a graph that
	// exposes no outputs.
	ErrNoOutputs = zerr.New("rendering graph has no outputs")

	// ErrSessionClosed is returned for operations on a closed session.
	ErrSessionClosed = zerr.New("session closed")

	// ErrGraphReloaded resolves requests that were still pending when the
	// rendering graph was reloaded. The requested frame no longer exists in
	// the form it was asked for; callers should re-request against the new
	// graph.
	ErrGraphReloaded = zerr.New("rendering graph reloaded while request pending")
)
