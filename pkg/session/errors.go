package session

import "errors"

// Sentinel errors for session core operations.
var (
	// ErrSessionNotFound is returned when a session code does not exist in
	// the registry. Unknown codes are never materialized.
	ErrSessionNotFound = errors.New("session: session not found")

	// ErrNotSubscribed is returned when a connection attempts to mutate a
	// session it has not joined.
	ErrNotSubscribed = errors.New("session: connection not subscribed")

	// ErrHubStopped is returned when an operation is posted to a hub that
	// has been shut down.
	ErrHubStopped = errors.New("session: hub stopped")

	// ErrInternal is returned when an event handler panicked. The loop
	// itself survives; only the offending event fails.
	ErrInternal = errors.New("session: internal error")
)
