package poll

import "errors"

// Error taxonomy for vendor fetch failures. Vendor adapters classify their
// native errors by wrapping one of these sentinels so the coordinator can
// pick the right recovery path with errors.Is().
var (
	// ErrTransient marks a network/timeout/temporary server failure.
	// Recovered locally via backoff; never surfaced to Refresh callers.
	ErrTransient = errors.New("poll: transient failure")

	// ErrAuthFailed marks rejected credentials. Surfaced exactly once from
	// the poll that discovered it; polling is then suspended until
	// ResetAuth is called.
	ErrAuthFailed = errors.New("poll: authentication failed")

	// ErrDisconnected marks a previously live session that was dropped.
	// Triggers exactly one reconnect-then-retry before degrading to
	// transient handling.
	ErrDisconnected = errors.New("poll: session disconnected")
)

// Configuration and lifecycle errors.
var (
	// ErrInvalidInterval is returned by New when the poll interval is not positive.
	ErrInvalidInterval = errors.New("poll: interval must be positive")

	// ErrInvalidMaxBackoff is returned by New when the maximum backoff is negative.
	ErrInvalidMaxBackoff = errors.New("poll: max backoff must not be negative")

	// ErrAlreadyStarted is returned by Start when the coordinator is already running.
	ErrAlreadyStarted = errors.New("poll: coordinator already started")

	// ErrStopped is returned by Refresh after Stop has been called.
	ErrStopped = errors.New("poll: coordinator stopped")
)
