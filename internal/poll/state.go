package poll

import "time"

// ConnState tracks the coordinator's view of the vendor session.
// Only the coordinator's own poll path mutates it; transitions are serialized.
type ConnState int

// Connection states.
const (
	// StateDisconnected means the last fetch failed or no fetch has run yet.
	StateDisconnected ConnState = iota

	// StateConnecting means a fetch is being attempted from a cold session.
	StateConnecting

	// StateConnected means the last fetch (or push update) succeeded.
	StateConnected

	// StateAuthFailed means credentials were rejected. Terminal until
	// ResetAuth; the poll loop does not call the vendor in this state.
	StateAuthFailed
)

// String returns the lowercase state name for logging and API payloads.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthFailed:
		return "auth_failed"
	default:
		return "disconnected"
	}
}

// IsAvailable reports whether entity state backed by this coordinator
// should be considered live. True only when Connected.
func (s ConnState) IsAvailable() bool {
	return s == StateConnected
}

// backoffState implements the linear retry delay applied after consecutive
// transient failures: delay = min(attempts * unit, max). The counter starts
// at zero (no gating before the first failure) and resets only on a
// confirmed success.
type backoffState struct {
	attempts    int
	lastFailure time.Time
}

// nextAllowedAt returns the earliest time the next fetch may run.
// The zero time means no gating applies.
func (b *backoffState) nextAllowedAt(unit, maxDelay time.Duration) time.Time {
	if b.attempts == 0 {
		return time.Time{}
	}
	delay := time.Duration(b.attempts) * unit
	if delay > maxDelay {
		delay = maxDelay
	}
	return b.lastFailure.Add(delay)
}

// recordFailure increments the consecutive-failure counter.
func (b *backoffState) recordFailure(now time.Time) {
	b.attempts++
	b.lastFailure = now
}

// recordSuccess resets the backoff to its initial state.
func (b *backoffState) recordSuccess() {
	*b = backoffState{}
}
