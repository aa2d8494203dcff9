package bridge

import "time"

// SessionState is the connection state of a Session.
type SessionState int

const (
	// StateDisconnected is the initial and final state.
	StateDisconnected SessionState = iota

	// StateConnecting covers connect attempts and backoff waits.
	StateConnecting

	// StateConnected means the bus is up and the last fetch succeeded.
	StateConnected

	// StateDegraded means the bus is up but the last fetch failed.
	StateDegraded
)

// String returns the state name used in logs and metrics.
func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Backoff produces capped exponentially growing delays.
// Not safe for concurrent use.
type Backoff struct {
	initial time.Duration
	max     time.Duration
	next    time.Duration
}

// NewBackoff returns a Backoff starting at initial and doubling up to max.
func NewBackoff(initial, max time.Duration) *Backoff {
	if initial <= 0 {
		initial = time.Second
	}
	if max < initial {
		max = initial
	}
	return &Backoff{initial: initial, max: max, next: initial}
}

// Next returns the delay to wait before the next attempt.
func (b *Backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > b.max {
		b.next = b.max
	}
	return d
}

// Reset restarts the sequence after a successful attempt.
func (b *Backoff) Reset() {
	b.next = b.initial
}
