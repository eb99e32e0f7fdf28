package client

import "time"

// Backoff produces exponentially increasing reconnect delays, capped at a
// fixed maximum. Not safe for concurrent use; each connection loop owns
// its own.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration

	next time.Duration
}

// DefaultBackoff returns the standard reconnect policy.
func DefaultBackoff() *Backoff {
	return &Backoff{Initial: time.Second, Max: 30 * time.Second}
}

// Next returns the delay before the next attempt and advances the
// schedule.
func (b *Backoff) Next() time.Duration {
	if b.next == 0 {
		b.next = b.Initial
	}
	d := b.next
	b.next *= 2
	if b.next > b.Max {
		b.next = b.Max
	}
	return d
}

// Reset restarts the schedule after a successful connection.
func (b *Backoff) Reset() {
	b.next = 0
}
