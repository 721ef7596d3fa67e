package client

import (
	"time"

	"lukechampine.com/frand"
)

const (
	DefaultBackoffMin = time.Second
	DefaultBackoffMax = 2 * time.Minute
)

// Backoff produces reconnect delays that double from Min up to Max. Each
// delay is shortened by a random amount of up to a quarter so relays that
// dropped together do not all retry in step. Attempts are unbounded.
type Backoff struct {
	Min, Max time.Duration
	attempt  int
}

// NewBackoff returns a Backoff, substituting defaults for zero bounds.
func NewBackoff(lo, hi time.Duration) *Backoff {
	if lo <= 0 {
		lo = DefaultBackoffMin
	}
	if hi < lo {
		hi = DefaultBackoffMax
		if hi < lo {
			hi = lo
		}
	}
	return &Backoff{Min: lo, Max: hi}
}

// Next returns the delay before the next attempt.
func (b *Backoff) Next() (d time.Duration) {
	d = b.Min
	for i := 0; i < b.attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	if d < b.Max {
		b.attempt++
	}
	if j := uint64(d / 4); j > 0 {
		d -= time.Duration(frand.Uint64n(j + 1))
	}
	return
}

// Reset starts the sequence again from Min, after a successful connection.
func (b *Backoff) Reset() { b.attempt = 0 }
