package stream

import (
	"math/rand"
	"time"
)

// Backoff defines reconnect delay growth.
type Backoff struct {
	// Base is the delay after the first failure.
	Base time.Duration
	// Max caps the delay.
	Max time.Duration
	// Factor multiplies the delay for each further failure.
	Factor float64
	// Jitter randomizes the delay as a fraction (0-1). Zero keeps the
	// sequence strictly deterministic and non-decreasing.
	Jitter float64
}

// DefaultBackoff provides the reconnect defaults for exchange streams.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:   time.Second,
		Max:    300 * time.Second,
		Factor: 2.0,
	}
}

// Next returns the delay before the given attempt (1-based). The sequence is
// non-decreasing and capped at Max; a successful connect resets the attempt
// count so the next delay is Base again.
func (b Backoff) Next(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	base := b.Base
	if base <= 0 {
		base = time.Second
	}
	max := b.Max
	if max <= 0 {
		max = 300 * time.Second
	}
	factor := b.Factor
	if factor <= 1 {
		factor = 2.0
	}

	wait := base
	for i := 1; i < attempt; i++ {
		next := time.Duration(float64(wait) * factor)
		if next > max {
			wait = max
			break
		}
		wait = next
	}

	if b.Jitter <= 0 {
		return wait
	}
	jitter := b.Jitter
	if jitter > 1 {
		jitter = 1
	}
	delta := float64(wait) * jitter
	return wait - time.Duration(delta) + time.Duration(rand.Float64()*2*delta)
}
