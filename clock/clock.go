// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source so that the
// retention buffer, the stale-connection sweep, and initiator election
// delay can be driven deterministically in tests instead of racing
// against the wall clock.
//
// Production code takes a Clock field (defaulting to Real() when the
// caller passes nil) instead of calling time.Now, time.After, or
// time.NewTicker directly. Tests substitute Fake() and advance time
// explicitly with Advance.
package clock

import "time"

// Clock abstracts the handful of time operations the engine needs.
// Real() delegates to the standard library; Fake() gives tests full
// control over elapsed time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once duration d has
	// elapsed. A non-positive d fires immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering on the given interval.
	// Panics if d is non-positive.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. Stop releases its resources; it does
// not close C.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns off the ticker. No further ticks arrive on C afterward.
func (t *Ticker) Stop() { t.stop() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTicker(d time.Duration) *Ticker {
	ticker := time.NewTicker(d)
	return &Ticker{C: ticker.C, stop: ticker.Stop}
}
