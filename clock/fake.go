// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock parked at the given instant. It never
// advances on its own; call Advance to move it forward and fire any
// waiters whose deadline has passed.
func Fake(initial time.Time) *FakeClock {
	fc := &FakeClock{current: initial}
	fc.waiterAdded = sync.NewCond(&fc.mu)
	return fc
}

// FakeClock is a deterministic Clock for tests. Safe for concurrent use.
type FakeClock struct {
	mu          sync.Mutex
	current     time.Time
	waiters     []*waiter
	waiterAdded *sync.Cond
}

// waiter is a pending After or Ticker registration.
type waiter struct {
	deadline time.Time
	channel  chan time.Time
	interval time.Duration // non-zero for tickers
	stopped  bool
	fired    bool // one-shot only
}

// Now returns the fake clock's current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After registers a one-shot waiter that fires once the clock reaches
// current+d. A non-positive d fires immediately without
// registering anything (so tests never need to Advance for it).
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.current
		return ch
	}

	c.waiters = append(c.waiters, &waiter{
		deadline: c.current.Add(d),
		channel:  ch,
	})
	c.waiterAdded.Broadcast()
	return ch
}

// NewTicker registers a repeating waiter. Panics on non-positive d,
// matching time.NewTicker.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: NewTicker requires a positive interval")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	w := &waiter{
		deadline: c.current.Add(d),
		channel:  ch,
		interval: d,
	}
	c.waiters = append(c.waiters, w)
	c.waiterAdded.Broadcast()

	return &Ticker{
		C:    ch,
		stop: func() { c.stopWaiter(w) },
	}
}

func (c *FakeClock) stopWaiter(w *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w.stopped = true
}

// Advance moves the clock forward by d, firing every waiter whose
// deadline is now due, in deadline order. Ticker waiters that fire are
// rescheduled for their next interval; one-shot waiters are retired.
// Channel sends are non-blocking, matching time.Ticker/time.After
// semantics — a slow reader misses ticks rather than stalling Advance.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	due := c.collectDue(target)
	sort.Slice(due, func(i, j int) bool { return due[i].deadline.Before(due[j].deadline) })
	for _, w := range due {
		select {
		case w.channel <- target:
		default:
		}
	}
}

func (c *FakeClock) collectDue(target time.Time) []*waiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, remaining []*waiter
	for _, w := range c.waiters {
		if w.stopped {
			continue
		}
		if w.deadline.After(target) {
			remaining = append(remaining, w)
			continue
		}
		due = append(due, w)
		if w.interval > 0 {
			w.deadline = w.deadline.Add(w.interval)
			remaining = append(remaining, w)
		} else {
			w.fired = true
		}
	}
	c.waiters = remaining
	return due
}

// WaitForTimers blocks until at least n waiters (After/NewTicker calls
// that haven't fired or been stopped) are registered. This closes the
// race between a goroutine scheduling a timer and the test calling
// Advance before the timer exists.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.waiterAdded.Wait()
	}
}

// PendingCount reports the number of active (unfired, unstopped)
// waiters. Mainly useful for test assertions.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) pendingLocked() int {
	n := 0
	for _, w := range c.waiters {
		if !w.stopped && !w.fired {
			n++
		}
	}
	return n
}

var _ Clock = (*FakeClock)(nil)
var _ Clock = realClock{}
