// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"sync"
	"time"

	"github.com/openpull/openpull/clock"
	"github.com/openpull/openpull/logentry"
)

// RetentionWindow is how long an entry stays eligible for replay to a
// newly opened reader channel.
const RetentionWindow = 60 * time.Second

// BufferedEntry pairs a LogEntry with the instant it was enqueued.
type BufferedEntry struct {
	Entry      logentry.LogEntry
	EnqueuedAt time.Time
}

// Buffer is an ordered, time-bounded FIFO of recently delivered log
// entries. Enqueue order equals arrival order, so eviction is always a
// prefix trim. Safe for concurrent use.
type Buffer struct {
	clock clock.Clock

	mu      sync.Mutex
	entries []BufferedEntry
}

// NewBuffer returns an empty buffer driven by c.
func NewBuffer(c clock.Clock) *Buffer {
	return &Buffer{clock: c}
}

// Push appends entry, stamping it with the current time, then evicts
// everything RetentionWindow old or older.
func (b *Buffer) Push(entry logentry.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	b.entries = append(b.entries, BufferedEntry{Entry: entry, EnqueuedAt: now})
	b.evictLocked(now)
}

// Snapshot evicts expired entries and returns a non-destructive copy of
// what remains, in enqueue order. Non-destructive because more than one
// reader may connect at different times and each must see the same
// recent window.
func (b *Buffer) Snapshot() []logentry.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.evictLocked(b.clock.Now())
	out := make([]logentry.LogEntry, len(b.entries))
	for i, e := range b.entries {
		out[i] = e.Entry
	}
	return out
}

// evictLocked drops every entry whose age relative to now is
// RetentionWindow or more. Must be called with b.mu held.
func (b *Buffer) evictLocked(now time.Time) {
	cutoff := now.Add(-RetentionWindow)
	i := 0
	for i < len(b.entries) && !b.entries[i].EnqueuedAt.After(cutoff) {
		i++
	}
	if i > 0 {
		b.entries = b.entries[i:]
	}
}

// Len reports the number of entries currently retained, without forcing
// an eviction pass.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}
