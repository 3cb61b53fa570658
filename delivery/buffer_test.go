// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"testing"
	"time"

	"github.com/openpull/openpull/clock"
	"github.com/openpull/openpull/logentry"
)

func entry(msg string) logentry.LogEntry {
	return logentry.LogEntry{Type: logentry.SeverityInfo, Message: msg, Timestamp: "now"}
}

func TestBufferSnapshotReturnsInOrder(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	b := NewBuffer(c)

	b.Push(entry("a"))
	b.Push(entry("b"))
	b.Push(entry("c"))

	snap := b.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len = %d, want 3", len(snap))
	}
	if snap[0].Message != "a" || snap[1].Message != "b" || snap[2].Message != "c" {
		t.Fatalf("order = %+v", snap)
	}
}

// TestBufferRetentionEvictsAfter60s exercises spec Invariant 3 and
// Scenario S6: an entry enqueued at t=0 is gone once queried at
// t>=60s.
func TestBufferRetentionEvictsAfter60s(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	b := NewBuffer(c)
	b.Push(entry("early"))

	c.Advance(65 * time.Second)

	if snap := b.Snapshot(); len(snap) != 0 {
		t.Fatalf("Snapshot after 65s = %+v, want empty", snap)
	}
}

// TestBufferRetentionKeepsRecentEntries exercises Scenario S5:
// entries at t=0,1,2 must all still be present at t=3.
func TestBufferRetentionKeepsRecentEntries(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	b := NewBuffer(c)

	b.Push(entry("t0"))
	c.Advance(1 * time.Second)
	b.Push(entry("t1"))
	c.Advance(1 * time.Second)
	b.Push(entry("t2"))
	c.Advance(1 * time.Second)

	snap := b.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len = %d, want 3 at t=3", len(snap))
	}
}

func TestBufferPartialEviction(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	b := NewBuffer(c)

	b.Push(entry("old"))
	c.Advance(61 * time.Second)
	b.Push(entry("new"))

	snap := b.Snapshot()
	if len(snap) != 1 || snap[0].Message != "new" {
		t.Fatalf("snap = %+v, want only 'new' to survive", snap)
	}
}

// TestBufferNonDestructiveReplay exercises spec Invariant 5: two readers
// snapshotting at different times both see everything still in the
// retention window at their respective read time.
func TestBufferNonDestructiveReplay(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	b := NewBuffer(c)
	b.Push(entry("shared"))

	first := b.Snapshot()
	c.Advance(1 * time.Second)
	second := b.Snapshot()

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("first=%+v second=%+v, want both to see the entry", first, second)
	}
}

func TestBufferEmpty(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	b := NewBuffer(c)
	if snap := b.Snapshot(); len(snap) != 0 {
		t.Fatalf("snap = %+v, want empty", snap)
	}
}
