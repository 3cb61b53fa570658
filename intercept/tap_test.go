// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package intercept

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/openpull/openpull/clock"
	"github.com/openpull/openpull/logentry"
)

type recordingSink struct {
	mu      sync.Mutex
	entries []logentry.LogEntry
	onSend  func(logentry.LogEntry)
}

func (s *recordingSink) SendLog(entry logentry.LogEntry) {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	cb := s.onSend
	s.mu.Unlock()
	if cb != nil {
		cb(entry)
	}
}

func (s *recordingSink) snapshot() []logentry.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]logentry.LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func TestTapMirrorsWritesUnchanged(t *testing.T) {
	var underlying bytes.Buffer
	sink := &recordingSink{}
	tap, restore := Forward(&underlying, &bytes.Buffer{}, sink, WithClock(clock.Fake(time.Now())))
	defer restore()

	if _, err := tap.Stdout.Write([]byte("hello world\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if underlying.String() != "hello world\n" {
		t.Fatalf("underlying = %q, want mirrored write", underlying.String())
	}
}

func TestTapSubmitsCompleteLinesOnly(t *testing.T) {
	sink := &recordingSink{}
	tap, restore := Forward(&bytes.Buffer{}, &bytes.Buffer{}, sink, WithClock(clock.Fake(time.Now())))
	defer restore()

	tap.Stdout.Write([]byte("partial"))
	if len(sink.snapshot()) != 0 {
		t.Fatalf("expected no entries before newline, got %d", len(sink.snapshot()))
	}

	tap.Stdout.Write([]byte(" line\nsecond\n"))
	entries := sink.snapshot()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Message != "partial line" {
		t.Fatalf("entries[0].Message = %q", entries[0].Message)
	}
	if entries[1].Message != "second" {
		t.Fatalf("entries[1].Message = %q", entries[1].Message)
	}
}

func TestTapStderrDefaultsToErrorSeverity(t *testing.T) {
	sink := &recordingSink{}
	tap, restore := Forward(&bytes.Buffer{}, &bytes.Buffer{}, sink, WithClock(clock.Fake(time.Now())))
	defer restore()

	tap.Stderr.Write([]byte("failure occurred\n"))
	entries := sink.snapshot()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].Type != logentry.SeverityError {
		t.Fatalf("Type = %q, want error", entries[0].Type)
	}
}

func TestTapSkipsLoopMarkedLines(t *testing.T) {
	sink := &recordingSink{}
	tap, restore := Forward(&bytes.Buffer{}, &bytes.Buffer{}, sink, WithClock(clock.Fake(time.Now())))
	defer restore()

	tap.Stdout.Write([]byte("[OpenPull] delivered entry\nreal line\n"))
	entries := sink.snapshot()
	if len(entries) != 1 || entries[0].Message != "real line" {
		t.Fatalf("entries = %+v, want only the non-marked line", entries)
	}
}

// TestTapGuardsAgainstRecursion simulates a Sink whose SendLog itself
// writes a diagnostic line back through the same Tap.Stdout — as would
// happen if a delivery layer logged through the very writer it taps.
// Without the guard this would recurse forever (each submission
// producing another write, another submission...).
func TestTapGuardsAgainstRecursion(t *testing.T) {
	sink := &recordingSink{}
	tap, restore := Forward(&bytes.Buffer{}, &bytes.Buffer{}, sink, WithClock(clock.Fake(time.Now())))
	defer restore()

	depth := 0
	sink.onSend = func(entry logentry.LogEntry) {
		depth++
		if depth > 1 {
			t.Fatalf("SendLog re-entered, recursion guard did not hold")
		}
		if depth == 1 {
			tap.Stdout.Write([]byte("internal diagnostic line\n"))
		}
	}

	tap.Stdout.Write([]byte("triggering line\n"))

	entries := sink.snapshot()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want exactly 1 (diagnostic write must not resubmit)", len(entries))
	}
}

func TestTapRestoreIsIdempotent(t *testing.T) {
	sink := &recordingSink{}
	_, restore := Forward(&bytes.Buffer{}, &bytes.Buffer{}, sink, WithClock(clock.Fake(time.Now())))
	restore()
	restore()
}

func TestTapConcurrentWritesDoNotRace(t *testing.T) {
	sink := &recordingSink{}
	tap, restore := Forward(&bytes.Buffer{}, &bytes.Buffer{}, sink, WithClock(clock.Fake(time.Now())))
	defer restore()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tap.Stdout.Write([]byte(fmt.Sprintf("line %d\n", i)))
		}(i)
	}
	wg.Wait()

	if len(sink.snapshot()) != 20 {
		t.Fatalf("entries = %d, want 20", len(sink.snapshot()))
	}
}
