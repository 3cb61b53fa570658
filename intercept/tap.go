// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package intercept

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"

	"github.com/openpull/openpull/logentry"
)

// Tap wraps a pair of writers so that everything written through
// Stdout/Stderr reaches the original destination unchanged and is
// additionally parsed and submitted to a Sink. Restore is idempotent
// and safe to defer; it has nothing to undo, since the original writers
// are only wrapped, and writes made through Stdout/Stderr after it is
// called are still submitted.
type Tap struct {
	Stdout io.Writer
	Stderr io.Writer

	restoreOnce sync.Once
}

// Restore is a no-op placeholder retained for API symmetry with
// Forward's returned restore function; Tap itself holds no global
// state to undo; see Forward's doc comment for why.
func (t *Tap) Restore() {
	t.restoreOnce.Do(func() {})
}

// Forward wraps stdout and stderr writers with a Tap that mirrors every
// write to the original destination and submits parsed lines to sink.
// stdout lines default to logentry.SeverityInfo, stderr to
// logentry.SeverityError.
//
// Unlike a dynamic runtime's monkey-patched write pointer, callers must
// substitute the returned Tap.Stdout/Tap.Stderr wherever they currently
// write (e.g. as the destination for their own log package). Restore
// exists so callers that build a scoped acquisition pattern around
// Forward have a symmetric release step to defer, even though nothing
// process-global needs undoing here — the original writers are never
// mutated, only wrapped.
func Forward(stdout, stderr io.Writer, sink Sink, opts ...Option) (*Tap, func()) {
	options := newOptions(opts...)
	guard := &inFlightGuard{}

	tap := &Tap{
		Stdout: &tappedWriter{underlying: stdout, defaultSeverity: logentry.SeverityInfo, sink: sink, options: options, guard: guard},
		Stderr: &tappedWriter{underlying: stderr, defaultSeverity: logentry.SeverityError, sink: sink, options: options, guard: guard},
	}
	return tap, tap.Restore
}

// inFlightGuard scopes the "a submission is in progress" flag to a
// single Tap (shared by its Stdout and Stderr writers) rather than a
// process-wide flag: this process may host more than one Tap
// concurrently, and each Tap's diagnostic writes should only silence
// re-submission on that Tap's own writers.
type inFlightGuard struct {
	inFlight atomic.Bool
}

// tappedWriter mirrors writes to underlying and, unless a submission
// triggered by this same tap is currently in flight, parses each
// complete line and submits it to sink.
type tappedWriter struct {
	underlying      io.Writer
	defaultSeverity logentry.Severity
	sink            Sink
	options         *options
	guard           *inFlightGuard

	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *tappedWriter) Write(p []byte) (int, error) {
	n, err := w.underlying.Write(p)
	if err != nil {
		return n, err
	}

	// Recursion guard: if this write was produced by our own SendLog
	// call below (e.g. a delivery-layer diagnostic print that shares
	// this writer), pass it through without re-submitting.
	if w.guard.inFlight.Load() {
		return n, nil
	}

	w.mu.Lock()
	w.buf.Write(p)
	lines := w.drainCompleteLinesLocked()
	w.mu.Unlock()

	for _, line := range lines {
		if isLoopMarked(line) {
			continue
		}
		entry := ParseLine(line, w.defaultSeverity, w.options.clock.Now())
		if entry.Message == "" {
			continue
		}
		w.guard.inFlight.Store(true)
		w.sink.SendLog(entry)
		w.guard.inFlight.Store(false)
	}

	return n, nil
}

// drainCompleteLinesLocked removes and returns every newline-terminated
// line currently buffered, leaving a trailing partial line (if any) for
// the next Write. Must be called with w.mu held.
func (w *tappedWriter) drainCompleteLinesLocked() []string {
	var lines []string
	for {
		data := w.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, string(data[:idx]))
		w.buf.Next(idx + 1)
	}
	return lines
}
