// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

// Package intercept turns raw process output into logentry.LogEntry
// values and feeds them to a Sink.
//
// ForwardStreams reads a child process's stdout/stderr readers,
// line-splitting with bufio.Scanner. Forward instead taps the host
// process's own writers: it returns a Tap whose Stdout/Stderr mirror
// every write to the original destination while additionally parsing
// and submitting each line, and an idempotent restore function. This
// replaces the write-pointer-patching approach a dynamic runtime would
// use with an explicit wrapper — the original writers are never
// modified, so going back to them means writing to them instead of the
// Tap, and the restore function itself has nothing to undo.
package intercept
