// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package intercept

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/openpull/openpull/clock"
	"github.com/openpull/openpull/logentry"
)

// ForwardStreams reads lines from a child process's stdout and stderr
// concurrently and submits each parsed, non-empty line to sink. stdout
// lines default to logentry.SeverityInfo; stderr lines default to
// logentry.SeverityError. Returns once both readers reach EOF/error.
// ctx is checked after each scanned line: once it is cancelled no
// further lines are submitted and the call returns ctx.Err(), but a
// reader blocked in Read is not interrupted, so the return waits until
// each reader next yields a line or reaches EOF/error.
//
// This is the entry point for the CLI launcher's child-process
// forwarding path; the core package never spawns processes itself.
func ForwardStreams(ctx context.Context, stdout, stderr io.Reader, sink Sink, opts ...Option) error {
	options := newOptions(opts...)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanReader(ctx, stdout, logentry.SeverityInfo, sink, options)
	}()
	go func() {
		defer wg.Done()
		scanReader(ctx, stderr, logentry.SeverityError, sink, options)
	}()
	wg.Wait()
	return ctx.Err()
}

func scanReader(ctx context.Context, r io.Reader, defaultSeverity logentry.Severity, sink Sink, options *options) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Text()
		if isLoopMarked(line) {
			continue
		}

		entry := ParseLine(line, defaultSeverity, options.clock.Now())
		if entry.Message == "" {
			continue
		}
		sink.SendLog(entry)
	}
	if err := scanner.Err(); err != nil {
		options.logger.Warn("stream scan stopped early", "error", err)
	}
}

// options carries the small set of injectable dependencies shared by
// ForwardStreams and Forward.
type options struct {
	clock  clock.Clock
	logger *slog.Logger
}

// Option configures ForwardStreams or Forward.
type Option func(*options)

// WithClock overrides the time source used to stamp entries with no
// timestamp/time field of their own. Defaults to clock.Real().
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger overrides the logger used for diagnostics. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func newOptions(opts ...Option) *options {
	o := &options{clock: clock.Real(), logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
