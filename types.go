// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package openpull

import "github.com/openpull/openpull/logentry"

// LogEntry is the canonical shape of a delivered log line. Aliased from
// logentry so callers never need to import that package directly; it
// exists separately only to let intercept, delivery, and rtcmanager
// depend on it without importing this package back.
type LogEntry = logentry.LogEntry

// Severity is one of the five recognized log levels.
type Severity = logentry.Severity

const (
	SeverityInfo    = logentry.SeverityInfo
	SeverityError   = logentry.SeverityError
	SeverityWarning = logentry.SeverityWarning
	SeverityDebug   = logentry.SeverityDebug
	SeverityTrace   = logentry.SeverityTrace
)

// ConnectionEvent reports a peer data channel opening or closing.
type ConnectionEvent = logentry.ConnectionEvent
