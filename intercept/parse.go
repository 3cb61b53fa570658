// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package intercept

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/openpull/openpull/logentry"
)

// loopMarkers are literal substrings that mark a line as originating
// from this package's own diagnostics rather than the tapped process.
// Lines containing either are dropped before parsing, guard or not.
var loopMarkers = []string{"[OpenPull", "DEBUG:"}

// isLoopMarked reports whether line carries one of the loop markers.
func isLoopMarked(line string) bool {
	for _, marker := range loopMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

// ParseLine normalizes a single line of process output into a
// logentry.LogEntry. defaultSeverity is used when the line isn't a
// JSON object, or when a JSON object's level/type field doesn't match
// one of the five known severities. now stamps LogEntry.Timestamp when
// the line doesn't itself carry a timestamp/time field.
//
// The line is trimmed of leading/trailing whitespace first. An empty
// trimmed line still produces an entry (with an empty Message) — it is
// the caller's job to filter those before handing them to a Sink.
func ParseLine(line string, defaultSeverity logentry.Severity, now time.Time) logentry.LogEntry {
	trimmed := strings.TrimSpace(line)
	nowStamp := logentry.FormatTimestamp(now)

	var raw map[string]any
	if trimmed == "" || json.Unmarshal([]byte(trimmed), &raw) != nil || !isJSONObject(raw) {
		return logentry.LogEntry{
			Type:      defaultSeverity,
			Message:   trimmed,
			Timestamp: nowStamp,
		}
	}

	entry := logentry.LogEntry{
		Type:      severityFrom(raw, defaultSeverity),
		Message:   stringFieldOr(raw, trimmed, "message", "msg"),
		Timestamp: stringFieldOr(raw, nowStamp, "timestamp", "time"),
	}

	// The source line's own keys (level, msg, ...) survive into Extra
	// unchanged, alongside the normalized type/message/timestamp — the
	// entry carries both the canonical view and the original fields.
	if len(raw) > 0 {
		entry.Extra = raw
	}

	return entry
}

// isJSONObject reports whether a value decoded by json.Unmarshal into
// map[string]any actually was a JSON object (as opposed to json.Unmarshal
// leaving raw nil because the input decoded into some other Go type,
// which map[string]any rejects with an error already handled above).
func isJSONObject(raw map[string]any) bool {
	return raw != nil
}

// severityFrom extracts a normalized severity from level then type,
// falling back to def when neither is present or neither value matches
// one of the five known literals.
func severityFrom(raw map[string]any, def logentry.Severity) logentry.Severity {
	for _, key := range []string{"level", "type"} {
		if v, ok := raw[key].(string); ok {
			if s := logentry.Severity(v); s.Valid() {
				return s
			}
		}
	}
	return def
}

// stringFieldOr returns the first of keys present in raw as a string,
// or def if none match.
func stringFieldOr(raw map[string]any, def string, keys ...string) string {
	for _, key := range keys {
		if v, ok := raw[key].(string); ok {
			return v
		}
	}
	return def
}
