// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/openpull/openpull/connstring"
	"github.com/openpull/openpull/logentry"
)

// ChannelSender is anything that can carry a single-line JSON payload to
// one peer. rtcmanager.Connection satisfies this structurally without
// either package importing the other's concrete type.
type ChannelSender interface {
	Send(data []byte) error
}

// Broadcaster enumerates the data channels currently open to peers in
// the reader role. rtcmanager.Manager implements this for Delivery.
type Broadcaster interface {
	OpenReaderChannels() []ChannelSender
}

// Delivery is the role-guarded entry point log entries flow through: it
// appends unconditionally to the retention buffer and then broadcasts to
// every open reader channel.
type Delivery struct {
	role        connstring.Role
	buffer      *Buffer
	broadcaster Broadcaster
	logger      *slog.Logger
}

// New constructs a Delivery for a manager acting in role, backed by
// buffer and broadcaster.
func New(role connstring.Role, buffer *Buffer, broadcaster Broadcaster, logger *slog.Logger) *Delivery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Delivery{role: role, buffer: buffer, broadcaster: broadcaster, logger: logger}
}

// SendLog appends entry to the retention buffer and broadcasts it to
// every currently open reader channel. A no-op with a warning when this
// manager isn't in the appender role — readers never originate logs.
// Never returns an error and never panics: per-channel failures are
// logged, not surfaced, and don't remove the connection.
func (d *Delivery) SendLog(entry logentry.LogEntry) {
	if d.role != connstring.RoleAppender {
		d.logger.Warn("sendLog called while not in appender role", "role", d.role)
		return
	}

	d.buffer.Push(entry)

	data, err := json.Marshal(entry)
	if err != nil {
		d.logger.Error("encoding log entry for broadcast", "error", err)
		return
	}

	for _, sender := range d.broadcaster.OpenReaderChannels() {
		if err := sender.Send(data); err != nil {
			d.logger.Warn("sending log entry to reader channel failed", "error", err)
		}
	}
}

// OnConnectionOpened replays a non-destructive snapshot of the retention
// buffer through sender, the channel that just opened to peerID. Called
// by rtcmanager when a data channel to a reader transitions to Open.
func (d *Delivery) OnConnectionOpened(peerID string, sender ChannelSender) {
	for _, entry := range d.buffer.Snapshot() {
		data, err := json.Marshal(entry)
		if err != nil {
			d.logger.Error("encoding buffered entry for replay", "peer", peerID, "error", err)
			continue
		}
		if err := sender.Send(data); err != nil {
			d.logger.Warn("replaying buffered entry to newly opened channel failed",
				"peer", peerID, "error", err)
			return
		}
	}
}

// DecodeEntry parses a single-line JSON payload received on a data
// channel back into a LogEntry, for the reader side.
func DecodeEntry(data []byte) (logentry.LogEntry, error) {
	var entry logentry.LogEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return logentry.LogEntry{}, fmt.Errorf("decoding inbound log entry: %w", err)
	}
	return entry, nil
}
