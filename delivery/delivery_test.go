// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package delivery

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/openpull/openpull/clock"
	"github.com/openpull/openpull/connstring"
	"github.com/openpull/openpull/logentry"
)

type fakeSender struct {
	sent    [][]byte
	failing bool
}

func (s *fakeSender) Send(data []byte) error {
	if s.failing {
		return errors.New("send failed")
	}
	s.sent = append(s.sent, data)
	return nil
}

type fakeBroadcaster struct {
	senders []ChannelSender
}

func (b *fakeBroadcaster) OpenReaderChannels() []ChannelSender { return b.senders }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendLogAppendsAndBroadcasts(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	buf := NewBuffer(c)
	sender := &fakeSender{}
	d := New(connstring.RoleAppender, buf, &fakeBroadcaster{senders: []ChannelSender{sender}}, discardLogger())

	d.SendLog(entry("hello"))

	if buf.Len() != 1 {
		t.Fatalf("buffer len = %d, want 1", buf.Len())
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(sender.sent))
	}

	var decoded logentry.LogEntry
	if err := json.Unmarshal(sender.sent[0], &decoded); err != nil {
		t.Fatalf("decoding broadcast payload: %v", err)
	}
	if decoded.Message != "hello" {
		t.Fatalf("Message = %q, want hello", decoded.Message)
	}
}

func TestSendLogNoOpWhenNotAppender(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	buf := NewBuffer(c)
	sender := &fakeSender{}
	d := New(connstring.RoleReader, buf, &fakeBroadcaster{senders: []ChannelSender{sender}}, discardLogger())

	d.SendLog(entry("should not send"))

	if buf.Len() != 0 {
		t.Fatalf("buffer len = %d, want 0 for reader role", buf.Len())
	}
	if len(sender.sent) != 0 {
		t.Fatalf("sent = %d, want 0 for reader role", len(sender.sent))
	}
}

func TestSendLogStillBuffersOnZeroReaderChannels(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	buf := NewBuffer(c)
	d := New(connstring.RoleAppender, buf, &fakeBroadcaster{}, discardLogger())

	d.SendLog(entry("nobody listening"))

	if buf.Len() != 1 {
		t.Fatalf("buffer len = %d, want 1", buf.Len())
	}
}

func TestSendLogFailingSenderDoesNotPanicOrStopOthers(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	buf := NewBuffer(c)
	failing := &fakeSender{failing: true}
	ok := &fakeSender{}
	d := New(connstring.RoleAppender, buf, &fakeBroadcaster{senders: []ChannelSender{failing, ok}}, discardLogger())

	d.SendLog(entry("x"))

	if len(ok.sent) != 1 {
		t.Fatalf("healthy sender got %d sends, want 1", len(ok.sent))
	}
}

func TestOnConnectionOpenedReplaysSnapshotOnly(t *testing.T) {
	c := clock.Fake(time.Unix(0, 0))
	buf := NewBuffer(c)
	buf.Push(entry("a"))
	buf.Push(entry("b"))

	d := New(connstring.RoleAppender, buf, &fakeBroadcaster{}, discardLogger())
	sender := &fakeSender{}
	d.OnConnectionOpened("peer-1", sender)

	if len(sender.sent) != 2 {
		t.Fatalf("replayed = %d, want 2", len(sender.sent))
	}
}

func TestDecodeEntryRoundTrip(t *testing.T) {
	original := logentry.LogEntry{Type: logentry.SeverityWarning, Message: "m", Timestamp: "t", Extra: map[string]any{"k": "v"}}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoded, err := DecodeEntry(data)
	if err != nil {
		t.Fatalf("DecodeEntry: %v", err)
	}
	if decoded.Message != "m" || decoded.Type != logentry.SeverityWarning {
		t.Fatalf("decoded = %+v", decoded)
	}
}
