// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package rtcmanager

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/openpull/openpull/clock"
	"github.com/openpull/openpull/connstring"
	"github.com/openpull/openpull/delivery"
	"github.com/openpull/openpull/logentry"
	"github.com/openpull/openpull/signaling"
)

func TestIsInitiatorAntisymmetric(t *testing.T) {
	a, b := "alpha", "beta"
	if isInitiator(a, b) == isInitiator(b, a) {
		t.Fatal("exactly one side should be the initiator")
	}
}

func TestIsInitiatorPicksLexicographicallySmaller(t *testing.T) {
	if !isInitiator("alpha", "beta") {
		t.Fatal("alpha sorts before beta, should be initiator")
	}
	if isInitiator("beta", "alpha") {
		t.Fatal("beta sorts after alpha, should not be initiator")
	}
}

func TestRoleComplements(t *testing.T) {
	cases := []struct {
		a, b connstring.Role
		want bool
	}{
		{connstring.RoleAppender, connstring.RoleReader, true},
		{connstring.RoleReader, connstring.RoleAppender, true},
		{connstring.RoleAppender, connstring.RoleAppender, false},
		{connstring.RoleReader, connstring.RoleReader, false},
	}
	for _, c := range cases {
		if got := roleComplements(c.a, c.b); got != c.want {
			t.Errorf("roleComplements(%q, %q) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Pending:     "pending",
		Negotiating: "negotiating",
		Open:        "open",
		Closed:      "closed",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

// recordingObserver records channel open/close/log events for assertions.
type recordingObserver struct {
	mu      sync.Mutex
	opened  []string
	closed  []string
	logs    []logentry.LogEntry
	openCh  chan string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{openCh: make(chan string, 4)}
}

func (o *recordingObserver) OnChannelOpened(peerID string, sender delivery.ChannelSender) {
	o.mu.Lock()
	o.opened = append(o.opened, peerID)
	o.mu.Unlock()
	o.openCh <- peerID
}

func (o *recordingObserver) OnChannelClosed(peerID string) {
	o.mu.Lock()
	o.closed = append(o.closed, peerID)
	o.mu.Unlock()
}

func (o *recordingObserver) OnLogReceived(entry logentry.LogEntry) {
	o.mu.Lock()
	o.logs = append(o.logs, entry)
	o.mu.Unlock()
}

// relaySender forwards outbound messages from one Manager directly into
// its peer Manager's signaling.Handler methods, standing in for a real
// signaling server round trip within a single process. selfID is the
// sending manager's own peer id, forwarded as the fromPeerID the
// receiving manager expects.
type relaySender struct {
	selfID string
	peer   *Manager
}

func (s *relaySender) Send(msg any) error {
	switch m := msg.(type) {
	case signaling.OfferMessage:
		go s.peer.OnOffer(s.selfID, m.Offer)
	case signaling.AnswerMessage:
		go s.peer.OnAnswer(s.selfID, m.Answer)
	case signaling.ICECandidateMessage:
		go s.peer.OnICECandidate(s.selfID, m.Candidate)
	}
	return nil
}

// TestManagerElectionOpensDataChannelBothSides drives two Managers
// (an appender "alpha" and a reader "beta") through peer discovery and
// SDP/ICE exchange over loopback and verifies both sides observe the
// channel opening.
func TestManagerElectionOpensDataChannelBothSides(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := clock.Real()

	obsA := newRecordingObserver()
	obsB := newRecordingObserver()

	mgrA := New(connstring.RoleAppender, ICEConfig{}, nil, obsA, c, logger)
	mgrB := New(connstring.RoleReader, ICEConfig{}, nil, obsB, c, logger)

	// alpha sorts before beta, so alpha is initiator.
	mgrA.SetLocalPeerID("alpha")
	mgrB.SetLocalPeerID("beta")

	mgrA.sender = &relaySender{selfID: "alpha", peer: mgrB}
	mgrB.sender = &relaySender{selfID: "beta", peer: mgrA}

	mgrA.OnPeerList([]signaling.PeerSummary{{PeerID: "beta", Role: string(connstring.RoleReader)}})
	mgrB.OnPeerList([]signaling.PeerSummary{{PeerID: "alpha", Role: string(connstring.RoleAppender)}})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	select {
	case <-obsA.openCh:
	case <-ctx.Done():
		t.Fatal("timed out waiting for alpha's channel to open")
	}
	select {
	case <-obsB.openCh:
	case <-ctx.Done():
		t.Fatal("timed out waiting for beta's channel to open")
	}
}

// TestManagerSameRolePeersNeverConnect exercises spec Invariant 7 /
// Scenario S7: two peers with the same role must never open a
// connection to each other.
func TestManagerSameRolePeersNeverConnect(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	obs := newRecordingObserver()
	mgr := New(connstring.RoleAppender, ICEConfig{}, &noopSender{}, obs, clock.Real(), logger)
	mgr.SetLocalPeerID("alpha")

	mgr.OnPeerList([]signaling.PeerSummary{{PeerID: "gamma", Role: string(connstring.RoleAppender)}})

	select {
	case <-obs.openCh:
		t.Fatal("channel opened for same-role peer, want no connection")
	case <-time.After(200 * time.Millisecond):
	}
}

type noopSender struct{}

func (noopSender) Send(msg any) error { return nil }
