// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package rtcmanager

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/openpull/openpull/connstring"
)

// State is a position in the per-peer connection lifecycle.
type State int

const (
	// Pending: election has decided a role (initiator or answerer) but no
	// local description has been produced yet.
	Pending State = iota
	// Negotiating: a local SDP description has been emitted; waiting on
	// the data channel to open.
	Negotiating
	// Open: the "logs" data channel is open and ready to send/receive.
	Open
	// Closed: terminal. The connection is torn down and removed from the
	// manager's connection set.
	Closed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Negotiating:
		return "negotiating"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is the per-peer record the manager owns exclusively. Never
// shared across peers. The owning Manager's mutex guards the set of
// connections; the connection's own mutex guards its state, data
// channel, and pending ICE candidates.
type Connection struct {
	PeerID     string
	RemoteRole connstring.Role
	Initiator  bool

	peerConnection *webrtc.PeerConnection
	dataChannel    *webrtc.DataChannel

	mu    sync.Mutex
	state State

	// pendingCandidates buffers remote ICE candidates that arrive before
	// the remote description is set.
	pendingCandidates []webrtc.ICECandidateInit
	remoteDescSet     bool
}

func newConnection(peerID string, role connstring.Role, initiator bool, pc *webrtc.PeerConnection) *Connection {
	return &Connection{
		PeerID:         peerID,
		RemoteRole:     role,
		Initiator:      initiator,
		peerConnection: pc,
		state:          Pending,
	}
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// PeerConnectionState reads the underlying pion connection state. Returns
// webrtc.PeerConnectionStateClosed if the connection has already been
// released.
func (c *Connection) PeerConnectionState() webrtc.PeerConnectionState {
	if c.peerConnection == nil {
		return webrtc.PeerConnectionStateClosed
	}
	return c.peerConnection.ConnectionState()
}

// Send writes data on the "logs" data channel. Returns an error if no
// channel is open.
func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	dc := c.dataChannel
	state := c.state
	c.mu.Unlock()

	if state != Open || dc == nil {
		return &TransportError{PeerID: c.PeerID, Reason: "data channel not open"}
	}
	// SendText marks the frame as a WebRTC text message, matching a
	// browser-side RTCDataChannel.send(string) on the reader dashboard.
	if err := dc.SendText(string(data)); err != nil {
		return &TransportError{PeerID: c.PeerID, Reason: "send failed", Cause: err}
	}
	return nil
}

// close releases the peer connection and data channel best-effort. Safe
// to call more than once.
func (c *Connection) close() {
	c.mu.Lock()
	dc := c.dataChannel
	pc := c.peerConnection
	c.state = Closed
	c.mu.Unlock()

	if dc != nil {
		_ = dc.Close()
	}
	if pc != nil {
		_ = pc.Close()
	}
}

// TransportError reports a per-channel send failure or SDP application
// failure. Logged, never fatal to the connection — teardown is driven
// only by signaling or state transitions.
type TransportError struct {
	PeerID string
	Reason string
	Cause  error
}

func (e *TransportError) Error() string {
	if e.Cause != nil {
		return "transport error for peer " + e.PeerID + ": " + e.Reason + ": " + e.Cause.Error()
	}
	return "transport error for peer " + e.PeerID + ": " + e.Reason
}

func (e *TransportError) Unwrap() error { return e.Cause }
