// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package rtcmanager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/openpull/openpull/clock"
	"github.com/openpull/openpull/connstring"
	"github.com/openpull/openpull/delivery"
	"github.com/openpull/openpull/logentry"
	"github.com/openpull/openpull/peerreg"
	"github.com/openpull/openpull/signaling"
)

const (
	dataChannelLabel = "logs"
	joinElectionWait = 1 * time.Second
	sweepInterval    = 5 * time.Second
)

var (
	_ signaling.Handler   = (*Manager)(nil)
	_ delivery.Broadcaster = (*Manager)(nil)
)

// ConnectionObserver is notified of data-channel open/close transitions.
// delivery.Delivery and openpull.Manager's connection-event observers
// both subscribe through this.
type ConnectionObserver interface {
	OnChannelOpened(peerID string, sender delivery.ChannelSender)
	OnChannelClosed(peerID string)
	OnLogReceived(entry logentry.LogEntry)
}

// Manager owns every RTC Connection for one signaling session. It
// implements signaling.Handler: inbound peer and SDP/ICE messages drive
// the state machine directly from the signaling receive loop.
type Manager struct {
	localRole connstring.Role
	iceConfig ICEConfig
	sender    signaling.Sender
	registry  *peerreg.Registry
	observer  ConnectionObserver
	clock     clock.Clock
	logger    *slog.Logger

	mu          sync.Mutex
	localPeerID string
	connections map[string]*Connection

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// New constructs a Manager. localRole is this manager's own role
// (appender or reader); sender publishes outbound signaling messages;
// observer is notified of channel and inbound-log events.
func New(localRole connstring.Role, iceConfig ICEConfig, sender signaling.Sender, observer ConnectionObserver, c clock.Clock, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = clock.Real()
	}
	return &Manager{
		localRole:   localRole,
		iceConfig:   iceConfig,
		sender:      sender,
		registry:    peerreg.New(),
		observer:    observer,
		clock:       c,
		logger:      logger,
		connections: make(map[string]*Connection),
	}
}

// SetLocalPeerID records the id the signaling server assigned this
// manager on auth_success. Election compares this against remote peer
// ids.
func (m *Manager) SetLocalPeerID(peerID string) {
	m.mu.Lock()
	m.localPeerID = peerID
	m.mu.Unlock()
}

// StartSweep launches the 5s stale-connection sweep. Call once after
// SetLocalPeerID; stopped by Close.
func (m *Manager) StartSweep(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.sweepCancel = cancel
	m.sweepDone = make(chan struct{})

	go func() {
		defer close(m.sweepDone)
		ticker := m.clock.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.sweep()
			}
		}
	}()
}

// sweep tears down any connection whose underlying peer connection has
// already failed or closed but whose teardown signal from signaling
// never arrived. A fallback only; peer_disconnected is authoritative.
func (m *Manager) sweep() {
	for _, conn := range m.snapshotConnections() {
		state := conn.PeerConnectionState()
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			m.teardown(conn.PeerID)
		}
	}
}

func (m *Manager) snapshotConnections() []*Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		out = append(out, c)
	}
	return out
}

// OpenReaderChannels implements delivery.Broadcaster.
func (m *Manager) OpenReaderChannels() []delivery.ChannelSender {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []delivery.ChannelSender
	for _, c := range m.connections {
		if c.RemoteRole == connstring.RoleReader && c.State() == Open {
			out = append(out, c)
		}
	}
	return out
}

// --- signaling.Handler for peer-list/join/disconnect ---

// OnPeerList implements signaling.Handler for the peer roster snapshot.
// Election runs immediately for every complementary peer.
func (m *Manager) OnPeerList(peers []signaling.PeerSummary) {
	infos := make([]peerreg.PeerInfo, 0, len(peers))
	for _, p := range peers {
		infos = append(infos, peerreg.PeerInfo{PeerID: p.PeerID, Role: connstring.Role(p.Role)})
	}
	m.registry.Reset(infos)
	for _, info := range infos {
		m.maybeConnect(info)
	}
}

// OnPeerJoined implements signaling.Handler. Election runs after a 1s
// delay to let the just-joined peer settle.
func (m *Manager) OnPeerJoined(peerID string, role string) {
	info := peerreg.PeerInfo{PeerID: peerID, Role: connstring.Role(role)}
	m.registry.Upsert(info)

	go func() {
		<-m.clock.After(joinElectionWait)
		m.maybeConnect(info)
	}()
}

// OnPeerDisconnected implements signaling.Handler.
func (m *Manager) OnPeerDisconnected(peerID string) {
	m.registry.Remove(peerID)
	m.teardown(peerID)
}

// OnServerError implements signaling.Handler for the parts of the
// catalog rtcmanager doesn't otherwise act on. Session-level handling of
// server errors belongs to the openpull root package's Manager; here
// it's a diagnostic only.
func (m *Manager) OnServerError(message string) {
	m.logger.Warn("signaling server error", "message", message)
}

// OnAuthChallenge and OnAuthSuccess are handled by the caller (the
// openpull root package owns the auth handshake); Manager only needs
// SetLocalPeerID once auth completes. These no-ops let Manager satisfy
// signaling.Handler on its own for tests that don't route auth through
// it.
func (m *Manager) OnAuthChallenge(nonce string, timestamp int64) {}
func (m *Manager) OnAuthSuccess(peerID string)                   { m.SetLocalPeerID(peerID) }

// maybeConnect applies the peer filter and, if this side is the elected
// initiator, starts an outbound offer. A connection that already exists
// for the peer takes on the peer's registered role, replacing the role
// guessed when it was created from an inbound offer.
func (m *Manager) maybeConnect(peer peerreg.PeerInfo) {
	m.mu.Lock()
	localRole := m.localRole
	localPeerID := m.localPeerID
	conn, exists := m.connections[peer.PeerID]
	if exists && peer.Role.Valid() {
		conn.RemoteRole = peer.Role
	}
	m.mu.Unlock()

	if exists || localPeerID == "" {
		return
	}
	if !roleComplements(localRole, peer.Role) {
		return
	}
	if !isInitiator(localPeerID, peer.PeerID) {
		return
	}

	if err := m.startOutbound(peer); err != nil {
		m.logger.Warn("starting outbound connection failed", "peer", peer.PeerID, "error", err)
	}
}

// roleComplements implements the appender↔reader-only peer filter.
func roleComplements(a, b connstring.Role) bool {
	return a != b && (a == connstring.RoleAppender || a == connstring.RoleReader) && (b == connstring.RoleAppender || b == connstring.RoleReader)
}

// isInitiator implements the lexicographic tie-break: the smaller
// peerID drives the offer.
func isInitiator(localPeerID, remotePeerID string) bool {
	ids := []string{localPeerID, remotePeerID}
	sort.Strings(ids)
	return ids[0] == localPeerID
}

func (m *Manager) startOutbound(peer peerreg.PeerInfo) error {
	pc, err := newPeerConnection(m.iceConfig)
	if err != nil {
		return fmt.Errorf("creating peer connection: %w", err)
	}

	conn := newConnection(peer.PeerID, peer.Role, true, pc)
	m.mu.Lock()
	m.connections[peer.PeerID] = conn
	m.mu.Unlock()

	m.wireConnectionEvents(conn, pc)

	dc, err := pc.CreateDataChannel(dataChannelLabel, &webrtc.DataChannelInit{Ordered: boolPtr(true)})
	if err != nil {
		m.teardown(peer.PeerID)
		return fmt.Errorf("creating data channel: %w", err)
	}
	m.wireDataChannel(conn, dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		m.teardown(peer.PeerID)
		return fmt.Errorf("creating offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		m.teardown(peer.PeerID)
		return fmt.Errorf("setting local description: %w", err)
	}
	conn.setState(Negotiating)

	m.sender.Send(signaling.NewOfferMessage(peer.PeerID, signaling.SessionDescription{
		Type: offer.Type.String(),
		SDP:  offer.SDP,
	}))
	return nil
}

// OnOffer implements signaling.Handler for an inbound SDP offer. If no
// Connection exists yet for fromPeerID, one is created opportunistically
// with RemoteRole defaulted to reader — corrected when peer_list/
// peer_joined later resolves the true role.
func (m *Manager) OnOffer(fromPeerID string, offer signaling.SessionDescription) {
	m.mu.Lock()
	conn, exists := m.connections[fromPeerID]
	m.mu.Unlock()

	if !exists {
		role := connstring.RoleReader
		if info, ok := m.registry.Get(fromPeerID); ok {
			role = info.Role
		}
		pc, err := newPeerConnection(m.iceConfig)
		if err != nil {
			m.logger.Warn("creating peer connection for inbound offer failed", "peer", fromPeerID, "error", err)
			return
		}
		conn = newConnection(fromPeerID, role, false, pc)
		m.mu.Lock()
		m.connections[fromPeerID] = conn
		m.mu.Unlock()
		m.wireConnectionEvents(conn, pc)
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			m.wireDataChannel(conn, dc)
		})
	}

	if err := conn.peerConnection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer.SDP,
	}); err != nil {
		m.logger.Warn("applying remote offer failed", "peer", fromPeerID, "error", err)
		return
	}
	m.applyPendingCandidates(conn)

	answer, err := conn.peerConnection.CreateAnswer(nil)
	if err != nil {
		m.logger.Warn("creating answer failed", "peer", fromPeerID, "error", err)
		return
	}
	if err := conn.peerConnection.SetLocalDescription(answer); err != nil {
		m.logger.Warn("setting local answer failed", "peer", fromPeerID, "error", err)
		return
	}
	conn.setState(Negotiating)

	m.sender.Send(signaling.NewAnswerMessage(fromPeerID, signaling.SessionDescription{
		Type: answer.Type.String(),
		SDP:  answer.SDP,
	}))
}

// OnAnswer implements signaling.Handler for an inbound SDP answer to an
// offer this manager sent.
func (m *Manager) OnAnswer(fromPeerID string, answer signaling.SessionDescription) {
	m.mu.Lock()
	conn, exists := m.connections[fromPeerID]
	m.mu.Unlock()
	if !exists {
		m.logger.Warn("received answer for unknown peer", "peer", fromPeerID)
		return
	}

	if err := conn.peerConnection.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer.SDP,
	}); err != nil {
		m.logger.Warn("applying remote answer failed", "peer", fromPeerID, "error", err)
		return
	}
	m.applyPendingCandidates(conn)
}

// OnICECandidate implements signaling.Handler for a trickled remote ICE
// candidate. Applied immediately if the remote description is already
// set, otherwise buffered until it is.
func (m *Manager) OnICECandidate(fromPeerID string, candidate signaling.ICECandidate) {
	m.mu.Lock()
	conn, exists := m.connections[fromPeerID]
	m.mu.Unlock()
	if !exists {
		return
	}

	init := webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMLineIndex: candidate.SDPMLineIndex,
		SDPMid:        candidate.SDPMid,
	}

	conn.mu.Lock()
	ready := conn.remoteDescSet
	if !ready {
		conn.pendingCandidates = append(conn.pendingCandidates, init)
	}
	conn.mu.Unlock()

	if ready {
		if err := conn.peerConnection.AddICECandidate(init); err != nil {
			m.logger.Warn("adding ICE candidate failed", "peer", fromPeerID, "error", err)
		}
	}
}

func (m *Manager) applyPendingCandidates(conn *Connection) {
	conn.mu.Lock()
	conn.remoteDescSet = true
	pending := conn.pendingCandidates
	conn.pendingCandidates = nil
	conn.mu.Unlock()

	for _, c := range pending {
		if err := conn.peerConnection.AddICECandidate(c); err != nil {
			m.logger.Warn("adding buffered ICE candidate failed", "peer", conn.PeerID, "error", err)
		}
	}
}

// wireConnectionEvents registers ICE candidate emission and connection
// state teardown handlers, mirroring the teacher's
// OnICEConnectionStateChange dispatch.
func (m *Manager) wireConnectionEvents(conn *Connection, pc *webrtc.PeerConnection) {
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		init := c.ToJSON()
		m.sender.Send(signaling.NewICECandidateMessage(conn.PeerID, signaling.ICECandidate{
			Candidate:     init.Candidate,
			SDPMLineIndex: init.SDPMLineIndex,
			SDPMid:        init.SDPMid,
		}))
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			m.teardown(conn.PeerID)
		}
	})
}

func (m *Manager) wireDataChannel(conn *Connection, dc *webrtc.DataChannel) {
	conn.mu.Lock()
	conn.dataChannel = dc
	conn.mu.Unlock()

	dc.OnOpen(func() {
		conn.setState(Open)
		m.observer.OnChannelOpened(conn.PeerID, conn)
	})
	dc.OnClose(func() {
		m.teardown(conn.PeerID)
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		entry, err := delivery.DecodeEntry(msg.Data)
		if err != nil {
			m.logger.Warn("dropping malformed inbound log entry", "peer", conn.PeerID, "error", err)
			return
		}
		m.observer.OnLogReceived(entry)
	})
}

// teardown closes and removes the connection for peerID, if any, and
// fires the connection observer with connected=false. Idempotent.
func (m *Manager) teardown(peerID string) {
	m.mu.Lock()
	conn, exists := m.connections[peerID]
	if exists {
		delete(m.connections, peerID)
	}
	m.mu.Unlock()
	if !exists {
		return
	}

	conn.close()
	m.observer.OnChannelClosed(peerID)
}

// Close stops the sweep loop, tears down every connection, and clears
// the peer registry. Idempotent.
func (m *Manager) Close() {
	if m.sweepCancel != nil {
		m.sweepCancel()
		<-m.sweepDone
	}
	for _, conn := range m.snapshotConnections() {
		m.teardown(conn.PeerID)
	}
	m.registry.Reset(nil)
}

func boolPtr(b bool) *bool { return &b }
