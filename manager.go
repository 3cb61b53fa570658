// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package openpull

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/openpull/openpull/clock"
	"github.com/openpull/openpull/connstring"
	"github.com/openpull/openpull/delivery"
	"github.com/openpull/openpull/intercept"
	"github.com/openpull/openpull/logentry"
	"github.com/openpull/openpull/observereg"
	"github.com/openpull/openpull/rtcmanager"
	"github.com/openpull/openpull/signaling"
)

var _ signaling.Handler = (*Manager)(nil)
var _ rtcmanager.ConnectionObserver = (*Manager)(nil)
var _ intercept.Sink = (*Manager)(nil)

// Manager is the caller-owned handle for one signaling session: it owns
// the signaling connection, the peer registry, and every RTC connection
// for its lifetime. The zero value is not usable; construct with New.
type Manager struct {
	info   connstring.Info
	clock  clock.Clock
	logger *slog.Logger

	defaultFields map[string]any
	iceConfig     rtcmanager.ICEConfig

	logObservers  *observereg.Registry[LogEntry]
	connObservers *observereg.Registry[ConnectionEvent]

	buffer   *delivery.Buffer
	delivery *delivery.Delivery
	rtc      *rtcmanager.Manager

	mu           sync.Mutex
	client       *signaling.Client
	peerID       string
	role         connstring.Role
	cancel       context.CancelFunc
	runDone      chan struct{}
	runErr       error
	connCh       chan error
	connOnce     sync.Once
	authComplete atomic.Bool

	disconnectOnce sync.Once
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithClock overrides the time source used for retention and the
// stale-sweep ticker. Defaults to clock.Real().
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger overrides the diagnostic logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithDefaultFields attaches session-scoped fields to the outbound auth
// message, echoed by servers that support it.
func WithDefaultFields(fields map[string]any) Option {
	return func(m *Manager) { m.defaultFields = fields }
}

// WithICEConfig overrides the fixed public-STUN ICE configuration.
func WithICEConfig(config rtcmanager.ICEConfig) Option {
	return func(m *Manager) { m.iceConfig = config }
}

// New constructs an idle Manager for info. Call Connect to open the
// signaling socket and begin peer discovery.
func New(info connstring.Info, opts ...Option) *Manager {
	m := &Manager{
		info:      info,
		role:      info.Role,
		clock:     clock.Real(),
		logger:    slog.Default(),
		iceConfig: rtcmanager.DefaultICEConfig(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.logObservers = observereg.New[LogEntry](m.logger)
	m.connObservers = observereg.New[ConnectionEvent](m.logger)
	m.buffer = delivery.NewBuffer(m.clock)

	return m
}

// Connect dials the signaling server, completes the auth handshake, and
// requests peer discovery. Blocks until auth_success or a fatal error.
func (m *Manager) Connect(ctx context.Context) error {
	client, err := signaling.Dial(ctx, m.info, signaling.WithLogger(m.logger))
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	m.mu.Lock()
	m.client = client
	m.cancel = cancel
	m.connCh = make(chan error, 1)
	m.runDone = make(chan struct{})
	m.mu.Unlock()

	m.rtc = rtcmanager.New(m.role, m.iceConfig, client, m, m.clock, m.logger)
	m.delivery = delivery.New(m.role, m.buffer, m.rtc, m.logger)

	go func() {
		runErr := client.Run(runCtx, m)

		m.mu.Lock()
		m.runErr = runErr
		m.mu.Unlock()
		close(m.runDone)

		if runErr == nil {
			return
		}
		m.logger.Warn("signaling receive loop ended", "error", runErr)
		if m.authComplete.Load() {
			m.logger.Error("signaling connection lost after handshake, disconnecting", "error", runErr)
			m.Disconnect()
		}
	}()

	select {
	case err := <-m.connCh:
		if err != nil {
			cancel()
			return err
		}
		return nil
	case <-m.runDone:
		cancel()
		m.mu.Lock()
		runErr := m.runErr
		m.mu.Unlock()
		if runErr == nil {
			runErr = fmt.Errorf("signaling connection closed before authentication completed")
		}
		return &signaling.ConnectionLostError{Cause: runErr}
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// --- signaling.Handler: auth handshake owned here, RTC events delegated ---

func (m *Manager) OnAuthChallenge(nonce string, timestamp int64) {
	key, err := signaling.DecodeKey(m.info.Key)
	if err != nil {
		m.failConnect(fmt.Errorf("decoding session key: %w", err))
		return
	}
	proof := signaling.BuildProof(key, m.info.PublicToken, m.role, nonce, timestamp)
	m.client.Send(signaling.NewAuthMessage(m.role, proof, m.defaultFields))
}

func (m *Manager) OnAuthSuccess(peerID string) {
	m.mu.Lock()
	m.peerID = peerID
	m.mu.Unlock()

	m.rtc.SetLocalPeerID(peerID)
	m.rtc.StartSweep(context.Background())
	m.client.Send(signaling.NewPeerDiscoveryMessage())

	m.authComplete.Store(true)
	m.connOnce.Do(func() { m.connCh <- nil })
}

// OnServerError implements signaling.Handler. Before the handshake
// completes this rejects the pending Connect; afterward, a server error
// has no pending caller to reject, so it's logged and treated as fatal
// to the session — full cleanup runs in a separate goroutine so this
// synchronous callback, invoked from Run's own receive loop, can return
// and let that loop unwind instead of deadlocking on its own exit.
func (m *Manager) OnServerError(message string) {
	if m.authComplete.Load() {
		m.logger.Error("signaling server reported an error after handshake, disconnecting", "message", message)
		go m.Disconnect()
		return
	}
	m.failConnect(&signaling.AuthError{Message: message})
}

func (m *Manager) failConnect(err error) {
	m.connOnce.Do(func() { m.connCh <- err })
}

func (m *Manager) OnPeerList(peers []signaling.PeerSummary) { m.rtc.OnPeerList(peers) }
func (m *Manager) OnPeerJoined(peerID string, role string)  { m.rtc.OnPeerJoined(peerID, role) }
func (m *Manager) OnPeerDisconnected(peerID string)         { m.rtc.OnPeerDisconnected(peerID) }

func (m *Manager) OnOffer(from string, offer signaling.SessionDescription) {
	m.rtc.OnOffer(from, offer)
}

func (m *Manager) OnAnswer(from string, answer signaling.SessionDescription) {
	m.rtc.OnAnswer(from, answer)
}

func (m *Manager) OnICECandidate(from string, candidate signaling.ICECandidate) {
	m.rtc.OnICECandidate(from, candidate)
}

// --- rtcmanager.ConnectionObserver ---

func (m *Manager) OnChannelOpened(peerID string, sender delivery.ChannelSender) {
	m.delivery.OnConnectionOpened(peerID, sender)
	m.connObservers.Emit(ConnectionEvent{PeerID: peerID, Connected: true})
}

func (m *Manager) OnChannelClosed(peerID string) {
	m.connObservers.Emit(ConnectionEvent{PeerID: peerID, Connected: false})
}

func (m *Manager) OnLogReceived(entry logentry.LogEntry) {
	m.logObservers.Emit(entry)
}

// --- public log/observer/forwarding surface ---

// SendLog appends entry to the retention buffer and broadcasts it to
// every open reader channel. No-op with a warning outside the appender
// role, and before Connect has been called. Never blocks, never panics,
// and never returns an error.
func (m *Manager) SendLog(entry LogEntry) {
	if m.delivery == nil {
		m.logger.Warn("sendLog called before Connect, dropping entry")
		return
	}
	m.delivery.SendLog(entry)
}

// OnLog registers a handler invoked for every log entry this manager
// receives from a peer over a data channel (reader role). Entries this
// manager originates through SendLog are not passed to these handlers.
func (m *Manager) OnLog(handler func(LogEntry)) (unsubscribe func()) {
	return m.logObservers.Register(handler)
}

// OnConnection registers a handler invoked whenever a peer's data
// channel opens or closes.
func (m *Manager) OnConnection(handler func(ConnectionEvent)) (unsubscribe func()) {
	return m.connObservers.Register(handler)
}

// Forward taps the host process's own stdout/stderr writers. See
// intercept.Forward.
func (m *Manager) Forward(stdout, stderr io.Writer) (*intercept.Tap, func()) {
	return intercept.Forward(stdout, stderr, m, intercept.WithClock(m.clock), intercept.WithLogger(m.logger))
}

// ForwardStreams reads a child process's stdout/stderr readers until both
// reach EOF, and stops submitting lines once ctx is cancelled. See
// intercept.ForwardStreams.
func (m *Manager) ForwardStreams(ctx context.Context, stdout, stderr io.Reader) error {
	return intercept.ForwardStreams(ctx, stdout, stderr, m, intercept.WithClock(m.clock), intercept.WithLogger(m.logger))
}

// Disconnect performs full cleanup: stops the stale-sweep ticker, closes
// every data channel and peer connection best-effort, clears the peer
// registry, clears the assigned peer id and role, and closes the
// signaling socket. Idempotent.
func (m *Manager) Disconnect() error {
	var err error
	m.disconnectOnce.Do(func() {
		if m.rtc != nil {
			m.rtc.Close()
		}
		m.mu.Lock()
		cancel := m.cancel
		client := m.client
		runDone := m.runDone
		m.peerID = ""
		m.role = ""
		m.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if client != nil {
			err = client.Close()
		}
		if runDone != nil {
			<-runDone
		}
	})
	return err
}
