// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/openpull/openpull/connstring"
)

// maxReconnectionAttempts is the fixed ceiling the client tracks. The
// client itself never loops to retry; see DESIGN.md.
const maxReconnectionAttempts = 5

// connState mirrors the two states relevant to Send's drop-when-closed
// behavior: open, or not open (never dialed, closed, or failed).
type connState int32

const (
	stateClosed connState = iota
	stateOpen
)

// Client is a WebSocket connection to a signaling server. The zero value
// is not usable; construct with Dial.
type Client struct {
	conn   *websocket.Conn
	logger *slog.Logger

	state    atomic.Int32
	attempts atomic.Int32
}

// Option configures Dial.
type Option func(*clientOptions)

type clientOptions struct {
	logger *slog.Logger
	dialer *websocket.Dialer
}

// WithLogger overrides the logger used for diagnostics. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = logger }
}

// isLoopbackHost reports whether host (an authority, optionally with a
// port) names a loopback address.
func isLoopbackHost(host string) bool {
	h := host
	if i := strings.LastIndex(h, ":"); i >= 0 {
		h = h[:i]
	}
	h = strings.Trim(h, "[]")
	return h == "localhost" || h == "127.0.0.1" || h == "::1"
}

// Dial opens a WebSocket connection to the signaling server named by
// info.Host, at path /<info.PublicToken> (or / if absent). When info.Host
// is a loopback authority, TLS certificate verification is disabled and
// a warning is logged once, matching spec.md §4.2's development
// convenience.
func Dial(ctx context.Context, info connstring.Info, opts ...Option) (*Client, error) {
	options := clientOptions{logger: slog.Default(), dialer: websocket.DefaultDialer}
	for _, opt := range opts {
		opt(&options)
	}

	target := url.URL{Scheme: "wss", Host: info.Host, Path: "/"}
	if info.PublicToken != "" {
		target.Path = "/" + info.PublicToken
	}

	dialer := *options.dialer
	if isLoopbackHost(info.Host) {
		options.logger.Warn("disabling TLS verification for loopback signaling host", "host", info.Host)
		tlsConfig := dialer.TLSClientConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{}
		} else {
			tlsConfig = tlsConfig.Clone()
		}
		tlsConfig.InsecureSkipVerify = true
		dialer.TLSClientConfig = tlsConfig
	}

	conn, _, err := dialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return nil, &DialError{Target: target.String(), Cause: err}
	}

	c := &Client{conn: conn, logger: options.logger}
	c.state.Store(int32(stateOpen))
	return c, nil
}

// DialError wraps a failure to establish the signaling socket.
type DialError struct {
	Target string
	Cause  error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("dialing signaling server %s: %v", e.Target, e.Cause)
}

func (e *DialError) Unwrap() error { return e.Cause }

// AuthError wraps a server-sent error message received before or during
// the auth handshake.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return "signaling server rejected auth: " + e.Message }

// ConnectionLostError wraps the receive loop's terminal error when the
// signaling socket drops before the auth handshake completes, so the
// caller's Connect gets a single human-readable reason instead of
// blocking until its own context deadline.
type ConnectionLostError struct {
	Cause error
}

func (e *ConnectionLostError) Error() string {
	return fmt.Sprintf("signaling connection lost: %v", e.Cause)
}

func (e *ConnectionLostError) Unwrap() error { return e.Cause }

// Send encodes msg as JSON and writes it as a single text frame. It
// silently returns nil if the socket isn't currently open, per spec.md
// §4.2's "drops messages silently when the socket is not OPEN".
func (c *Client) Send(msg any) error {
	if connState(c.state.Load()) != stateOpen {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding signaling message: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.state.Store(int32(stateClosed))
		return fmt.Errorf("writing signaling message: %w", err)
	}
	return nil
}

// Run reads frames until ctx is cancelled, the socket closes, or a read
// fails, decoding and dispatching each to h. Returns the terminal error,
// or nil on clean cancellation.
func (c *Client) Run(ctx context.Context, h Handler) error {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		c.conn.Close()
		close(done)
	}()

	var runErr error
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.state.Store(int32(stateClosed))
			select {
			case <-ctx.Done():
				runErr = nil
			default:
				runErr = fmt.Errorf("reading signaling message: %w", err)
			}
			break
		}
		if err := dispatch(data, h); err != nil {
			c.logger.Warn("dropping malformed signaling message", "error", err)
		}
	}

	<-done
	return runErr
}

// Close closes the underlying socket. Idempotent: closing a socket that
// is already closed (by an earlier Close or by Run's cancellation) is
// not an error.
func (c *Client) Close() error {
	c.state.Store(int32(stateClosed))
	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// RecordReconnectAttempt increments the reconnection attempt counter and
// returns the new value.
func (c *Client) RecordReconnectAttempt() int {
	return int(c.attempts.Add(1))
}

// Attempts reports the number of reconnection attempts recorded so far.
func (c *Client) Attempts() int { return int(c.attempts.Load()) }

// MaxAttempts is the fixed ceiling on reconnection attempts. The client
// exposes this counter but never itself loops to retry — see DESIGN.md.
func (c *Client) MaxAttempts() int { return maxReconnectionAttempts }
