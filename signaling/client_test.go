// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openpull/openpull/connstring"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIsLoopbackHost(t *testing.T) {
	cases := map[string]bool{
		"localhost:8080":  true,
		"127.0.0.1:8080":  true,
		"[::1]:8080":      true,
		"session.example.com:3000": false,
		"localhost":       true,
	}
	for host, want := range cases {
		if got := isLoopbackHost(host); got != want {
			t.Errorf("isLoopbackHost(%q) = %v, want %v", host, got, want)
		}
	}
}

// echoUpgrader accepts a WebSocket connection and echoes any received
// frame back, verbatim, for exercising Client.Send.
func newEchoServer(t *testing.T) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
}

func TestClientSendAndRunRoundTrip(t *testing.T) {
	server := newEchoServer(t)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	c := &Client{conn: conn, logger: discardLogger()}
	c.state.Store(int32(stateOpen))

	h := &capturingHandler{}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		c.Send(map[string]any{"type": "auth_success", "peerId": "echoed"})
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx, h) }()

	deadline := time.After(2 * time.Second)
	for h.authSuccess == "" {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for echoed auth_success")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	if h.authSuccess != "echoed" {
		t.Fatalf("authSuccess = %q, want echoed", h.authSuccess)
	}

	cancel()
	<-runErr
}

func TestClientSendDropsSilentlyWhenClosed(t *testing.T) {
	c := &Client{logger: discardLogger()}
	c.state.Store(int32(stateClosed))

	if err := c.Send(map[string]string{"type": "peer_discovery"}); err != nil {
		t.Fatalf("Send on closed client returned error, want nil: %v", err)
	}
}

func TestDialErrorMessage(t *testing.T) {
	_, err := Dial(context.Background(), connstring.Info{Host: "127.0.0.1:1"}, WithLogger(discardLogger()))
	if err == nil {
		t.Fatal("expected dial error for an address nothing is listening on")
	}
	if _, ok := err.(*DialError); !ok {
		t.Fatalf("error type = %T, want *DialError", err)
	}
}
