// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

// Package openpull is an appender-side log forwarding agent. It taps a
// process's stdout/stderr (or its own writers), normalizes each line
// into a LogEntry, buffers recent entries for a bounded retention
// window, and streams them over authenticated WebRTC data channels to
// reader peers discovered through a signaling service.
//
// Manager is the caller-owned handle for one session: it owns the
// signaling connection, the peer registry, and every RTC connection
// for the process's lifetime. Create one with New, connect it with
// Connect, feed it logs with SendLog/Forward/ForwardStreams, observe
// it with OnLog/OnConnection, and release it with Disconnect.
//
// Package layout:
//
//   - connstring parses the openpull:// connection URI.
//   - signaling implements the WebSocket control plane: message
//     encode/decode and the HMAC auth handshake.
//   - rtcmanager drives per-peer WebRTC data channel lifecycles.
//   - delivery holds the retention buffer and broadcast fan-out.
//   - intercept taps child-process and self-process output streams.
//   - observereg is the generic subscribe/unsubscribe registry used
//     for log-arrival and connection-state notifications.
//   - clock is the injectable time source used throughout for
//     deterministic tests.
package openpull
