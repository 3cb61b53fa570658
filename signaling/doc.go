// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

// Package signaling implements the WebSocket control plane used for peer
// discovery, the zero-knowledge auth handshake, and SDP/ICE exchange.
//
// [Client] wraps a github.com/gorilla/websocket connection: [Dial] opens
// the socket, [Client.Run] decodes inbound frames and dispatches them to
// a [Handler], and [Client.Send] encodes and writes outbound messages,
// silently dropping them while the socket isn't open. auth.go builds the
// HMAC-SHA256 proof used to answer an auth_challenge without ever
// transmitting the session key itself. [MemoryClient] is an in-process
// test double that exercises the same [Sender] interface [rtcmanager]
// depends on, without a real network round trip.
package signaling
