// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

// Package connstring parses the openpull connection URI:
//
//	openpull://<role>:<key>@<host>[:<port>]/[<publicToken>]
//
// role is "appender" or "reader", key is the hex-encoded HMAC secret
// used by the auth handshake in package signaling, and publicToken
// (the path component) scopes the session on the signaling server. The
// key never leaves this process except as an HMAC input — see
// signaling.BuildProof.
package connstring
