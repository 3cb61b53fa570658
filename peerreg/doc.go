// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

// Package peerreg tracks the set of peers currently known to a signaling
// session, keyed by server-assigned peer id.
package peerreg
