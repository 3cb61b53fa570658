// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

// Package observereg provides a generic subscribe/unsubscribe callback
// registry. Manager uses one instance per observable event kind (log
// arrivals, connection state changes) instead of a hand-rolled slice of
// callbacks per kind.
//
// Register returns an unsubscribe function, mirroring the
// Subscribe(...) (cancel func(), err error) shape used elsewhere in
// this codebase's ancestry for resource change notification. Handlers
// run synchronously on the calling goroutine; a panicking handler is
// recovered and logged so it cannot take down unrelated observers.
package observereg
