// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

// Package delivery buffers recently produced log entries and fans them
// out to open reader data channels.
//
// [Buffer] is a time-bounded (60s) FIFO of entries, adapted from the
// teacher's byte-size-bounded Buffer/Shipper shape in
// cmd/bureau-telemetry-relay to a wall-clock-bounded one, driven by an
// injected clock.Clock rather than time.Now so retention and sweep
// behavior are deterministically testable. [Delivery] owns the buffer
// and a [Broadcaster] that enumerates currently-open reader channels; it
// never talks to pion/webrtc or signaling directly.
package delivery
