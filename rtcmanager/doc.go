// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

// Package rtcmanager owns the per-peer pion/webrtc PeerConnection and
// "logs" data channel lifecycle: state machine, initiator election, ICE
// exchange, and teardown.
//
// [Manager] implements [signaling.Handler] directly — inbound peer_list,
// peer_joined, peer_disconnected, webrtc_offer, webrtc_answer, and
// webrtc_ice_candidate messages drive its state machine. Outbound SDP
// and ICE candidates are written back through a [signaling.Sender].
// [Manager] never touches the retention buffer; it notifies a
// [ConnectionObserver] on data-channel open/close so the delivery layer
// can replay buffered entries, and it implements delivery.Broadcaster so
// future sends reach every open reader channel.
package rtcmanager
