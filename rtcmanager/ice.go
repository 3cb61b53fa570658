// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package rtcmanager

import "github.com/pion/webrtc/v4"

// ICEConfig holds the ICE server configuration used for every
// PeerConnection this manager creates. Unlike the teacher's
// TURN-credential-refreshing config, this system needs no TURN relay —
// there is no NAT-traversal credential service in scope — so the list is
// a fixed set of public STUN servers.
type ICEConfig struct {
	Servers []webrtc.ICEServer
}

// DefaultICEConfig returns the fixed public STUN configuration used when
// no override is supplied.
func DefaultICEConfig() ICEConfig {
	return ICEConfig{
		Servers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:stun1.l.google.com:19302"}},
		},
	}
}

// newAPI builds a pion API with loopback candidates enabled, matching the
// teacher's newPeerConnection helper's SetIncludeLoopbackCandidate call —
// required for same-machine transport and for tests. Unlike the teacher,
// data channels are left un-detached: the "logs" channel carries discrete
// JSON messages (spec.md's "one JSON object per message"), which the
// OnMessage/SendText API models directly, so there's no need for the
// teacher's Detach-to-io.ReadWriteCloser byte-stream wrapping.
func newAPI() *webrtc.API {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)
	return webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine))
}

func newPeerConnection(config ICEConfig) (*webrtc.PeerConnection, error) {
	return newAPI().NewPeerConnection(webrtc.Configuration{ICEServers: config.Servers})
}
