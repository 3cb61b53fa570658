// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/openpull/openpull/connstring"
)

// SessionDescription mirrors an RTCSessionDescription's wire shape.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// ICECandidate mirrors an RTCIceCandidateInit's wire shape.
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
	SDPMid        *string `json:"sdpMid,omitempty"`
}

// PeerSummary is the wire shape of one entry in a peer_list message.
type PeerSummary struct {
	PeerID string `json:"peerId"`
	Role   string `json:"role"`
}

// envelope is the union of every field used by any message in the
// catalog. Encoding a message populates only the fields relevant to its
// Type; decoding reads only the fields relevant to the decoded Type.
type envelope struct {
	Type string `json:"type"`

	// auth_challenge / auth
	Nonce     string `json:"nonce,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Role      string `json:"role,omitempty"`
	Proof     string `json:"proof,omitempty"`

	DefaultFields map[string]any `json:"defaultFields,omitempty"`

	// auth_success
	PeerID string `json:"peerId,omitempty"`

	// error
	Message string `json:"message,omitempty"`

	// peer_list
	Peers []PeerSummary `json:"peers,omitempty"`

	// peer_joined / peer_disconnected reuse PeerID and Role above.

	// webrtc_offer / webrtc_answer / webrtc_ice_candidate
	TargetPeerID string              `json:"targetPeerId,omitempty"`
	FromPeerID   string              `json:"fromPeerId,omitempty"`
	Offer        *SessionDescription `json:"offer,omitempty"`
	Answer       *SessionDescription `json:"answer,omitempty"`
	Candidate    *ICECandidate       `json:"candidate,omitempty"`
}

// Outbound message constructors. Each returns a value ready for
// json.Marshal (via Client.Send, which marshals whatever it's given).

// AuthMessage is the outbound answer to an auth_challenge.
type AuthMessage struct {
	Type          string         `json:"type"`
	Role          string         `json:"role"`
	Proof         string         `json:"proof"`
	DefaultFields map[string]any `json:"defaultFields,omitempty"`
}

func NewAuthMessage(role connstring.Role, proof string, defaultFields map[string]any) AuthMessage {
	return AuthMessage{Type: "auth", Role: string(role), Proof: proof, DefaultFields: defaultFields}
}

// PeerDiscoveryMessage requests the current peer roster and future
// join/leave notifications.
type PeerDiscoveryMessage struct {
	Type string `json:"type"`
}

func NewPeerDiscoveryMessage() PeerDiscoveryMessage {
	return PeerDiscoveryMessage{Type: "peer_discovery"}
}

// OfferMessage carries a local SDP offer to targetPeerID.
type OfferMessage struct {
	Type         string             `json:"type"`
	TargetPeerID string             `json:"targetPeerId"`
	Offer        SessionDescription `json:"offer"`
}

func NewOfferMessage(targetPeerID string, offer SessionDescription) OfferMessage {
	return OfferMessage{Type: "webrtc_offer", TargetPeerID: targetPeerID, Offer: offer}
}

// AnswerMessage carries a local SDP answer to targetPeerID.
type AnswerMessage struct {
	Type         string             `json:"type"`
	TargetPeerID string             `json:"targetPeerId"`
	Answer       SessionDescription `json:"answer"`
}

func NewAnswerMessage(targetPeerID string, answer SessionDescription) AnswerMessage {
	return AnswerMessage{Type: "webrtc_answer", TargetPeerID: targetPeerID, Answer: answer}
}

// ICECandidateMessage carries a single trickled ICE candidate to
// targetPeerID.
type ICECandidateMessage struct {
	Type         string       `json:"type"`
	TargetPeerID string       `json:"targetPeerId"`
	Candidate    ICECandidate `json:"candidate"`
}

func NewICECandidateMessage(targetPeerID string, candidate ICECandidate) ICECandidateMessage {
	return ICECandidateMessage{Type: "webrtc_ice_candidate", TargetPeerID: targetPeerID, Candidate: candidate}
}

// Sender publishes an outbound signaling message. *Client implements
// this; rtcmanager depends only on the interface so it never imports the
// concrete websocket client.
type Sender interface {
	Send(msg any) error
}

// Handler receives dispatched inbound messages. Implementations must not
// block; Run calls each method synchronously from its receive loop.
type Handler interface {
	OnAuthChallenge(nonce string, timestamp int64)
	OnAuthSuccess(peerID string)
	OnServerError(message string)
	OnPeerList(peers []PeerSummary)
	OnPeerJoined(peerID string, role string)
	OnPeerDisconnected(peerID string)
	OnOffer(fromPeerID string, offer SessionDescription)
	OnAnswer(fromPeerID string, answer SessionDescription)
	OnICECandidate(fromPeerID string, candidate ICECandidate)
}

// dispatch decodes raw as an envelope and calls the matching Handler
// method. Returns an error for an unrecognized or malformed type; the
// caller logs and continues rather than tearing down the socket.
func dispatch(raw []byte, h Handler) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decoding signaling envelope: %w", err)
	}

	switch env.Type {
	case "auth_challenge":
		h.OnAuthChallenge(env.Nonce, env.Timestamp)
	case "auth_success":
		h.OnAuthSuccess(env.PeerID)
	case "error":
		h.OnServerError(env.Message)
	case "peer_list":
		h.OnPeerList(env.Peers)
	case "peer_joined":
		h.OnPeerJoined(env.PeerID, env.Role)
	case "peer_disconnected":
		h.OnPeerDisconnected(env.PeerID)
	case "webrtc_offer":
		if env.Offer == nil {
			return fmt.Errorf("webrtc_offer envelope missing offer field")
		}
		h.OnOffer(env.FromPeerID, *env.Offer)
	case "webrtc_answer":
		if env.Answer == nil {
			return fmt.Errorf("webrtc_answer envelope missing answer field")
		}
		h.OnAnswer(env.FromPeerID, *env.Answer)
	case "webrtc_ice_candidate":
		if env.Candidate == nil {
			return fmt.Errorf("webrtc_ice_candidate envelope missing candidate field")
		}
		h.OnICECandidate(env.FromPeerID, *env.Candidate)
	default:
		return fmt.Errorf("unrecognized signaling message type %q", env.Type)
	}
	return nil
}
