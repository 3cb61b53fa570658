// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package peerreg

import (
	"sync"

	"github.com/openpull/openpull/connstring"
)

// PeerInfo describes a peer known through signaling.
type PeerInfo struct {
	PeerID string
	Role   connstring.Role
}

// Registry tracks currently-known peers by id. Safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	peers map[string]PeerInfo
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{peers: make(map[string]PeerInfo)}
}

// Upsert adds or replaces the entry for info.PeerID.
func (r *Registry) Upsert(info PeerInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[info.PeerID] = info
}

// Remove deletes the entry for peerID, if any.
func (r *Registry) Remove(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, peerID)
}

// Get returns the entry for peerID and whether it was found.
func (r *Registry) Get(peerID string) (PeerInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.peers[peerID]
	return info, ok
}

// All returns a snapshot of every currently-known peer, in no particular
// order.
func (r *Registry) All() []PeerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PeerInfo, 0, len(r.peers))
	for _, info := range r.peers {
		out = append(out, info)
	}
	return out
}

// Reset replaces the entire registry contents with peers, as delivered by
// a peer_list snapshot.
func (r *Registry) Reset(peers []PeerInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers = make(map[string]PeerInfo, len(peers))
	for _, info := range peers {
		r.peers[info.PeerID] = info
	}
}

// Len reports the number of currently-known peers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.peers)
}
