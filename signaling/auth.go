// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package signaling

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/openpull/openpull/connstring"
)

// authPayloadPrefix identifies the proof scheme and version. Changing
// the wire format requires bumping v1 and coordinating with the
// signaling server and every connected reader.
const authPayloadPrefix = "openpull-auth|v1"

// BuildProof constructs the canonical auth payload for a challenge and
// returns its lowercase-hex HMAC-SHA256 under key. The session key never
// appears in the payload or the proof — only its effect on the digest —
// which is what makes this a zero-knowledge proof-of-possession.
func BuildProof(key []byte, publicToken string, role connstring.Role, nonce string, timestamp int64) string {
	payload := fmt.Sprintf("%s|%s|%s|%s|%d", authPayloadPrefix, publicToken, role, nonce, timestamp)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// DecodeKey hex-decodes a session key from its connstring.Info
// representation. Returns an error if key isn't valid hex.
func DecodeKey(key string) ([]byte, error) {
	decoded, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("decoding session key: %w", err)
	}
	return decoded, nil
}
