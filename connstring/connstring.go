// Copyright 2026 The OpenPull Authors
// SPDX-License-Identifier: Apache-2.0

package connstring

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Role identifies which side of a session a peer plays. An appender
// originates logs; a reader consumes them.
type Role string

const (
	RoleAppender Role = "appender"
	RoleReader   Role = "reader"
)

// Valid reports whether r is one of the two known literals.
func (r Role) Valid() bool {
	return r == RoleAppender || r == RoleReader
}

// Other returns the complementary role. Only meaningful for valid roles.
func (r Role) Other() Role {
	if r == RoleAppender {
		return RoleReader
	}
	return RoleAppender
}

// Info is the parsed form of an openpull connection URI.
type Info struct {
	// Host is the signaling authority, including an optional port
	// (e.g. "session.example.com:3000").
	Host string

	// Role is this peer's role in the session.
	Role Role

	// Key is the hex-encoded HMAC-SHA256 secret shared with the
	// signaling server and the other peers in the session. Never
	// transmitted; only used to sign auth proofs.
	Key string

	// PublicToken scopes the session on the signaling server. Empty
	// when the connection string carried no path segment.
	PublicToken string
}

// LogValue redacts Key from structured logging output so a Manager
// never accidentally leaks the session secret through slog.
func (i Info) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("host", i.Host),
		slog.String("role", string(i.Role)),
		slog.String("public_token", i.PublicToken),
		slog.String("key", "[redacted]"),
	)
}

// ParseError reports a malformed connection string. Reason is a short,
// human-readable description suitable for returning to a caller.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("connstring: %s", e.Reason)
}

const scheme = "openpull"

// Parse decodes an openpull connection URI into an Info. It fails with
// a *ParseError when the scheme isn't "openpull", the role is missing
// or unrecognized, the key is empty, or the host is empty.
func Parse(raw string) (Info, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return Info{}, &ParseError{Reason: fmt.Sprintf("invalid URI: %v", err)}
	}

	if parsed.Scheme != scheme {
		return Info{}, &ParseError{Reason: "invalid protocol"}
	}
	if parsed.Host == "" {
		return Info{}, &ParseError{Reason: "host is required"}
	}

	role := Role(parsed.User.Username())
	if !role.Valid() {
		return Info{}, &ParseError{Reason: fmt.Sprintf("role must be %q or %q", RoleAppender, RoleReader)}
	}

	key, hasKey := parsed.User.Password()
	if !hasKey || key == "" {
		return Info{}, &ParseError{Reason: "key is required"}
	}

	publicToken := strings.TrimPrefix(parsed.Path, "/")

	return Info{
		Host:        parsed.Host,
		Role:        role,
		Key:         key,
		PublicToken: publicToken,
	}, nil
}

// String reconstructs the canonical connection URI. Parse(i.String())
// round-trips to an equal Info for every Info produced by Parse.
func (i Info) String() string {
	u := url.URL{
		Scheme: scheme,
		User:   url.UserPassword(string(i.Role), i.Key),
		Host:   i.Host,
	}
	if i.PublicToken != "" {
		u.Path = "/" + i.PublicToken
	}
	return u.String()
}
