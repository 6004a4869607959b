// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package storage declares the persistence contracts the coordination
// engine consumes: trusted peers (the TOFU relationship table),
// message history (for trusted-peer migration's history carry-over),
// and linked devices (the web/desktop proxy's device table). Callers
// wire in either storage/memstore (tests, single-process demos) or
// storage/postgres (a real deployment).
package storage

import (
	"context"
	"time"
)

// TrustedPeer is one row of a node's trust table: a peer whose public
// key has been verified out of band, addressed by its current pairing
// code.
type TrustedPeer struct {
	Code      string
	PublicKey []byte
	Alias     string
	Blocked   bool
	TrustedAt time.Time
}

// TrustedPeerStore persists the trust table backing the peer registry
// (§4.5) and the migration/key-rotation logic (§4.7).
type TrustedPeerStore interface {
	List(ctx context.Context) ([]*TrustedPeer, error)
	Get(ctx context.Context, code string) (*TrustedPeer, error)
	// FindByPublicKey looks up a trusted peer by its public key,
	// regardless of current code — the basis for detecting a
	// code-rotation migration.
	FindByPublicKey(ctx context.Context, publicKey []byte) (*TrustedPeer, error)
	Put(ctx context.Context, peer *TrustedPeer) error
	Delete(ctx context.Context, code string) error
}

// Message is one persisted item of a peer's message history.
type Message struct {
	ID        string
	PeerCode  string
	Direction string // "sent" or "received"
	Body      []byte
	System    bool
	SentAt    time.Time
}

// MessageStore persists per-peer message history, including the
// system messages the migration and key-rotation paths append.
type MessageStore interface {
	Append(ctx context.Context, msg *Message) error
	ListForPeer(ctx context.Context, peerCode string) ([]*Message, error)
	// Rekey reassigns every stored message for oldCode to newCode,
	// returning the number of rows touched — the operation the
	// trusted-peer migration path (§4.7) uses to carry history
	// across a code rotation.
	Rekey(ctx context.Context, oldCode, newCode string) (int64, error)
}

// LinkedDevice is one entry of the linked-device proxy's device
// table (§4.8), keyed by the browser/desktop client's own id.
type LinkedDevice struct {
	WebClientID string
	DeviceName  string
	LinkedAt    time.Time
	LastSeenAt  time.Time
}

// LinkedDeviceStore persists the linked-device table.
type LinkedDeviceStore interface {
	List(ctx context.Context) ([]*LinkedDevice, error)
	Get(ctx context.Context, webClientID string) (*LinkedDevice, error)
	Put(ctx context.Context, device *LinkedDevice) error
	Delete(ctx context.Context, webClientID string) error
}
