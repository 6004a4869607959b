// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package securechannel declares the end-to-end encryption contract
// the rest of the coordination engine consumes. It is a boundary, not
// an implementation requirement: Adapter is this module's one
// conforming reference, built on X25519 key agreement, HKDF, and
// ChaCha20-Poly1305, but any type satisfying Service may be
// substituted.
package securechannel

// KeyPair is an ephemeral or long-term X25519 key pair.
type KeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// Service is the crypto boundary the pairing controller, the
// rendezvous coordinator, and the linked-device proxy depend on. It
// never appears in this module's own wire format; callers pass
// plaintext in and ciphertext out.
type Service interface {
	// Initialize generates (or loads) this node's long-term identity
	// key pair.
	Initialize() error

	// PublicKeyBase64 returns this node's public key, base64-encoded,
	// suitable for embedding in a pairing response or QR payload.
	PublicKeyBase64() string

	// PublicKeyBytes returns this node's raw public key bytes.
	PublicKeyBytes() []byte

	// SessionKeyBytes returns the current session key negotiated with
	// the peer identified by peerID, or an error if no session exists.
	SessionKeyBytes(peerID string) ([]byte, error)

	// SetPeerPublicKey records peerID's public key, learned via a pairing
	// or linking exchange, ahead of session establishment.
	SetPeerPublicKey(peerID string, publicKey []byte) error

	// GetPeerPublicKey returns the previously recorded public key for
	// peerID, or an error if none is known.
	GetPeerPublicKey(peerID string) ([]byte, error)

	// EstablishSession derives and stores a session key with peerID
	// via X25519 key agreement against the recorded peer public key.
	EstablishSession(peerID string) error

	// Encrypt seals plaintext under key, returning nonce||ciphertext.
	Encrypt(key, plaintext []byte) ([]byte, error)

	// Decrypt opens a nonce||ciphertext sealed by Encrypt under key.
	Decrypt(key, sealed []byte) ([]byte, error)

	// EncryptForPeer seals plaintext under the established session key
	// for peerID.
	EncryptForPeer(peerID string, plaintext []byte) ([]byte, error)

	// DecryptFromPeer opens a message sealed by EncryptForPeer for
	// peerID.
	DecryptFromPeer(peerID string, sealed []byte) ([]byte, error)

	// GenerateEphemeralKeyPair generates a fresh X25519 key pair not
	// tied to this node's long-term identity, used for linked-device
	// session setup.
	GenerateEphemeralKeyPair() (*KeyPair, error)
}
