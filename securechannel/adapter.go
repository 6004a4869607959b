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

package securechannel

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const hkdfInfo = "zajel-session-v1"

// Adapter is the reference Service implementation: X25519 key
// agreement, HKDF-SHA256 key derivation, ChaCha20-Poly1305 sealing.
type Adapter struct {
	mu sync.RWMutex

	identity *ecdh.PrivateKey

	peerPublicKeys map[string][]byte
	sessionKeys    map[string][]byte
}

func NewAdapter() *Adapter {
	return &Adapter{
		peerPublicKeys: make(map[string][]byte),
		sessionKeys:    make(map[string][]byte),
	}
}

func (a *Adapter) Initialize() error {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("securechannel: generate identity key: %w", err)
	}
	a.mu.Lock()
	a.identity = priv
	a.mu.Unlock()
	return nil
}

func (a *Adapter) PublicKeyBase64() string {
	return base64.StdEncoding.EncodeToString(a.PublicKeyBytes())
}

func (a *Adapter) PublicKeyBytes() []byte {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.identity == nil {
		return nil
	}
	return a.identity.PublicKey().Bytes()
}

func (a *Adapter) SetPeerPublicKey(peerID string, publicKey []byte) error {
	if len(publicKey) == 0 {
		return fmt.Errorf("securechannel: empty public key for peer %s", peerID)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.peerPublicKeys[peerID] = append([]byte(nil), publicKey...)
	return nil
}

func (a *Adapter) GetPeerPublicKey(peerID string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	key, ok := a.peerPublicKeys[peerID]
	if !ok {
		return nil, fmt.Errorf("securechannel: no public key recorded for peer %s", peerID)
	}
	return append([]byte(nil), key...), nil
}

func (a *Adapter) EstablishSession(peerID string) error {
	a.mu.Lock()
	identity := a.identity
	peerPub := a.peerPublicKeys[peerID]
	a.mu.Unlock()

	if identity == nil {
		return fmt.Errorf("securechannel: Initialize was not called")
	}
	if len(peerPub) == 0 {
		return fmt.Errorf("securechannel: no public key recorded for peer %s", peerID)
	}

	curve := ecdh.X25519()
	peerKey, err := curve.NewPublicKey(peerPub)
	if err != nil {
		return fmt.Errorf("securechannel: parse peer %s public key: %w", peerID, err)
	}

	shared, err := identity.ECDH(peerKey)
	if err != nil {
		return fmt.Errorf("securechannel: ECDH with peer %s: %w", peerID, err)
	}

	sessionKey, err := deriveSessionKey(shared)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.sessionKeys[peerID] = sessionKey
	a.mu.Unlock()
	return nil
}

func (a *Adapter) SessionKeyBytes(peerID string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	key, ok := a.sessionKeys[peerID]
	if !ok {
		return nil, fmt.Errorf("securechannel: no session established with peer %s", peerID)
	}
	return append([]byte(nil), key...), nil
}

func (a *Adapter) Encrypt(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("securechannel: new AEAD: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("securechannel: generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return sealed, nil
}

func (a *Adapter) Decrypt(key, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("securechannel: new AEAD: %w", err)
	}
	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("securechannel: sealed payload too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("securechannel: decrypt: %w", err)
	}
	return plaintext, nil
}

func (a *Adapter) EncryptForPeer(peerID string, plaintext []byte) ([]byte, error) {
	key, err := a.SessionKeyBytes(peerID)
	if err != nil {
		return nil, err
	}
	return a.Encrypt(key, plaintext)
}

func (a *Adapter) DecryptFromPeer(peerID string, sealed []byte) ([]byte, error) {
	key, err := a.SessionKeyBytes(peerID)
	if err != nil {
		return nil, err
	}
	return a.Decrypt(key, sealed)
}

func (a *Adapter) GenerateEphemeralKeyPair() (*KeyPair, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("securechannel: generate ephemeral key: %w", err)
	}
	return &KeyPair{
		PublicKey:  priv.PublicKey().Bytes(),
		PrivateKey: priv.Bytes(),
	}, nil
}

// deriveSessionKey turns a raw X25519 shared secret into a 32-byte
// ChaCha20-Poly1305 key via HKDF-SHA256, matching the teacher's
// raw-DH -> HKDF -> symmetric-key pipeline.
func deriveSessionKey(shared []byte) ([]byte, error) {
	h := hkdf.New(sha256.New, shared, nil, []byte(hkdfInfo))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("securechannel: hkdf: %w", err)
	}
	return key, nil
}

var _ Service = (*Adapter)(nil)
