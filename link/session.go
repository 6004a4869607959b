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

// Package link implements the linked-device proxy (§4.8): pairing a
// browser/desktop client to this node via a QR-scanned link code, then
// tunnelling messages between it and WebRTC peers without either side
// ever seeing the other's traffic in the clear.
package link

import (
	"crypto/ecdh"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Hamza-Labs-Core/zajel-sub007/internal/metrics"
	"github.com/Hamza-Labs-Core/zajel-sub007/paircode"
)

const sessionTTL = 5 * time.Minute

// Session is a pending link invitation: an ephemeral X25519 key pair
// and a fresh link code, valid until ExpiresAt. TraceID is an internal
// correlation id, independent of the public pairing Code, so logs can
// follow a session across Admit without ever logging the code itself.
type Session struct {
	Code       paircode.Code
	TraceID    string
	ServerURL  string
	ExpiresAt  time.Time
	ephemeral  *ecdh.PrivateKey
	cancelFunc func()
}

// EphemeralPublicKey returns the raw bytes of this session's ephemeral
// X25519 public key, the value embedded in the QR payload.
func (s *Session) EphemeralPublicKey() []byte {
	return s.ephemeral.PublicKey().Bytes()
}

// PrivateKeyBytes returns the raw bytes of the ephemeral private key,
// used to open the HPKE session a linking device establishes against
// EphemeralPublicKey.
func (s *Session) PrivateKeyBytes() []byte {
	return s.ephemeral.Bytes()
}

// Manager tracks pending link sessions by code, expiring and
// self-cancelling each after sessionTTL.
type Manager struct {
	mu       sync.Mutex
	sessions map[paircode.Code]*Session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[paircode.Code]*Session)}
}

// CreateSession generates a fresh ephemeral key pair and link code for
// serverURL, valid for five minutes.
func (m *Manager) CreateSession(serverURL string) (*Session, error) {
	code, err := paircode.Generate()
	if err != nil {
		return nil, fmt.Errorf("link: generate code: %w", err)
	}

	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("link: generate ephemeral key: %w", err)
	}

	session := &Session{
		Code:      code,
		TraceID:   uuid.NewString(),
		ServerURL: serverURL,
		ExpiresAt: time.Now().Add(sessionTTL),
		ephemeral: priv,
	}

	m.mu.Lock()
	m.sessions[code] = session
	m.mu.Unlock()
	metrics.LinkSessionsCreated.Inc()

	timer := time.AfterFunc(sessionTTL, func() {
		m.mu.Lock()
		_, stillPending := m.sessions[code]
		delete(m.sessions, code)
		m.mu.Unlock()
		if stillPending {
			metrics.LinkSessionsCompleted.WithLabelValues("expired").Inc()
		}
	})
	session.cancelFunc = func() { timer.Stop() }

	return session, nil
}

// Lookup returns the pending session registered under code, if it
// exists and has not expired. An expired session is evicted as a side
// effect of the lookup.
func (m *Manager) Lookup(code string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[paircode.Code(code)]
	if !ok {
		return nil, false
	}
	if time.Now().After(s.ExpiresAt) {
		delete(m.sessions, s.Code)
		metrics.LinkSessionsCompleted.WithLabelValues("expired").Inc()
		return nil, false
	}
	return s, true
}

// Cancel evicts and stops the timer for code, used once a session has
// been consumed by a successful admission.
func (m *Manager) Cancel(code paircode.Code) {
	m.mu.Lock()
	s, ok := m.sessions[code]
	if ok {
		delete(m.sessions, code)
	}
	m.mu.Unlock()

	if ok && s.cancelFunc != nil {
		s.cancelFunc()
	}
}
