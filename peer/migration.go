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

package peer

import (
	"bytes"
	"context"
	"time"

	"github.com/Hamza-Labs-Core/zajel-sub007/internal/logger"
	"github.com/Hamza-Labs-Core/zajel-sub007/internal/metrics"
	"github.com/Hamza-Labs-Core/zajel-sub007/securechannel"
	"github.com/Hamza-Labs-Core/zajel-sub007/storage"
)

// Migrator performs trusted-peer code migration and key-rotation
// handling on every PairMatched event, per §4.7.
type Migrator struct {
	registry *Registry
	peers    storage.TrustedPeerStore
	messages storage.MessageStore
	rotator  *securechannel.Rotator
	log      *logger.StructuredLogger
}

func NewMigrator(registry *Registry, peers storage.TrustedPeerStore, messages storage.MessageStore, rotator *securechannel.Rotator, log *logger.StructuredLogger) *Migrator {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &Migrator{registry: registry, peers: peers, messages: messages, rotator: rotator, log: log}
}

// OnPairMatched is invoked on every PairMatched event with the
// newly-matched peer's code and public key. If that public key is
// already trusted under a different code, it performs the code
// migration described in §4.7. If the code is already trusted but its
// recorded public key differs (a key rotation), it runs the TOFU
// rotation path instead. It is a no-op otherwise.
func (m *Migrator) OnPairMatched(ctx context.Context, newCode string, publicKey []byte) {
	existingByKey, err := m.peers.FindByPublicKey(ctx, publicKey)
	if err != nil {
		m.log.Debug("migration: no trusted record for public key", logger.Field{Key: "code", Value: newCode})
	}

	if existingByKey != nil && existingByKey.Code != newCode {
		m.migrateCode(ctx, existingByKey, newCode, publicKey)
		return
	}

	existingByCode, err := m.peers.Get(ctx, newCode)
	if err == nil && existingByCode != nil && len(existingByCode.PublicKey) > 0 &&
		!bytes.Equal(existingByCode.PublicKey, publicKey) {
		m.rotateKey(ctx, newCode, existingByCode.PublicKey, publicKey)
	}
}

// migrateCode carries a trusted peer's identity forward from oldRecord
// to newCode: message history, display name, and the trusted-storage
// record. Storage failures are logged, not fatal — the new code still
// works, only historical continuity degrades.
func (m *Migrator) migrateCode(ctx context.Context, oldRecord *storage.TrustedPeer, newCode string, publicKey []byte) {
	oldCode := oldRecord.Code

	movedCount, err := m.messages.Rekey(ctx, oldCode, newCode)
	if err != nil {
		m.log.Warn("migration: failed to migrate message history",
			logger.Field{Key: "old_code", Value: oldCode},
			logger.Field{Key: "new_code", Value: newCode},
			logger.Field{Key: "error", Value: err.Error()})
	} else {
		m.log.Info("migration: moved message history",
			logger.Field{Key: "old_code", Value: oldCode},
			logger.Field{Key: "new_code", Value: newCode},
			logger.Field{Key: "count", Value: movedCount})
	}

	m.registry.mu.Lock()
	delete(m.registry.peers, oldCode)
	m.registry.peers[newCode] = &Peer{
		Code:        newCode,
		PublicKey:   append([]byte(nil), publicKey...),
		DisplayName: oldRecord.Alias,
		Alias:       oldRecord.Alias,
		State:       Connecting,
		LastSeenAt:  time.Now(),
	}
	m.registry.mu.Unlock()

	if err := m.peers.Delete(ctx, oldCode); err != nil {
		m.log.Warn("migration: failed to delete old trusted record",
			logger.Field{Key: "old_code", Value: oldCode}, logger.Field{Key: "error", Value: err.Error()})
	}
	if err := m.peers.Put(ctx, &storage.TrustedPeer{
		Code:      newCode,
		PublicKey: publicKey,
		Alias:     oldRecord.Alias,
		TrustedAt: oldRecord.TrustedAt,
	}); err != nil {
		m.log.Warn("migration: failed to write new trusted record",
			logger.Field{Key: "new_code", Value: newCode}, logger.Field{Key: "error", Value: err.Error()})
	}

	metrics.PeerMigrations.Inc()
	m.registry.publish()
}

// rotateKey handles the TOFU key-rotation path for a trusted peer
// whose code is unchanged but whose public key is not: record the
// rotation, swap the session key via securechannel, emit a rotation
// event, and write a system message into chat history. Rotations are
// never refused.
func (m *Migrator) rotateKey(ctx context.Context, code string, oldKey, newKey []byte) {
	if m.rotator != nil {
		if _, err := m.rotator.Rotate(code, newKey); err != nil {
			m.log.Warn("migration: key rotation session swap failed",
				logger.Field{Key: "code", Value: code}, logger.Field{Key: "error", Value: err.Error()})
		}
	}

	if err := m.peers.Put(ctx, &storage.TrustedPeer{
		Code:      code,
		PublicKey: newKey,
		TrustedAt: time.Now(),
	}); err != nil {
		m.log.Warn("migration: failed to persist rotated key",
			logger.Field{Key: "code", Value: code}, logger.Field{Key: "error", Value: err.Error()})
	}

	if err := m.messages.Append(ctx, &storage.Message{
		PeerCode: code,
		Direction: "received",
		System:    true,
		Body:      []byte("peer's identity key was rotated"),
		SentAt:    time.Now(),
	}); err != nil {
		m.log.Warn("migration: failed to write rotation system message",
			logger.Field{Key: "code", Value: code}, logger.Field{Key: "error", Value: err.Error()})
	}

	metrics.PeerKeyRotations.Inc()
	m.log.Info("migration: accepted key rotation",
		logger.Field{Key: "code", Value: code},
		logger.Field{Key: "old_key_len", Value: len(oldKey)})
}
