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

package memstore

import (
	"context"
	"sync"

	"github.com/Hamza-Labs-Core/zajel-sub007/storage"
)

type messageStore struct {
	mu   sync.RWMutex
	byPeer map[string][]*storage.Message
}

func newMessageStore() *messageStore {
	return &messageStore{byPeer: make(map[string][]*storage.Message)}
}

func (s *messageStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPeer = make(map[string][]*storage.Message)
}

func (s *messageStore) Append(ctx context.Context, msg *storage.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *msg
	s.byPeer[msg.PeerCode] = append(s.byPeer[msg.PeerCode], &cp)
	return nil
}

func (s *messageStore) ListForPeer(ctx context.Context, peerCode string) ([]*storage.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.byPeer[peerCode]
	out := make([]*storage.Message, len(msgs))
	for i, m := range msgs {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

func (s *messageStore) Rekey(ctx context.Context, oldCode, newCode string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, ok := s.byPeer[oldCode]
	if !ok || len(msgs) == 0 {
		return 0, nil
	}

	for _, m := range msgs {
		m.PeerCode = newCode
	}
	s.byPeer[newCode] = append(s.byPeer[newCode], msgs...)
	delete(s.byPeer, oldCode)

	return int64(len(msgs)), nil
}
