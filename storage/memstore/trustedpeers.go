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
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/Hamza-Labs-Core/zajel-sub007/storage"
)

type trustedPeerStore struct {
	mu    sync.RWMutex
	peers map[string]*storage.TrustedPeer
}

func newTrustedPeerStore() *trustedPeerStore {
	return &trustedPeerStore{peers: make(map[string]*storage.TrustedPeer)}
}

func (s *trustedPeerStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = make(map[string]*storage.TrustedPeer)
}

func (s *trustedPeerStore) List(ctx context.Context) ([]*storage.TrustedPeer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*storage.TrustedPeer, 0, len(s.peers))
	for _, p := range s.peers {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (s *trustedPeerStore) Get(ctx context.Context, code string) (*storage.TrustedPeer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.peers[code]
	if !ok {
		return nil, fmt.Errorf("trusted peer not found: %s", code)
	}
	cp := *p
	return &cp, nil
}

func (s *trustedPeerStore) FindByPublicKey(ctx context.Context, publicKey []byte) (*storage.TrustedPeer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.peers {
		if bytes.Equal(p.PublicKey, publicKey) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("trusted peer not found for public key")
}

func (s *trustedPeerStore) Put(ctx context.Context, peer *storage.TrustedPeer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *peer
	s.peers[peer.Code] = &cp
	return nil
}

func (s *trustedPeerStore) Delete(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.peers, code)
	return nil
}
