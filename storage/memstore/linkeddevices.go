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
	"fmt"
	"sync"

	"github.com/Hamza-Labs-Core/zajel-sub007/storage"
)

type linkedDeviceStore struct {
	mu      sync.RWMutex
	devices map[string]*storage.LinkedDevice
}

func newLinkedDeviceStore() *linkedDeviceStore {
	return &linkedDeviceStore{devices: make(map[string]*storage.LinkedDevice)}
}

func (s *linkedDeviceStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices = make(map[string]*storage.LinkedDevice)
}

func (s *linkedDeviceStore) List(ctx context.Context) ([]*storage.LinkedDevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*storage.LinkedDevice, 0, len(s.devices))
	for _, d := range s.devices {
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

func (s *linkedDeviceStore) Get(ctx context.Context, webClientID string) (*storage.LinkedDevice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.devices[webClientID]
	if !ok {
		return nil, fmt.Errorf("linked device not found: %s", webClientID)
	}
	cp := *d
	return &cp, nil
}

func (s *linkedDeviceStore) Put(ctx context.Context, device *storage.LinkedDevice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *device
	s.devices[device.WebClientID] = &cp
	return nil
}

func (s *linkedDeviceStore) Delete(ctx context.Context, webClientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.devices, webClientID)
	return nil
}
