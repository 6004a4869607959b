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

// Package memstore is an in-memory implementation of the storage
// contracts, used by every package's tests and suitable for a
// single-process demo node.
package memstore

import (
	"github.com/Hamza-Labs-Core/zajel-sub007/storage"
)

// Store bundles the three in-memory sub-stores behind the contracts
// in the storage package, mirroring how a real backend (see
// storage/postgres) groups its tables behind one handle.
type Store struct {
	trusted *trustedPeerStore
	msgs    *messageStore
	devices *linkedDeviceStore
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		trusted: newTrustedPeerStore(),
		msgs:    newMessageStore(),
		devices: newLinkedDeviceStore(),
	}
}

// TrustedPeers returns the TrustedPeerStore view.
func (s *Store) TrustedPeers() storage.TrustedPeerStore { return s.trusted }

// Messages returns the MessageStore view.
func (s *Store) Messages() storage.MessageStore { return s.msgs }

// LinkedDevices returns the LinkedDeviceStore view.
func (s *Store) LinkedDevices() storage.LinkedDeviceStore { return s.devices }

// Clear removes all data from every sub-store. Useful between test cases.
func (s *Store) Clear() {
	s.trusted.clear()
	s.msgs.clear()
	s.devices.clear()
}

var (
	_ storage.TrustedPeerStore  = (*trustedPeerStore)(nil)
	_ storage.MessageStore      = (*messageStore)(nil)
	_ storage.LinkedDeviceStore = (*linkedDeviceStore)(nil)
)
