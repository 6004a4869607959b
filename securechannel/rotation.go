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
	"fmt"
	"sync"
	"time"
)

// RotationEvent records one key-rotation for a peer: the public key
// before and after, and when it happened.
type RotationEvent struct {
	PeerID    string
	OldKey    []byte
	NewKey    []byte
	RotatedAt time.Time
}

// Rotator tracks key-rotation history per peer and guards against
// concurrent rotations for the same peer racing each other, mirroring
// the teacher's rotating-flag discipline.
type Rotator struct {
	service Service

	mu       sync.Mutex
	history  map[string][]RotationEvent
	rotating map[string]bool
}

func NewRotator(service Service) *Rotator {
	return &Rotator{
		service:  service,
		history:  make(map[string][]RotationEvent),
		rotating: make(map[string]bool),
	}
}

// Rotate records that peerID has presented a new public key in place
// of the one previously recorded, swaps the service's session key for
// that peer (re-establishing it against the new key), and appends a
// RotationEvent to the peer's history.
func (r *Rotator) Rotate(peerID string, newKey []byte) (RotationEvent, error) {
	r.mu.Lock()
	if r.rotating[peerID] {
		r.mu.Unlock()
		return RotationEvent{}, fmt.Errorf("securechannel: peer %s is already rotating", peerID)
	}
	r.rotating[peerID] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.rotating, peerID)
		r.mu.Unlock()
	}()

	oldKey, err := r.service.GetPeerPublicKey(peerID)
	if err != nil {
		oldKey = nil
	}

	if err := r.service.SetPeerPublicKey(peerID, newKey); err != nil {
		return RotationEvent{}, fmt.Errorf("securechannel: record new key for peer %s: %w", peerID, err)
	}
	if err := r.service.EstablishSession(peerID); err != nil {
		return RotationEvent{}, fmt.Errorf("securechannel: re-establish session with peer %s: %w", peerID, err)
	}

	event := RotationEvent{
		PeerID:    peerID,
		OldKey:    oldKey,
		NewKey:    append([]byte(nil), newKey...),
		RotatedAt: time.Now(),
	}

	r.mu.Lock()
	r.history[peerID] = append(r.history[peerID], event)
	r.mu.Unlock()

	return event, nil
}

// History returns the rotation events recorded for peerID, oldest
// first.
func (r *Rotator) History(peerID string) []RotationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RotationEvent, len(r.history[peerID]))
	copy(out, r.history[peerID])
	return out
}
