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
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Hamza-Labs-Core/zajel-sub007/internal/broadcast"
	"github.com/Hamza-Labs-Core/zajel-sub007/internal/logger"
	"github.com/Hamza-Labs-Core/zajel-sub007/internal/metrics"
	"github.com/Hamza-Labs-Core/zajel-sub007/storage"
)

// Registry holds the code -> Peer map and its state machine. It is
// safe for concurrent use; every mutating method publishes a snapshot
// of the full table to Subscribe()'s subscribers before returning.
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*Peer

	store   storage.TrustedPeerStore
	log     *logger.StructuredLogger
	changes *broadcast.Broadcaster[[]*Peer]
}

// NewRegistry constructs an empty Registry backed by store for
// trusted-peer persistence. Call Seed to populate it at startup.
func NewRegistry(store storage.TrustedPeerStore, log *logger.StructuredLogger) *Registry {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &Registry{
		peers:   make(map[string]*Peer),
		store:   store,
		log:     log,
		changes: broadcast.New[[]*Peer](),
	}
}

// Subscribe registers a listener for peer-table snapshots, emitted
// once per mutation. The returned slice is a deep copy; mutating it
// has no effect on the registry.
func (r *Registry) Subscribe() (<-chan []*Peer, func()) {
	return r.changes.Subscribe()
}

// Seed populates the table from every non-blocked trusted peer in
// storage, each starting Disconnected, per §4.5.
func (r *Registry) Seed(ctx context.Context) error {
	trusted, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("peer: seed from storage: %w", err)
	}

	r.mu.Lock()
	for _, tp := range trusted {
		if tp.Blocked {
			continue
		}
		r.peers[tp.Code] = &Peer{
			Code:        tp.Code,
			PublicKey:   append([]byte(nil), tp.PublicKey...),
			DisplayName: tp.Alias,
			Alias:       tp.Alias,
			State:       Disconnected,
			LastSeenAt:  tp.TrustedAt,
		}
	}
	r.mu.Unlock()

	r.publish()
	return nil
}

// Get returns a deep copy of the peer registered under code, or nil
// if none exists.
func (r *Registry) Get(code string) *Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.peers[code].clone()
}

// All returns a deep copy snapshot of every peer currently in the
// table.
func (r *Registry) All() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) snapshotLocked() []*Peer {
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p.clone())
	}
	return out
}

func (r *Registry) publish() {
	r.mu.RLock()
	snapshot := r.snapshotLocked()
	r.mu.RUnlock()
	r.changes.Publish(snapshot)
	metrics.PeersByState.Reset()
	for _, p := range snapshot {
		metrics.PeersByState.WithLabelValues(p.State.String()).Inc()
	}
}

// ConnectTo begins connecting to code. If no placeholder exists yet,
// one is inserted in Connecting with display name "Peer <code>",
// matching §4.5's placeholder-insertion rule.
func (r *Registry) ConnectTo(code string) *Peer {
	r.mu.Lock()
	p, ok := r.peers[code]
	if !ok {
		p = &Peer{
			Code:        code,
			DisplayName: fmt.Sprintf("Peer %s", code),
			State:       Connecting,
			LastSeenAt:  time.Now(),
		}
		r.peers[code] = p
	} else {
		p.State = Connecting
		p.LastSeenAt = time.Now()
	}
	out := p.clone()
	r.mu.Unlock()

	r.publish()
	return out
}

// ApplyPairMatched attaches publicKey to the Connecting peer at code,
// per §4.5's "PairMatched (public key attached)" transition. It is a
// no-op if the peer is not currently Connecting.
func (r *Registry) ApplyPairMatched(code string, publicKey []byte) {
	r.mu.Lock()
	p, ok := r.peers[code]
	if !ok || p.State != Connecting {
		r.mu.Unlock()
		return
	}
	p.PublicKey = append([]byte(nil), publicKey...)
	r.mu.Unlock()

	r.publish()
}

// ApplyWebRTCOpen transitions a Connecting peer to Handshaking once
// its data channel opens.
func (r *Registry) ApplyWebRTCOpen(code string) {
	r.transition(code, Connecting, Handshaking)
}

// ApplyHandshakeDone transitions a Handshaking peer to Connected, and
// persists it as trusted if its public key is known, per §4.5's
// "Connected, first entry -> persisted as trusted" rule.
func (r *Registry) ApplyHandshakeDone(ctx context.Context, code string) error {
	r.mu.Lock()
	p, ok := r.peers[code]
	if !ok || p.State != Handshaking {
		r.mu.Unlock()
		return nil
	}
	p.State = Connected
	p.LastSeenAt = time.Now()
	shouldPersist := len(p.PublicKey) > 0
	snapshot := p.clone()
	r.mu.Unlock()

	r.publish()

	if !shouldPersist || r.store == nil {
		return nil
	}

	existing, err := r.store.Get(ctx, code)
	if err == nil && existing != nil {
		return nil
	}

	return r.store.Put(ctx, &storage.TrustedPeer{
		Code:      snapshot.Code,
		PublicKey: snapshot.PublicKey,
		Alias:     snapshot.DisplayName,
		TrustedAt: time.Now(),
	})
}

// ApplyPairRejected removes the Connecting peer at code (Failed then
// removed, per §4.5).
func (r *Registry) ApplyPairRejected(code string) {
	r.removeIfState(code, Connecting)
}

// ApplyPairTimeout removes the Connecting peer at code.
func (r *Registry) ApplyPairTimeout(code string) {
	r.removeIfState(code, Connecting)
}

// ApplyPairError purges every peer currently Connecting, per §4.5's
// PairError policy.
func (r *Registry) ApplyPairError() {
	r.mu.Lock()
	for code, p := range r.peers {
		if p.State == Connecting {
			delete(r.peers, code)
		}
	}
	r.mu.Unlock()

	r.log.Warn("pair error: purged all connecting peers")
	r.publish()
}

// ApplyPeerLeft transitions code to Disconnected from any state.
func (r *Registry) ApplyPeerLeft(code string) {
	r.setState(code, Disconnected)
}

// Close transitions code to Disconnected, the same effect as
// ApplyPeerLeft, used when the local side hangs up.
func (r *Registry) Close(code string) {
	r.setState(code, Disconnected)
}

func (r *Registry) transition(code string, from, to State) {
	r.mu.Lock()
	p, ok := r.peers[code]
	if !ok || p.State != from {
		r.mu.Unlock()
		return
	}
	p.State = to
	p.LastSeenAt = time.Now()
	r.mu.Unlock()

	r.publish()
}

func (r *Registry) setState(code string, to State) {
	r.mu.Lock()
	p, ok := r.peers[code]
	if !ok {
		r.mu.Unlock()
		return
	}
	p.State = to
	p.LastSeenAt = time.Now()
	r.mu.Unlock()

	r.publish()
}

func (r *Registry) removeIfState(code string, from State) {
	r.mu.Lock()
	p, ok := r.peers[code]
	if !ok || p.State != from {
		r.mu.Unlock()
		return
	}
	delete(r.peers, code)
	r.mu.Unlock()

	r.publish()
}
