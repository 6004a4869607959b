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

// Package peer owns the in-memory peer table: the code-to-Peer map,
// its state machine, and trusted-peer migration across code rotation.
// Every mutation ends with a snapshot emitted on a broadcast stream;
// no subscriber may mutate the table from its callback.
package peer

import "time"

// State is a peer's connection lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	Handshaking
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Handshaking:
		return "handshaking"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Peer is an entity known to this node, identified by its current
// pairing code and optionally tagged with a long-term public key. A
// peer with no public key is a placeholder inserted while a pairing
// request is in flight.
type Peer struct {
	Code        string
	PublicKey   []byte
	DisplayName string
	Alias       string
	State       State
	LastSeenAt  time.Time
	IsLocal     bool
}

// clone returns a deep copy so snapshots handed to subscribers can
// never be mutated back into the registry's table.
func (p *Peer) clone() *Peer {
	if p == nil {
		return nil
	}
	c := *p
	if p.PublicKey != nil {
		c.PublicKey = append([]byte(nil), p.PublicKey...)
	}
	return &c
}
