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

// Package webrtc declares the media-transport contract the
// orchestrator drives but never implements itself: creating and
// answering SDP offers, exchanging ICE candidates, and moving
// messages and file chunks once a peer connection is open. This
// module ships no real media stack — see Non-goals — only the
// contract and a fake for tests (webrtc/webrtctest).
package webrtc

// PeerEvent is one event the engine emits about a specific peer
// connection, multiplexed by PeerID so one Engine instance can drive
// many concurrent peer connections.
type PeerEvent struct {
	PeerID  string
	Kind    PeerEventKind
	SDP     string
	ICE     string
	Data    []byte
	FileID  string
	Index   int
	Total   int
	Name    string
	Size    int64
	Err     error
}

type PeerEventKind int

const (
	PeerEventUnknown PeerEventKind = iota
	PeerEventOpen
	PeerEventClosed
	PeerEventMessage
	PeerEventFileStart
	PeerEventFileChunk
	PeerEventFileComplete
	PeerEventError
	// PeerEventICECandidate carries a locally-gathered ICE candidate the
	// orchestrator must forward to signaling, scoped to whichever
	// dispatcher is currently captured as connected (§6, §9).
	PeerEventICECandidate
)

// Engine is the external collaborator contract for WebRTC peer
// connections. Engine must not hold an owning reference back to the
// orchestrator that constructed it — it communicates exclusively
// through SignalingEvents(), so the orchestrator stays the sole owner
// of peer lifecycle decisions.
type Engine interface {
	// CreateOffer opens a new peer connection to peerID and returns the
	// local SDP offer to forward through the signaling dispatcher.
	CreateOffer(peerID string) (sdp string, err error)

	// HandleOffer accepts a remote SDP offer from peerID and returns
	// the local SDP answer to forward back.
	HandleOffer(peerID, sdp string) (answer string, err error)

	// HandleAnswer completes the local offer previously created for
	// peerID with the remote SDP answer.
	HandleAnswer(peerID, sdp string) error

	// HandleICECandidate applies one remote ICE candidate to the
	// connection with peerID.
	HandleICECandidate(peerID, candidate string) error

	// SendMessage sends plaintext already decrypted by the caller over
	// the open data channel to peerID. The engine does not perform
	// encryption; that is the securechannel boundary's responsibility.
	SendMessage(peerID string, data []byte) error

	// SendFile streams a file's bytes to peerID in chunks, emitting
	// PeerEventFileChunk/PeerEventFileComplete on SignalingEvents as it
	// progresses.
	SendFile(peerID, name string, data []byte) error

	// ClosePeer tears down the connection with peerID.
	ClosePeer(peerID string) error

	// SignalingEvents returns the channel this engine emits PeerEvents
	// on, in receipt order, multiplexed across every peer it drives.
	SignalingEvents() <-chan PeerEvent
}
