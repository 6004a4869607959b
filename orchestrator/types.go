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

// Package orchestrator is the composition root from spec.md §4.9: it
// owns the peer table, the signaling-state sum type, the
// federated-redirect map (delegated to rendezvous.Coordinator), and
// every subscription a connect-cycle opens. One goroutine drains the
// signaling-event and WebRTC-event channels in a single select loop,
// so those handlers never race each other (rendezvous results from
// auxiliary redirect connections are handled on the coordinator's own
// goroutines, outside this loop); the only hazard is
// a handler that suspends and resumes after a concurrent disconnect,
// which is why every suspending handler follows the capture-rule
// discipline from §5: bind the connected dispatcher handle before the
// first await, re-check it after each resume.
package orchestrator

import (
	"context"

	"github.com/Hamza-Labs-Core/zajel-sub007/signaling"
)

// Dispatcher is the superset of signaling.Dispatcher the orchestrator
// and the collaborators it constructs (pairing.Controller,
// rendezvous.Coordinator) drive. Keeping it local, rather than
// importing *signaling.Dispatcher directly, lets tests substitute a
// signalingtest-backed fake and lets the orchestrator hand the same
// value to every narrower collaborator interface it satisfies
// structurally.
type Dispatcher interface {
	Connect(ctx context.Context, url, peerID string) error
	IsConnected() bool
	Close() error
	Events() <-chan signaling.Event

	SendOffer(peerID, sdp string) error
	SendAnswer(peerID, sdp string) error
	SendIceCandidate(peerID, candidate string) error
	SendPairRequest(pairingCode, publicKey string) error
	SendPairAccept(peerID string) error
	SendPairReject(peerID, reason string) error
	SendRegisterRendezvous(dailyTokens, hourlyTokens []string) error
	SendChunkMessage(peerID string, chunkIndex, chunkTotal int, chunkData string) error
}

// DialFunc produces a fresh, unconnected Dispatcher. The orchestrator
// uses it both to build the primary connection in Connect and to hand
// to the rendezvous coordinator for federated-redirect auxiliary
// connections.
type DialFunc func() Dispatcher

// MessageEvent is one plaintext delivered from peerCode over an open
// WebRTC data channel, already decrypted by the securechannel
// boundary.
type MessageEvent struct {
	PeerCode  string
	Plaintext []byte
}

// FileStartEvent announces an inbound file transfer has begun.
type FileStartEvent struct {
	PeerCode   string
	FileID     string
	Name       string
	TotalSize  int64
	TotalChunks int
}

// FileChunkEvent carries one chunk of an inbound file transfer.
type FileChunkEvent struct {
	PeerCode string
	FileID   string
	Data     []byte
	Index    int
	Total    int
}

// FileCompleteEvent announces an inbound file transfer has finished.
type FileCompleteEvent struct {
	PeerCode string
	FileID   string
}

// LinkRequestNotice is surfaced on the link_requests stream once a
// linked device has been admitted (§4.8), so the UI can display it
// and optionally revoke it via RespondToLinkRequest.
type LinkRequestNotice struct {
	Code        string
	PublicKey   string
	WebClientID string
	DeviceName  string
}
