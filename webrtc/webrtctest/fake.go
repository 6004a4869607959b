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

// Package webrtctest provides a fake webrtc.Engine so orchestrator
// and pairing-controller tests can exercise full connection flows —
// offer/answer/ICE/message/file — without a real media stack.
package webrtctest

import (
	"fmt"
	"sync"

	"github.com/Hamza-Labs-Core/zajel-sub007/webrtc"
)

// FakeEngine is an in-process webrtc.Engine. Every call is recorded so
// tests can assert on what the orchestrator drove, and SimulateOpen/
// SimulateMessage/etc. let a test play the other side of the
// connection.
type FakeEngine struct {
	mu     sync.Mutex
	events chan webrtc.PeerEvent
	opened map[string]bool
	closed map[string]bool

	OffersCreated  []string
	OffersHandled  []string
	AnswersHandled []string
	Messages       map[string][][]byte

	FailOffer bool
}

func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		events:   make(chan webrtc.PeerEvent, 64),
		opened:   make(map[string]bool),
		closed:   make(map[string]bool),
		Messages: make(map[string][][]byte),
	}
}

func (f *FakeEngine) CreateOffer(peerID string) (string, error) {
	if f.FailOffer {
		return "", fmt.Errorf("webrtctest: simulated offer failure for %s", peerID)
	}
	f.mu.Lock()
	f.OffersCreated = append(f.OffersCreated, peerID)
	f.mu.Unlock()
	return "fake-offer-sdp:" + peerID, nil
}

func (f *FakeEngine) HandleOffer(peerID, sdp string) (string, error) {
	f.mu.Lock()
	f.OffersHandled = append(f.OffersHandled, peerID)
	f.mu.Unlock()
	return "fake-answer-sdp:" + peerID, nil
}

func (f *FakeEngine) HandleAnswer(peerID, sdp string) error {
	f.mu.Lock()
	f.AnswersHandled = append(f.AnswersHandled, peerID)
	f.opened[peerID] = true
	f.mu.Unlock()
	f.emit(webrtc.PeerEvent{PeerID: peerID, Kind: webrtc.PeerEventOpen})
	return nil
}

func (f *FakeEngine) HandleICECandidate(peerID, candidate string) error {
	return nil
}

func (f *FakeEngine) SendMessage(peerID string, data []byte) error {
	f.mu.Lock()
	if f.closed[peerID] {
		f.mu.Unlock()
		return fmt.Errorf("webrtctest: peer %s is closed", peerID)
	}
	f.Messages[peerID] = append(f.Messages[peerID], append([]byte(nil), data...))
	f.mu.Unlock()
	return nil
}

func (f *FakeEngine) SendFile(peerID, name string, data []byte) error {
	f.emit(webrtc.PeerEvent{PeerID: peerID, Kind: webrtc.PeerEventFileStart, Name: name, Size: int64(len(data))})
	f.emit(webrtc.PeerEvent{PeerID: peerID, Kind: webrtc.PeerEventFileComplete, Name: name})
	return nil
}

func (f *FakeEngine) ClosePeer(peerID string) error {
	f.mu.Lock()
	f.closed[peerID] = true
	delete(f.opened, peerID)
	f.mu.Unlock()
	f.emit(webrtc.PeerEvent{PeerID: peerID, Kind: webrtc.PeerEventClosed})
	return nil
}

func (f *FakeEngine) SignalingEvents() <-chan webrtc.PeerEvent {
	return f.events
}

// SimulateOpen lets a test drive the "remote side answered, channel is
// now open" transition without going through HandleAnswer.
func (f *FakeEngine) SimulateOpen(peerID string) {
	f.mu.Lock()
	f.opened[peerID] = true
	f.mu.Unlock()
	f.emit(webrtc.PeerEvent{PeerID: peerID, Kind: webrtc.PeerEventOpen})
}

// SimulateMessage lets a test deliver an inbound message as if it
// arrived over the data channel from peerID.
func (f *FakeEngine) SimulateMessage(peerID string, data []byte) {
	f.emit(webrtc.PeerEvent{PeerID: peerID, Kind: webrtc.PeerEventMessage, Data: data})
}

// SimulateICECandidate lets a test deliver a locally-gathered ICE
// candidate for peerID, as the engine would while trickling.
func (f *FakeEngine) SimulateICECandidate(peerID, candidate string) {
	f.emit(webrtc.PeerEvent{PeerID: peerID, Kind: webrtc.PeerEventICECandidate, ICE: candidate})
}

// SimulateError lets a test deliver an engine-level error for peerID.
func (f *FakeEngine) SimulateError(peerID string, err error) {
	f.emit(webrtc.PeerEvent{PeerID: peerID, Kind: webrtc.PeerEventError, Err: err})
}

func (f *FakeEngine) emit(ev webrtc.PeerEvent) {
	select {
	case f.events <- ev:
	default:
	}
}

var _ webrtc.Engine = (*FakeEngine)(nil)
