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

package link

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Hamza-Labs-Core/zajel-sub007/internal/logger"
	"github.com/Hamza-Labs-Core/zajel-sub007/internal/metrics"
	"github.com/Hamza-Labs-Core/zajel-sub007/securechannel"
	"github.com/Hamza-Labs-Core/zajel-sub007/signaling"
	"github.com/Hamza-Labs-Core/zajel-sub007/storage"
	"github.com/Hamza-Labs-Core/zajel-sub007/webrtc"
)

const linkSessionInfo = "zajel-link-session-v1"

type deviceState struct {
	webClientID string
	peerID      string
	traceID     string
	sessionKey  []byte
	connected   bool
}

// sendFrame is a browser-to-peer tunnel frame: {"type":"send","to":P,"data":<tunnel ciphertext>}.
type sendFrame struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Data string `json:"data"`
}

// messageFrame is a mobile-to-browser tunnel frame: {"type":"message","from":P,"data":<ciphertext>}.
type messageFrame struct {
	Type string `json:"type"`
	From string `json:"from"`
	Data string `json:"data"`
}

// peerStateFrame fans out a peer transition to every linked device.
type peerStateFrame struct {
	Type   string `json:"type"`
	PeerID string `json:"peerId"`
	State  string `json:"state"`
}

// Proxy implements the linked-device proxy from spec.md §4.8: it
// admits browser/desktop devices against a pending Session, tunnels
// ciphertext in both directions, and fans out peer-state transitions.
// Its governing invariant is that it never forwards a plaintext it did
// not itself decrypt under a known linked-device key, and never
// forwards to a device whose state is not Connected.
type Proxy struct {
	mu            sync.RWMutex
	devicesByID   map[string]*deviceState
	devicesByPeer map[string]*deviceState

	sessions *Manager
	crypto   securechannel.Service
	engine   webrtc.Engine
	store    storage.LinkedDeviceStore
	log      *logger.StructuredLogger
}

func NewProxy(sessions *Manager, crypto securechannel.Service, engine webrtc.Engine, store storage.LinkedDeviceStore, log *logger.StructuredLogger) *Proxy {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &Proxy{
		devicesByID:   make(map[string]*deviceState),
		devicesByPeer: make(map[string]*deviceState),
		sessions:      sessions,
		crypto:        crypto,
		engine:        engine,
		store:         store,
		log:           log,
	}
}

// Admit processes an inbound LinkRequest: it validates the code
// against a pending Session (rejecting non-matching or expired codes),
// opens the HPKE session the requesting device established, persists
// a LinkedDevice record, and drives WebRTC toward the peer id
// "link_<code>". It returns the SDP offer to deliver back to the
// device.
func (p *Proxy) Admit(ctx context.Context, ev signaling.LinkRequestEvent) (string, error) {
	session, ok := p.sessions.Lookup(ev.Code)
	if !ok {
		return "", fmt.Errorf("link: no pending session for code %s", ev.Code)
	}

	enc, err := base64.StdEncoding.DecodeString(ev.PublicKey)
	if err != nil {
		metrics.LinkSessionsCompleted.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("link: decode encapsulated key: %w", err)
	}

	sessionKey, err := securechannel.OpenLinkSession(session.PrivateKeyBytes(), enc, []byte(linkSessionInfo))
	if err != nil {
		metrics.LinkSessionsCompleted.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("link: open device session: %w", err)
	}

	peerID := "link_" + string(session.Code)
	device := &deviceState{webClientID: ev.WebClientID, peerID: peerID, traceID: session.TraceID, sessionKey: sessionKey}

	p.mu.Lock()
	p.devicesByID[ev.WebClientID] = device
	p.devicesByPeer[peerID] = device
	p.mu.Unlock()
	metrics.ActiveLinkedDevices.Inc()

	if p.store != nil {
		if err := p.store.Put(ctx, &storage.LinkedDevice{
			WebClientID: ev.WebClientID,
			DeviceName:  ev.DeviceName,
			LinkedAt:    time.Now(),
			LastSeenAt:  time.Now(),
		}); err != nil {
			p.log.Warn("link: failed to persist linked device",
				logger.Field{Key: "web_client_id", Value: ev.WebClientID}, logger.Field{Key: "error", Value: err.Error()})
		}
	}

	offer, err := p.engine.CreateOffer(peerID)
	if err != nil {
		p.removeDevice(ev.WebClientID)
		metrics.LinkSessionsCompleted.WithLabelValues("rejected").Inc()
		return "", fmt.Errorf("link: create offer toward %s: %w", peerID, err)
	}

	p.sessions.Cancel(session.Code)
	metrics.LinkSessionsCompleted.WithLabelValues("matched").Inc()
	return offer, nil
}

// MarkDeviceOpen transitions a linked device to Connected once its
// WebRTC data channel opens.
func (p *Proxy) MarkDeviceOpen(webClientID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d, ok := p.devicesByID[webClientID]; ok {
		d.connected = true
	}
}

// MarkPeerOpen is MarkDeviceOpen addressed by WebRTC peer id
// ("link_<code>") rather than webClientId, for callers that only see
// the engine's peer-keyed PeerEventOpen.
func (p *Proxy) MarkPeerOpen(peerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if d, ok := p.devicesByPeer[peerID]; ok {
		d.connected = true
	}
}

// RemoveDevice evicts a linked device, used on disconnect or close.
func (p *Proxy) RemoveDevice(webClientID string) {
	p.removeDevice(webClientID)
}

func (p *Proxy) removeDevice(webClientID string) {
	p.mu.Lock()
	d, ok := p.devicesByID[webClientID]
	delete(p.devicesByID, webClientID)
	if ok {
		delete(p.devicesByPeer, d.peerID)
	}
	p.mu.Unlock()
	if ok {
		metrics.ActiveLinkedDevices.Dec()
	}
}

// HandleDeviceMessage processes a tunnel frame arriving from the
// WebRTC peer link_<code> — i.e. from a linked browser device. Only a
// "send" frame from a Connected device is honored; the tunnel
// ciphertext is decrypted under that device's session key before the
// resulting plaintext is ever handed to the WebRTC engine.
func (p *Proxy) HandleDeviceMessage(ctx context.Context, peerID string, raw []byte) error {
	p.mu.RLock()
	device, ok := p.devicesByPeer[peerID]
	p.mu.RUnlock()
	if !ok || !device.connected {
		return fmt.Errorf("link: message from unknown or disconnected device peer %s", peerID)
	}

	var frame sendFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return fmt.Errorf("link: malformed tunnel frame: %w", err)
	}
	if frame.Type != "send" {
		return nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(frame.Data)
	if err != nil {
		return fmt.Errorf("link: decode tunnel ciphertext: %w", err)
	}

	plaintext, err := p.crypto.Decrypt(device.sessionKey, ciphertext)
	if err != nil {
		return fmt.Errorf("link: decrypt tunnel ciphertext: %w", err)
	}

	return p.engine.SendMessage(frame.To, plaintext)
}

// ForwardFromPeer tunnels a plaintext received from peer fromPeerCode
// to every currently Connected linked device, each encrypted under
// that device's own session key.
func (p *Proxy) ForwardFromPeer(ctx context.Context, fromPeerCode string, plaintext []byte) {
	for _, device := range p.connectedDevices() {
		ciphertext, err := p.crypto.Encrypt(device.sessionKey, plaintext)
		if err != nil {
			p.log.Warn("link: failed to encrypt for device",
				logger.Field{Key: "trace_id", Value: device.traceID}, logger.Field{Key: "error", Value: err.Error()})
			continue
		}
		frame := messageFrame{Type: "message", From: fromPeerCode, Data: base64.StdEncoding.EncodeToString(ciphertext)}
		data, err := json.Marshal(frame)
		if err != nil {
			continue
		}
		if err := p.engine.SendMessage(device.peerID, data); err != nil {
			p.log.Warn("link: failed to tunnel message to device",
				logger.Field{Key: "trace_id", Value: device.traceID}, logger.Field{Key: "error", Value: err.Error()})
		}
	}
}

// NotifyPeerState fans out a peer's state transition to every
// Connected linked device, per §4.8's peer-state fan-out.
func (p *Proxy) NotifyPeerState(peerCode, state string) {
	frame := peerStateFrame{Type: "peer_state", PeerID: peerCode, State: state}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	for _, device := range p.connectedDevices() {
		if err := p.engine.SendMessage(device.peerID, data); err != nil {
			p.log.Warn("link: failed to fan out peer state",
				logger.Field{Key: "trace_id", Value: device.traceID}, logger.Field{Key: "error", Value: err.Error()})
		}
	}
}

func (p *Proxy) connectedDevices() []*deviceState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*deviceState, 0, len(p.devicesByID))
	for _, d := range p.devicesByID {
		if d.connected {
			out = append(out, d)
		}
	}
	return out
}
