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

package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hamza-Labs-Core/zajel-sub007/securechannel"
	"github.com/Hamza-Labs-Core/zajel-sub007/signaling"
	"github.com/Hamza-Labs-Core/zajel-sub007/signaling/signalingtest"
	"github.com/Hamza-Labs-Core/zajel-sub007/storage/memstore"
	"github.com/Hamza-Labs-Core/zajel-sub007/webrtc/webrtctest"
)

// harness bundles one orchestrator with the fakes driving it, plus the
// FakeConn the primary dispatcher was dialed against so a test can
// push inbound frames and drain outbound ones.
type harness struct {
	orch   *Orchestrator
	engine *webrtctest.FakeEngine
	conn   *signalingtest.FakeConn
	crypto securechannel.Service
	store  *memstore.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	engine := webrtctest.NewFakeEngine()
	crypto := securechannel.NewAdapter()
	require.NoError(t, crypto.Initialize())
	store := memstore.NewStore()

	conn := signalingtest.NewFakeConn()
	dialer := signalingtest.NewFakeDialer(conn)

	dial := func() Dispatcher {
		return signaling.NewDispatcher(dialer, nil)
	}

	orch := New(Config{
		Dial:          dial,
		Engine:        engine,
		Crypto:        crypto,
		TrustedPeers:  store.TrustedPeers(),
		Messages:      store.Messages(),
		LinkedDevices: store.LinkedDevices(),
		IsE2ETest:     true,
	})

	require.NoError(t, orch.Initialize(context.Background()))

	return &harness{orch: orch, engine: engine, conn: conn, crypto: crypto, store: store}
}

// drainFrame reads and decodes the next frame the orchestrator wrote
// to the primary connection.
func drainFrame(t *testing.T, conn *signalingtest.FakeConn) map[string]interface{} {
	t.Helper()
	select {
	case raw := <-conn.Outbound:
		var frame map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &frame))
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
		return nil
	}
}

func TestOrchestrator_ConnectDisconnectLifecycle(t *testing.T) {
	h := newHarness(t)

	code, err := h.orch.Connect(context.Background(), "wss://example.test/ws", "")
	require.NoError(t, err)
	assert.NotEmpty(t, code)

	// Connect always writes a register frame first.
	frame := drainFrame(t, h.conn)
	assert.Equal(t, "register", frame["type"])

	h.orch.Disconnect()
	// Calling Disconnect again must be a safe no-op.
	h.orch.Disconnect()

	h.orch.Dispose()
	// Calling Dispose again must be a safe no-op.
	h.orch.Dispose()
}

// TestOrchestrator_FreshPair_InitiatorHandshake exercises §8's "fresh
// pair" scenario end to end: connect_to_peer sends a pair request,
// a PairMatched event (initiator=true) drives an offer, the signaling
// answer completes the WebRTC side, and the simulated data-channel
// open drives the crypto handshake through to Connected.
func TestOrchestrator_FreshPair_InitiatorHandshake(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.Connect(context.Background(), "wss://example.test/ws", "")
	require.NoError(t, err)
	drainFrame(t, h.conn) // register

	const peerCode = "ABCDEF"
	require.NoError(t, h.orch.ConnectToPeer(peerCode, "friend"))

	reqFrame := drainFrame(t, h.conn)
	assert.Equal(t, "pair_request", reqFrame["type"])
	assert.Equal(t, peerCode, reqFrame["code"])

	peerPub := make([]byte, 32)
	peerPub[0] = 0x42
	require.NoError(t, h.conn.Push(map[string]interface{}{
		"type":      "pair_matched",
		"code":      peerCode,
		"publicKey": base64.StdEncoding.EncodeToString(peerPub),
	}))

	offerFrame := drainFrame(t, h.conn)
	assert.Equal(t, "offer", offerFrame["type"])
	assert.Equal(t, peerCode, offerFrame["peerId"])

	// The responder answers; the engine should complete the local
	// offer and emit PeerEventOpen, driving the handshake.
	require.NoError(t, h.conn.Push(map[string]interface{}{
		"type":   "answer",
		"peerId": peerCode,
		"sdp":    "fake-remote-answer",
	}))

	require.Eventually(t, func() bool {
		p := h.orch.registry.Get(peerCode)
		return p != nil && p.State.String() == "connected"
	}, 2*time.Second, 10*time.Millisecond)

	h.orch.Dispose()
}

func TestOrchestrator_SendMessageRequiresKnownPeer(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Connect(context.Background(), "wss://example.test/ws", "")
	require.NoError(t, err)
	drainFrame(t, h.conn)

	err = h.orch.SendMessage("unknown-peer", []byte("hi"))
	assert.Error(t, err)

	h.orch.Dispose()
}

func TestOrchestrator_IncomingMessageIsPublished(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Connect(context.Background(), "wss://example.test/ws", "")
	require.NoError(t, err)
	drainFrame(t, h.conn)

	const peerCode = "NPQRST"
	h.orch.registry.ConnectTo(peerCode)
	h.orch.registry.ApplyPairMatched(peerCode, []byte{1, 2, 3})
	h.orch.registry.ApplyWebRTCOpen(peerCode)
	h.orch.registry.ApplyHandshakeDone(context.Background(), peerCode)

	sub, unsub := h.orch.Messages()
	defer unsub()

	h.engine.SimulateMessage(peerCode, []byte("hello there"))

	select {
	case ev := <-sub:
		assert.Equal(t, peerCode, ev.PeerCode)
		assert.Equal(t, []byte("hello there"), ev.Plaintext)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message event")
	}

	h.orch.Dispose()
}

func TestOrchestrator_DisconnectPeerTransitionsToDisconnected(t *testing.T) {
	h := newHarness(t)
	_, err := h.orch.Connect(context.Background(), "wss://example.test/ws", "")
	require.NoError(t, err)
	drainFrame(t, h.conn)

	const peerCode = "GHJKLM"
	h.orch.registry.ConnectTo(peerCode)

	require.NoError(t, h.orch.DisconnectPeer(peerCode))

	p := h.orch.registry.Get(peerCode)
	require.NotNil(t, p)
	assert.Equal(t, "disconnected", p.State.String())

	h.orch.Dispose()
}
