package link

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hamza-Labs-Core/zajel-sub007/securechannel"
	"github.com/Hamza-Labs-Core/zajel-sub007/signaling"
	"github.com/Hamza-Labs-Core/zajel-sub007/storage/memstore"
	"github.com/Hamza-Labs-Core/zajel-sub007/webrtc/webrtctest"
)

// simulateBrowser plays the role of the linking device: it scans the
// session's QR-embedded ephemeral public key and runs the HPKE sender
// side, returning the base64-encoded encapsulated key (the wire
// "PublicKey" field of a LinkRequest) and the session key it derived.
func simulateBrowser(t *testing.T, session *Session) (encB64 string, sessionKey []byte) {
	t.Helper()
	enc, key, err := securechannel.EstablishLinkSession(session.EphemeralPublicKey(), []byte(linkSessionInfo))
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(enc), key
}

func newTestProxy(t *testing.T) (*Proxy, *Manager, *webrtctest.FakeEngine, *memstore.Store) {
	t.Helper()
	mgr := NewManager()
	engine := webrtctest.NewFakeEngine()
	store := memstore.NewStore()
	crypto := securechannel.NewAdapter()
	require.NoError(t, crypto.Initialize())
	proxy := NewProxy(mgr, crypto, engine, store.LinkedDevices(), nil)
	return proxy, mgr, engine, store
}

func TestProxy_AdmitEstablishesSharedSessionKey(t *testing.T) {
	proxy, mgr, engine, _ := newTestProxy(t)
	ctx := context.Background()

	session, err := mgr.CreateSession("wss://example.test/ws")
	require.NoError(t, err)

	encB64, browserKey := simulateBrowser(t, session)

	offer, err := proxy.Admit(ctx, signaling.LinkRequestEvent{
		Code: string(session.Code), WebClientID: "web1", PublicKey: encB64, DeviceName: "Chrome",
	})
	require.NoError(t, err)
	assert.Contains(t, offer, "link_"+string(session.Code))
	assert.Equal(t, []string{"link_" + string(session.Code)}, engine.OffersCreated)

	proxy.MarkDeviceOpen("web1")

	proxy.ForwardFromPeer(ctx, "PEERCODE1", []byte("hello from peer"))

	peerID := "link_" + string(session.Code)
	require.Len(t, engine.Messages[peerID], 1)

	var frame messageFrame
	require.NoError(t, json.Unmarshal(engine.Messages[peerID][0], &frame))
	assert.Equal(t, "message", frame.Type)
	assert.Equal(t, "PEERCODE1", frame.From)

	ciphertext, err := base64.StdEncoding.DecodeString(frame.Data)
	require.NoError(t, err)

	crypto := securechannel.NewAdapter()
	require.NoError(t, crypto.Initialize())
	plaintext, err := crypto.Decrypt(browserKey, ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "hello from peer", string(plaintext))
}

func TestProxy_AdmitRejectsUnknownCode(t *testing.T) {
	proxy, _, _, _ := newTestProxy(t)
	_, err := proxy.Admit(context.Background(), signaling.LinkRequestEvent{Code: "BOGUS1", WebClientID: "web1"})
	assert.Error(t, err)
}

func TestProxy_HandleDeviceMessageDecryptsAndForwardsToPeer(t *testing.T) {
	proxy, mgr, engine, _ := newTestProxy(t)
	ctx := context.Background()

	session, err := mgr.CreateSession("wss://example.test/ws")
	require.NoError(t, err)
	encB64, browserKey := simulateBrowser(t, session)

	_, err = proxy.Admit(ctx, signaling.LinkRequestEvent{
		Code: string(session.Code), WebClientID: "web2", PublicKey: encB64,
	})
	require.NoError(t, err)
	proxy.MarkDeviceOpen("web2")

	crypto := securechannel.NewAdapter()
	require.NoError(t, crypto.Initialize())
	ciphertext, err := crypto.Encrypt(browserKey, []byte("hi peer"))
	require.NoError(t, err)

	frame := sendFrame{Type: "send", To: "PEERCODE2", Data: base64.StdEncoding.EncodeToString(ciphertext)}
	raw, err := json.Marshal(frame)
	require.NoError(t, err)

	peerID := "link_" + string(session.Code)
	require.NoError(t, proxy.HandleDeviceMessage(ctx, peerID, raw))

	require.Len(t, engine.Messages["PEERCODE2"], 1)
	assert.Equal(t, "hi peer", string(engine.Messages["PEERCODE2"][0]))
}

func TestProxy_HandleDeviceMessageRejectsWhenDeviceNotConnected(t *testing.T) {
	proxy, mgr, _, _ := newTestProxy(t)
	ctx := context.Background()

	session, err := mgr.CreateSession("wss://example.test/ws")
	require.NoError(t, err)
	encB64, _ := simulateBrowser(t, session)

	_, err = proxy.Admit(ctx, signaling.LinkRequestEvent{
		Code: string(session.Code), WebClientID: "web3", PublicKey: encB64,
	})
	require.NoError(t, err)
	// Note: MarkDeviceOpen is never called.

	peerID := "link_" + string(session.Code)
	err = proxy.HandleDeviceMessage(ctx, peerID, []byte(`{"type":"send","to":"X","data":"AA=="}`))
	assert.Error(t, err)
}

func TestProxy_NotifyPeerStateFansOutToConnectedDevicesOnly(t *testing.T) {
	proxy, mgr, engine, _ := newTestProxy(t)
	ctx := context.Background()

	session, err := mgr.CreateSession("wss://example.test/ws")
	require.NoError(t, err)
	encB64, _ := simulateBrowser(t, session)

	_, err = proxy.Admit(ctx, signaling.LinkRequestEvent{
		Code: string(session.Code), WebClientID: "web4", PublicKey: encB64,
	})
	require.NoError(t, err)

	peerID := "link_" + string(session.Code)

	// Not yet connected: no fan-out.
	proxy.NotifyPeerState("SOMEPEER", "Connected")
	assert.Empty(t, engine.Messages[peerID])

	proxy.MarkDeviceOpen("web4")
	proxy.NotifyPeerState("SOMEPEER", "Connected")

	require.Len(t, engine.Messages[peerID], 1)
	var frame peerStateFrame
	require.NoError(t, json.Unmarshal(engine.Messages[peerID][0], &frame))
	assert.Equal(t, "peer_state", frame.Type)
	assert.Equal(t, "SOMEPEER", frame.PeerID)
	assert.Equal(t, "Connected", frame.State)
}

func TestProxy_RemoveDeviceEvictsBothIndexes(t *testing.T) {
	proxy, mgr, _, _ := newTestProxy(t)
	ctx := context.Background()

	session, err := mgr.CreateSession("wss://example.test/ws")
	require.NoError(t, err)
	encB64, _ := simulateBrowser(t, session)

	_, err = proxy.Admit(ctx, signaling.LinkRequestEvent{
		Code: string(session.Code), WebClientID: "web5", PublicKey: encB64,
	})
	require.NoError(t, err)
	proxy.MarkDeviceOpen("web5")

	proxy.RemoveDevice("web5")

	assert.Empty(t, proxy.connectedDevices())

	peerID := "link_" + string(session.Code)
	err = proxy.HandleDeviceMessage(ctx, peerID, []byte(`{"type":"send","to":"X","data":"AA=="}`))
	assert.Error(t, err)
}
