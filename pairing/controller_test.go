package pairing

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hamza-Labs-Core/zajel-sub007/peer"
	"github.com/Hamza-Labs-Core/zajel-sub007/securechannel"
	"github.com/Hamza-Labs-Core/zajel-sub007/storage"
	"github.com/Hamza-Labs-Core/zajel-sub007/storage/memstore"
	"github.com/Hamza-Labs-Core/zajel-sub007/webrtc/webrtctest"
)

// fakeDispatcher is a minimal in-test double for pairing.Dispatcher.
type fakeDispatcher struct {
	mu        sync.Mutex
	connected bool

	requestsSent []string
	accepts      []string
	rejects      []string
	offersSent   []string
	answersSent  []string
}

func newFakeDispatcher() *fakeDispatcher { return &fakeDispatcher{connected: true} }

func (f *fakeDispatcher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeDispatcher) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeDispatcher) SendPairRequest(code, publicKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestsSent = append(f.requestsSent, code)
	return nil
}

func (f *fakeDispatcher) SendPairAccept(peerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accepts = append(f.accepts, peerID)
	return nil
}

func (f *fakeDispatcher) SendPairReject(peerID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejects = append(f.rejects, peerID)
	return nil
}

func (f *fakeDispatcher) SendOffer(peerID, sdp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offersSent = append(f.offersSent, peerID)
	return nil
}

func (f *fakeDispatcher) SendAnswer(peerID, sdp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answersSent = append(f.answersSent, peerID)
	return nil
}

func newTestController(t *testing.T) (*Controller, *fakeDispatcher, *peer.Registry, *webrtctest.FakeEngine, *memstore.Store) {
	t.Helper()
	store := memstore.NewStore()
	reg := peer.NewRegistry(store.TrustedPeers(), nil)
	mig := peer.NewMigrator(reg, store.TrustedPeers(), store.Messages(), nil, nil)
	engine := webrtctest.NewFakeEngine()
	crypto := securechannel.NewAdapter()
	require.NoError(t, crypto.Initialize())
	disp := newFakeDispatcher()

	ctrl := NewController(Config{
		Dispatcher: disp,
		Registry:   reg,
		Migrator:   mig,
		Engine:     engine,
		Crypto:     crypto,
		Trusted:    store.TrustedPeers(),
	})
	return ctrl, disp, reg, engine, store
}

func TestController_ConnectToPeerSendsPairRequestAndInsertsPlaceholder(t *testing.T) {
	ctrl, disp, reg, _, _ := newTestController(t)

	require.NoError(t, ctrl.ConnectToPeer("abc234", ""))

	assert.Len(t, disp.requestsSent, 1)
	p := reg.Get("ABC234")
	require.NotNil(t, p)
	assert.Equal(t, peer.Connecting, p.State)
}

func TestController_ConnectToPeerFailsWhenNotConnected(t *testing.T) {
	ctrl, disp, _, _, _ := newTestController(t)
	disp.setConnected(false)

	err := ctrl.ConnectToPeer("abc234", "")
	assert.Error(t, err)
}

func TestController_ConnectToPeerFailsOnInvalidCode(t *testing.T) {
	ctrl, _, _, _, _ := newTestController(t)
	err := ctrl.ConnectToPeer("bad", "")
	assert.Error(t, err)
}

func TestController_InitiatorCreatesAndSendsOfferOnPairMatched(t *testing.T) {
	ctrl, disp, reg, engine, _ := newTestController(t)
	ctx := context.Background()

	require.NoError(t, ctrl.ConnectToPeer("abc234", ""))
	ctrl.HandlePairMatched(ctx, "ABC234", []byte("remote-pubkey"), true)

	assert.Equal(t, []string{"ABC234"}, engine.OffersCreated)
	assert.Equal(t, []string{"ABC234"}, disp.offersSent)
	p := reg.Get("ABC234")
	require.NotNil(t, p)
	assert.Equal(t, []byte("remote-pubkey"), p.PublicKey)
}

func TestController_InitiatorDoesNotOfferWhenAlreadyDisconnected(t *testing.T) {
	ctrl, disp, reg, engine, _ := newTestController(t)
	ctx := context.Background()

	require.NoError(t, ctrl.ConnectToPeer("def456", ""))
	disp.setConnected(false)
	ctrl.HandlePairMatched(ctx, "DEF456", []byte("pk2"), true)

	assert.Nil(t, reg.Get("DEF456"))
	assert.Empty(t, engine.OffersCreated)
	assert.Empty(t, disp.offersSent)
}

func TestController_InitiatorRejectsWhenEngineFailsToCreateOffer(t *testing.T) {
	store := memstore.NewStore()
	reg := peer.NewRegistry(store.TrustedPeers(), nil)
	crypto := securechannel.NewAdapter()
	require.NoError(t, crypto.Initialize())
	disp := newFakeDispatcher()
	engine := webrtctest.NewFakeEngine()
	engine.FailOffer = true

	ctrl := NewController(Config{
		Dispatcher: disp,
		Registry:   reg,
		Engine:     engine,
		Crypto:     crypto,
		Trusted:    store.TrustedPeers(),
	})

	require.NoError(t, ctrl.ConnectToPeer("efg789", ""))
	ctrl.HandlePairMatched(context.Background(), "EFG789", []byte("pk"), true)

	assert.Nil(t, reg.Get("EFG789"))
	assert.Empty(t, disp.offersSent)
}

func TestController_ResponderInstallsPlaceholderAndAwaitsOfferOnPairMatched(t *testing.T) {
	ctrl, disp, reg, engine, _ := newTestController(t)
	ctx := context.Background()

	reg.ConnectTo("GHI789")
	ctrl.HandlePairMatched(ctx, "GHI789", []byte("remote-pk"), false)

	assert.Empty(t, engine.OffersCreated)
	assert.Empty(t, disp.offersSent)
	p := reg.Get("GHI789")
	require.NotNil(t, p)
	assert.Equal(t, []byte("remote-pk"), p.PublicKey)
}

func TestController_HandleOfferProducesAndSendsAnswer(t *testing.T) {
	ctrl, disp, _, engine, _ := newTestController(t)

	require.NoError(t, ctrl.HandleOffer("GHI789", "remote-sdp"))

	assert.Equal(t, []string{"GHI789"}, engine.OffersHandled)
	assert.Equal(t, []string{"GHI789"}, disp.answersSent)
}

func TestController_HandleOfferFailsWhenNotConnected(t *testing.T) {
	ctrl, disp, _, _, _ := newTestController(t)
	disp.setConnected(false)

	err := ctrl.HandleOffer("GHI789", "remote-sdp")
	assert.Error(t, err)
}

func TestController_PairIncomingBlockedIsSilentlyDropped(t *testing.T) {
	store := memstore.NewStore()
	reg := peer.NewRegistry(store.TrustedPeers(), nil)
	crypto := securechannel.NewAdapter()
	require.NoError(t, crypto.Initialize())
	disp := newFakeDispatcher()

	ctrl := NewController(Config{
		Dispatcher: disp,
		Registry:   reg,
		Engine:     webrtctest.NewFakeEngine(),
		Crypto:     crypto,
		Trusted:    store.TrustedPeers(),
		IsBlocked:  func(pk []byte) bool { return true },
	})

	ch, unsub := ctrl.IncomingPairRequests()
	defer unsub()

	ctrl.HandlePairIncoming(context.Background(), "JKL012", []byte("blocked-pk"), "eve")

	select {
	case <-ch:
		t.Fatal("blocked request should not surface an event")
	default:
	}
	assert.Empty(t, disp.accepts)
}

func TestController_PairIncomingTrustedPeerAutoAccepts(t *testing.T) {
	ctrl, disp, _, _, store := newTestController(t)
	ctx := context.Background()

	pubKey := []byte("trusted-pk")
	require.NoError(t, store.TrustedPeers().Put(ctx, &storage.TrustedPeer{Code: "MNO345", PublicKey: pubKey}))

	ctrl.HandlePairIncoming(ctx, "MNO345", pubKey, "")

	assert.Equal(t, []string{"MNO345"}, disp.accepts)
}

func TestController_PairIncomingUntrustedSurfacesUIEvent(t *testing.T) {
	ctrl, disp, _, _, _ := newTestController(t)
	ch, unsub := ctrl.IncomingPairRequests()
	defer unsub()

	ctrl.HandlePairIncoming(context.Background(), "PQR678", []byte("stranger-pk"), "frank")

	select {
	case req := <-ch:
		assert.Equal(t, "PQR678", req.FromCode)
		assert.Equal(t, "frank", req.ProposedName)
	default:
		t.Fatal("expected an IncomingPairRequest event")
	}
	assert.Empty(t, disp.accepts)
}

func TestController_RespondToPairRequestAcceptSendsAccept(t *testing.T) {
	ctrl, disp, reg, _, _ := newTestController(t)
	require.NoError(t, ctrl.RespondToPairRequest("STU901", true))
	assert.Equal(t, []string{"STU901"}, disp.accepts)
	assert.NotNil(t, reg.Get("STU901"))
}

func TestController_RespondToPairRequestRejectSendsReject(t *testing.T) {
	ctrl, disp, _, _, _ := newTestController(t)
	require.NoError(t, ctrl.RespondToPairRequest("VWX234", false))
	assert.Equal(t, []string{"VWX234"}, disp.rejects)
}

func TestController_HandlePairRejectedRemovesPeer(t *testing.T) {
	ctrl, _, reg, _, _ := newTestController(t)
	reg.ConnectTo("YZA567")
	ctrl.HandlePairRejected("YZA567")
	assert.Nil(t, reg.Get("YZA567"))
}

func TestController_HandlePairErrorPurgesConnectingPeers(t *testing.T) {
	ctrl, _, reg, _, _ := newTestController(t)
	reg.ConnectTo("BCD890")
	ctrl.HandlePairError()
	assert.Nil(t, reg.Get("BCD890"))
}
