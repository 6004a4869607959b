package rendezvous

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hamza-Labs-Core/zajel-sub007/signaling"
	"github.com/Hamza-Labs-Core/zajel-sub007/storage"
	"github.com/Hamza-Labs-Core/zajel-sub007/storage/memstore"
)

type fakeDispatcher struct {
	mu         sync.Mutex
	connected  bool
	dialedURL  string
	registered [][2][]string // [daily, hourly] per call
	events     chan signaling.Event
	closed     bool
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{events: make(chan signaling.Event, 16)}
}

func (f *fakeDispatcher) Connect(ctx context.Context, url, peerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	f.dialedURL = url
	return nil
}

func (f *fakeDispatcher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeDispatcher) SendRegisterRendezvous(daily, hourly []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, [2][]string{daily, hourly})
	return nil
}

func (f *fakeDispatcher) Events() <-chan signaling.Event { return f.events }

func (f *fakeDispatcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.events)
	}
	return nil
}

func (f *fakeDispatcher) registeredCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.registered)
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeDispatcher, *memstore.Store) {
	t.Helper()
	store := memstore.NewStore()
	primary := newFakeDispatcher()
	primary.connected = true

	c := NewCoordinator(Config{
		Primary:      primary,
		OwnCode:      "AAAAAA",
		OwnPublicKey: []byte("own-pubkey"),
		Peers:        store.TrustedPeers(),
	})
	return c, primary, store
}

func TestCoordinator_ReconnectAllTrustedRegistersDailyTokensDuplicatedIntoHourly(t *testing.T) {
	c, primary, store := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, store.TrustedPeers().Put(ctx, &storage.TrustedPeer{
		Code: "BBBBBB", PublicKey: []byte("peer-pubkey"),
	}))

	require.NoError(t, c.ReconnectAllTrusted(ctx))

	require.Equal(t, 1, primary.registeredCalls())
	daily, hourly := primary.registered[0][0], primary.registered[0][1]
	assert.NotEmpty(t, daily)
	assert.Equal(t, daily, hourly)
}

func TestCoordinator_ReconnectAllTrustedSkipsBlockedPeers(t *testing.T) {
	c, primary, store := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, store.TrustedPeers().Put(ctx, &storage.TrustedPeer{
		Code: "CCCCCC", PublicKey: []byte("blocked-key"), Blocked: true,
	}))

	require.NoError(t, c.ReconnectAllTrusted(ctx))

	daily := primary.registered[0][0]
	assert.Empty(t, daily)
}

func TestCoordinator_ResendsUnchangedAfterDelay(t *testing.T) {
	c, primary, store := newTestCoordinator(t)
	ctx := context.Background()
	require.NoError(t, store.TrustedPeers().Put(ctx, &storage.TrustedPeer{
		Code: "DDDDDD", PublicKey: []byte("peer-pubkey-2"),
	}))

	require.NoError(t, c.ReconnectAllTrusted(ctx))
	require.Equal(t, 1, primary.registeredCalls())

	assert.Eventually(t, func() bool {
		return primary.registeredCalls() == 2
	}, resendDelay+2*time.Second, 10*time.Millisecond)

	assert.Equal(t, primary.registered[0], primary.registered[1])
}

func TestCoordinator_OnLiveMatchInitiatesWhenOwnCodeIsSmaller(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	driven := make(chan string, 1)
	c.pairing = pairingFunc(func(code, name string) error {
		driven <- code
		return nil
	})

	c.onLiveMatch(context.Background(), "ZZZZZZ")

	select {
	case code := <-driven:
		assert.Equal(t, "ZZZZZZ", code)
	case <-time.After(time.Second):
		t.Fatal("expected pairing to be driven")
	}
}

func TestCoordinator_OnLiveMatchWaitsWhenOwnCodeIsLarger(t *testing.T) {
	store := memstore.NewStore()
	primary := newFakeDispatcher()
	primary.connected = true
	c := NewCoordinator(Config{
		Primary:      primary,
		OwnCode:      "ZZZZZZ",
		OwnPublicKey: []byte("own-pubkey"),
		Peers:        store.TrustedPeers(),
	})
	driven := make(chan string, 1)
	c.pairing = pairingFunc(func(code, name string) error {
		driven <- code
		return nil
	})

	c.onLiveMatch(context.Background(), "AAAAAA")

	select {
	case <-driven:
		t.Fatal("should not initiate when own code is lexicographically larger")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCoordinator_OnLiveMatchIgnoresAlreadyConnectingPeer(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	c.peerState = func(code string) (string, bool) { return "Connecting", true }
	driven := make(chan string, 1)
	c.pairing = pairingFunc(func(code, name string) error {
		driven <- code
		return nil
	})

	c.onLiveMatch(context.Background(), "ZZZZZZ")

	select {
	case <-driven:
		t.Fatal("should ignore a peer already Connecting")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCoordinator_HandleResultGroupsRedirectsByEndpointAndOpensOne(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	aux := newFakeDispatcher()
	aux.connected = true
	c.dial = func() Dispatcher { return aux }

	ev := signaling.RendezvousResultEvent{
		Redirects: []signaling.RendezvousRedirect{
			{Token: "day_tok1", RedirectURL: "wss://federated.example/ws"},
			{Token: "day_tok2", RedirectURL: "wss://federated.example/ws"},
		},
	}
	c.HandleResult(context.Background(), ev)

	require.Equal(t, 1, aux.registeredCalls())
	assert.ElementsMatch(t, []string{"day_tok1", "day_tok2"}, aux.registered[0][0])
	assert.Equal(t, "wss://federated.example/ws", aux.dialedURL)
}

func TestCoordinator_ShutdownTearsDownAuxClients(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	aux := newFakeDispatcher()
	aux.connected = true
	c.dial = func() Dispatcher { return aux }

	ev := signaling.RendezvousResultEvent{
		Redirects: []signaling.RendezvousRedirect{{Token: "day_tok1", RedirectURL: "wss://federated.example/ws"}},
	}
	c.HandleResult(context.Background(), ev)

	require.NoError(t, c.Shutdown())

	aux.mu.Lock()
	defer aux.mu.Unlock()
	assert.True(t, aux.closed)
}

type pairingFunc func(code, proposedName string) error

func (f pairingFunc) ConnectToPeer(code, proposedName string) error { return f(code, proposedName) }
