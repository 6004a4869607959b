package peer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hamza-Labs-Core/zajel-sub007/storage"
	"github.com/Hamza-Labs-Core/zajel-sub007/storage/memstore"
)

func newTestRegistry(t *testing.T) (*Registry, *memstore.Store) {
	t.Helper()
	store := memstore.NewStore()
	return NewRegistry(store.TrustedPeers(), nil), store
}

func TestRegistry_SeedPopulatesDisconnectedFromTrustedStorage(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, store.TrustedPeers().Put(ctx, &storage.TrustedPeer{Code: "AAAAAA", Alias: "alice"}))
	require.NoError(t, store.TrustedPeers().Put(ctx, &storage.TrustedPeer{Code: "BBBBBB", Blocked: true}))

	require.NoError(t, reg.Seed(ctx))

	p := reg.Get("AAAAAA")
	require.NotNil(t, p)
	assert.Equal(t, Disconnected, p.State)

	assert.Nil(t, reg.Get("BBBBBB"))
}

func TestRegistry_ConnectToInsertsPlaceholder(t *testing.T) {
	reg, _ := newTestRegistry(t)

	p := reg.ConnectTo("CCCCCC")
	assert.Equal(t, Connecting, p.State)
	assert.Equal(t, "Peer CCCCCC", p.DisplayName)
}

func TestRegistry_FullLifecycleTransitions(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	reg.ConnectTo("DDDDDD")
	reg.ApplyPairMatched("DDDDDD", []byte("pubkey"))
	p := reg.Get("DDDDDD")
	require.NotNil(t, p)
	assert.Equal(t, []byte("pubkey"), p.PublicKey)
	assert.Equal(t, Connecting, p.State)

	reg.ApplyWebRTCOpen("DDDDDD")
	assert.Equal(t, Handshaking, reg.Get("DDDDDD").State)

	require.NoError(t, reg.ApplyHandshakeDone(ctx, "DDDDDD"))
	assert.Equal(t, Connected, reg.Get("DDDDDD").State)
}

func TestRegistry_PairRejectedRemovesPeer(t *testing.T) {
	reg, _ := newTestRegistry(t)
	reg.ConnectTo("EEEEEE")
	reg.ApplyPairRejected("EEEEEE")
	assert.Nil(t, reg.Get("EEEEEE"))
}

func TestRegistry_PairErrorPurgesOnlyConnectingPeers(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	reg.ConnectTo("FFFFFF")
	reg.ConnectTo("GGGGGG")
	reg.ApplyWebRTCOpen("GGGGGG")
	require.NoError(t, reg.ApplyHandshakeDone(ctx, "GGGGGG"))

	reg.ApplyPairError()

	assert.Nil(t, reg.Get("FFFFFF"))
	assert.NotNil(t, reg.Get("GGGGGG"))
}

func TestRegistry_PeerLeftSetsDisconnected(t *testing.T) {
	reg, _ := newTestRegistry(t)
	reg.ConnectTo("HHHHHH")
	reg.ApplyPeerLeft("HHHHHH")
	assert.Equal(t, Disconnected, reg.Get("HHHHHH").State)
}

func TestRegistry_SubscribeReceivesSnapshotOnMutation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ch, unsub := reg.Subscribe()
	defer unsub()

	reg.ConnectTo("IIIIII")

	select {
	case snapshot := <-ch:
		require.Len(t, snapshot, 1)
		assert.Equal(t, "IIIIII", snapshot[0].Code)
	case <-time.After(time.Second):
		t.Fatal("did not receive snapshot")
	}
}

func TestRegistry_HandshakeDonePersistsAsTrustedWhenKeyKnown(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()

	reg.ConnectTo("JJJJJJ")
	reg.ApplyPairMatched("JJJJJJ", []byte("pubkey-j"))
	reg.ApplyWebRTCOpen("JJJJJJ")
	require.NoError(t, reg.ApplyHandshakeDone(ctx, "JJJJJJ"))

	stored, err := store.TrustedPeers().Get(ctx, "JJJJJJ")
	require.NoError(t, err)
	assert.Equal(t, []byte("pubkey-j"), stored.PublicKey)
}
