package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Hamza-Labs-Core/zajel-sub007/storage"
)

func TestTrustedPeerStore_PutGetFindDelete(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	peer := &storage.TrustedPeer{Code: "ABCDEF", PublicKey: []byte("pubkey-1"), Alias: "alice", TrustedAt: time.Now()}
	require.NoError(t, s.TrustedPeers().Put(ctx, peer))

	got, err := s.TrustedPeers().Get(ctx, "ABCDEF")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Alias)

	found, err := s.TrustedPeers().FindByPublicKey(ctx, []byte("pubkey-1"))
	require.NoError(t, err)
	assert.Equal(t, "ABCDEF", found.Code)

	require.NoError(t, s.TrustedPeers().Delete(ctx, "ABCDEF"))
	_, err = s.TrustedPeers().Get(ctx, "ABCDEF")
	assert.Error(t, err)
}

func TestMessageStore_RekeyCarriesHistory(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	require.NoError(t, s.Messages().Append(ctx, &storage.Message{ID: "1", PeerCode: "OLD123", Body: []byte("hi")}))
	require.NoError(t, s.Messages().Append(ctx, &storage.Message{ID: "2", PeerCode: "OLD123", Body: []byte("there")}))

	n, err := s.Messages().Rekey(ctx, "OLD123", "NEW456")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	old, err := s.Messages().ListForPeer(ctx, "OLD123")
	require.NoError(t, err)
	assert.Empty(t, old)

	moved, err := s.Messages().ListForPeer(ctx, "NEW456")
	require.NoError(t, err)
	assert.Len(t, moved, 2)
	assert.Equal(t, "NEW456", moved[0].PeerCode)
}

func TestLinkedDeviceStore_PutGetDelete(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	dev := &storage.LinkedDevice{WebClientID: "web-1", DeviceName: "Chrome on laptop", LinkedAt: time.Now()}
	require.NoError(t, s.LinkedDevices().Put(ctx, dev))

	got, err := s.LinkedDevices().Get(ctx, "web-1")
	require.NoError(t, err)
	assert.Equal(t, "Chrome on laptop", got.DeviceName)

	all, err := s.LinkedDevices().List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.LinkedDevices().Delete(ctx, "web-1"))
	_, err = s.LinkedDevices().Get(ctx, "web-1")
	assert.Error(t, err)
}
