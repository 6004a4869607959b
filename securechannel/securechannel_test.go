package securechannel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInitializedAdapter(t *testing.T) *Adapter {
	t.Helper()
	a := NewAdapter()
	require.NoError(t, a.Initialize())
	return a
}

func TestAdapter_EstablishSessionProducesSharedKey(t *testing.T) {
	alice := newInitializedAdapter(t)
	bob := newInitializedAdapter(t)

	require.NoError(t, alice.SetPeerPublicKey("bob", bob.PublicKeyBytes()))
	require.NoError(t, bob.SetPeerPublicKey("alice", alice.PublicKeyBytes()))

	require.NoError(t, alice.EstablishSession("bob"))
	require.NoError(t, bob.EstablishSession("alice"))

	aliceKey, err := alice.SessionKeyBytes("bob")
	require.NoError(t, err)
	bobKey, err := bob.SessionKeyBytes("alice")
	require.NoError(t, err)

	assert.Equal(t, aliceKey, bobKey)
}

func TestAdapter_EncryptForPeerRoundTrips(t *testing.T) {
	alice := newInitializedAdapter(t)
	bob := newInitializedAdapter(t)

	require.NoError(t, alice.SetPeerPublicKey("bob", bob.PublicKeyBytes()))
	require.NoError(t, bob.SetPeerPublicKey("alice", alice.PublicKeyBytes()))
	require.NoError(t, alice.EstablishSession("bob"))
	require.NoError(t, bob.EstablishSession("alice"))

	sealed, err := alice.EncryptForPeer("bob", []byte("hello bob"))
	require.NoError(t, err)

	plaintext, err := bob.DecryptFromPeer("alice", sealed)
	require.NoError(t, err)
	assert.Equal(t, "hello bob", string(plaintext))
}

func TestAdapter_DecryptRejectsTamperedCiphertext(t *testing.T) {
	alice := newInitializedAdapter(t)
	bob := newInitializedAdapter(t)
	require.NoError(t, alice.SetPeerPublicKey("bob", bob.PublicKeyBytes()))
	require.NoError(t, bob.SetPeerPublicKey("alice", alice.PublicKeyBytes()))
	require.NoError(t, alice.EstablishSession("bob"))
	require.NoError(t, bob.EstablishSession("alice"))

	sealed, err := alice.EncryptForPeer("bob", []byte("hello bob"))
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0xFF

	_, err = bob.DecryptFromPeer("alice", sealed)
	assert.Error(t, err)
}

func TestAdapter_SessionKeyBytesErrorsBeforeEstablish(t *testing.T) {
	alice := newInitializedAdapter(t)
	_, err := alice.SessionKeyBytes("unknown")
	assert.Error(t, err)
}

func TestAdapter_GenerateEphemeralKeyPairProducesDistinctKeys(t *testing.T) {
	a := NewAdapter()
	kp1, err := a.GenerateEphemeralKeyPair()
	require.NoError(t, err)
	kp2, err := a.GenerateEphemeralKeyPair()
	require.NoError(t, err)

	assert.NotEqual(t, kp1.PublicKey, kp2.PublicKey)
	assert.Len(t, kp1.PublicKey, 32)
}

func TestRotator_RotateUpdatesSessionAndHistory(t *testing.T) {
	alice := newInitializedAdapter(t)
	bob := newInitializedAdapter(t)
	bob2 := newInitializedAdapter(t) // bob's rotated identity

	require.NoError(t, alice.SetPeerPublicKey("bob", bob.PublicKeyBytes()))
	require.NoError(t, alice.EstablishSession("bob"))

	rotator := NewRotator(alice)
	event, err := rotator.Rotate("bob", bob2.PublicKeyBytes())
	require.NoError(t, err)

	assert.Equal(t, bob.PublicKeyBytes(), event.OldKey)
	assert.Equal(t, bob2.PublicKeyBytes(), event.NewKey)

	history := rotator.History("bob")
	require.Len(t, history, 1)

	newPub, err := alice.GetPeerPublicKey("bob")
	require.NoError(t, err)
	assert.Equal(t, bob2.PublicKeyBytes(), newPub)
}

func TestRotator_ConcurrentRotateForSamePeerRejectsSecond(t *testing.T) {
	alice := newInitializedAdapter(t)
	bob := newInitializedAdapter(t)
	require.NoError(t, alice.SetPeerPublicKey("bob", bob.PublicKeyBytes()))
	require.NoError(t, alice.EstablishSession("bob"))

	rotator := NewRotator(alice)
	rotator.mu.Lock()
	rotator.rotating["bob"] = true
	rotator.mu.Unlock()

	_, err := rotator.Rotate("bob", []byte("anything"))
	assert.Error(t, err)
}
