package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollector_RecordPairingOutcome(t *testing.T) {
	c := NewCollector()

	c.RecordPairingOutcome("initiator", "matched")
	c.RecordPairingOutcome("responder", "rejected")
	c.RecordPairingOutcome("initiator", "timeout")

	snap := c.GetSnapshot()
	assert.EqualValues(t, 3, snap.PairingAttempts)
	assert.EqualValues(t, 1, snap.PairingMatched)
	assert.EqualValues(t, 1, snap.PairingRejected)
	assert.EqualValues(t, 1, snap.PairingTimedOut)
	assert.InDelta(t, 33.33, snap.PairingSuccessRate(), 0.1)
}

func TestCollector_RecordRendezvousResult(t *testing.T) {
	c := NewCollector()

	c.RecordRendezvousResult("match")
	c.RecordRendezvousResult("partial")
	c.RecordRendezvousResult("partial")

	snap := c.GetSnapshot()
	assert.EqualValues(t, 3, snap.RendezvousRoundTrips)
	assert.EqualValues(t, 2, snap.RendezvousPartials)
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollector()
	c.RecordPeerMigration()
	c.Reset()

	assert.EqualValues(t, 0, c.GetSnapshot().PeerMigrations)
}
