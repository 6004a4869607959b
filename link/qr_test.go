package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQRPayload_RoundTrips(t *testing.T) {
	pub := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32}
	payload := BuildQRPayload("ABCDEF", pub, "wss://host.example:8443/ws")

	code, gotPub, serverURL, err := ParseQRPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, "ABCDEF", code)
	assert.Equal(t, pub, gotPub)
	assert.Equal(t, "wss://host.example:8443/ws", serverURL)
}

func TestQRPayload_RoundTripsWithColonsAndQueryInURL(t *testing.T) {
	pub := []byte("short-key")
	payload := BuildQRPayload("GHJKLM", pub, "wss://relay.example:443/ws?region=eu&id=7")

	_, _, serverURL, err := ParseQRPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, "wss://relay.example:443/ws?region=eu&id=7", serverURL)
}

func TestParseQRPayload_RejectsMissingPrefix(t *testing.T) {
	_, _, _, err := ParseQRPayload("not-a-link-payload")
	assert.Error(t, err)
}

func TestParseQRPayload_RejectsMalformedBody(t *testing.T) {
	_, _, _, err := ParseQRPayload("zajel-link://onlycode")
	assert.Error(t, err)
}
