package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_CheckPassesAndFails(t *testing.T) {
	h := NewHealthChecker(time.Second)
	h.RegisterCheck("signaling", SignalingHealthCheck(func(ctx context.Context) error {
		return nil
	}))
	h.RegisterCheck("storage", DatabaseHealthCheck(func(ctx context.Context) error {
		return errors.New("connection refused")
	}))

	ctx := context.Background()

	ok, err := h.Check(ctx, "signaling")
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, ok.Status)

	bad, err := h.Check(ctx, "storage")
	require.NoError(t, err)
	assert.Equal(t, StatusUnhealthy, bad.Status)
}

func TestHealthChecker_GetOverallStatus(t *testing.T) {
	h := NewHealthChecker(time.Second)
	h.SetCacheTTL(0)
	h.RegisterCheck("signaling", SignalingHealthCheck(func(ctx context.Context) error { return nil }))

	assert.Equal(t, StatusHealthy, h.GetOverallStatus(context.Background()))

	h.RegisterCheck("rendezvous", RendezvousHealthCheck(func() error { return errors.New("timeout") }))
	assert.Equal(t, StatusUnhealthy, h.GetOverallStatus(context.Background()))
}

func TestHealthChecker_UnregisterCheck(t *testing.T) {
	h := NewHealthChecker(time.Second)
	h.RegisterCheck("signaling", SignalingHealthCheck(func(ctx context.Context) error { return nil }))
	h.UnregisterCheck("signaling")

	_, err := h.Check(context.Background(), "signaling")
	assert.Error(t, err)
}
