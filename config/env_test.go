package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("ZAJEL_TEST_VAR", "hello")

	assert.Equal(t, "hello", SubstituteEnvVars("${ZAJEL_TEST_VAR}"))
	assert.Equal(t, "fallback", SubstituteEnvVars("${ZAJEL_UNSET_VAR:fallback}"))
	assert.Equal(t, "", SubstituteEnvVars("${ZAJEL_UNSET_VAR}"))
	assert.Equal(t, "plain", SubstituteEnvVars("plain"))
}

func TestSubstituteEnvVarsInConfig(t *testing.T) {
	t.Setenv("ZAJEL_HOST", "signal.example.org")

	cfg := &Config{Signaling: &SignalingConfig{ServerURL: "wss://${ZAJEL_HOST}/ws"}}
	SubstituteEnvVarsInConfig(cfg)

	assert.Equal(t, "wss://signal.example.org/ws", cfg.Signaling.ServerURL)
}

func TestGetEnvironment(t *testing.T) {
	t.Setenv("ZAJEL_ENV", "production")
	assert.Equal(t, "production", GetEnvironment())
	assert.True(t, IsProduction())
}
