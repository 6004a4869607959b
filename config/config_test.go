package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile_DefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
signaling:
  server_url: wss://signal.example.org
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "wss://signal.example.org", cfg.Signaling.ServerURL)
	assert.Equal(t, 30*time.Second, cfg.Signaling.HeartbeatInterval)
	assert.Equal(t, 5*time.Second, cfg.Rendezvous.ResendDelay)
	assert.Equal(t, 5*time.Minute, cfg.Link.SessionTTL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestSaveAndLoadFromFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := &Config{}
	setDefaults(cfg)
	cfg.Signaling.ServerURL = "wss://example.org/ws"
	cfg.Testing.IsE2ETest = true

	require.NoError(t, SaveToFile(cfg, path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Signaling.ServerURL, loaded.Signaling.ServerURL)
	assert.True(t, loaded.Testing.IsE2ETest)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
