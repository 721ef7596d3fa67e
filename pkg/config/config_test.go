package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, 500, cfg.FeedCapacity)
	assert.Equal(t, 7*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 4*time.Second, cfg.PublishTimeout)
	assert.Equal(t, 10*time.Second, cfg.FetchTimeout)
	assert.Equal(t, time.Second, cfg.BackoffMin)
	assert.Equal(t, 2*time.Minute, cfg.BackoffMax)
	assert.Equal(t, []string{DefaultRelay}, cfg.DefaultRelays)
	assert.True(t, cfg.Cache)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"feed_capacity":50,"fetch_timeout":"3s","cache":false,
"default_relays":["wss://nos.lol","wss://relay.damus.io"]}`), 0600))
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.FeedCapacity)
	assert.Equal(t, 3*time.Second, cfg.FetchTimeout)
	assert.False(t, cfg.Cache)
	assert.Equal(t, []string{"wss://nos.lol", "wss://relay.damus.io"},
		cfg.DefaultRelays)
	// untouched settings keep their defaults
	assert.Equal(t, 7*time.Second, cfg.ConnectTimeout)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"publish_timeout":"9s"}`), 0600))
	t.Setenv("FEEDR_PUBLISH_TIMEOUT", "2s")
	t.Setenv("FEEDR_FEED_CAPACITY", "42")
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.PublishTimeout)
	assert.Equal(t, 42, cfg.FeedCapacity)
}

func TestDataDirFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("FEEDR_DATA_DIR", dir)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
}

func TestBadConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"feed_capacity":`), 0600))
	_, err := Load(dir)
	assert.Error(t, err)
}
