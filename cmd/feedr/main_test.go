package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Hubmakerlabs/feedr/pkg/config"
	"github.com/Hubmakerlabs/feedr/pkg/context"
	"github.com/Hubmakerlabs/feedr/pkg/keystore"
	"github.com/Hubmakerlabs/feedr/pkg/relaylist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func run(t *testing.T, args ...string) error {
	t.Helper()
	return newApp().RunContext(context.Bg(), append([]string{appName}, args...))
}

func TestVersionLeavesDataDirAlone(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, run(t, "-d", dir, "version"))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSessionOpensOnce(t *testing.T) {
	a := &cli.App{Metadata: map[string]any{}}
	cCtx := cli.NewContext(a, nil, nil)
	_, err := session(cCtx)
	assert.ErrorIs(t, err, errNoConfig)

	a.Metadata["config"] = &config.Config{DataDir: t.TempDir(),
		FeedCapacity: 10}
	cl, err := session(cCtx)
	require.NoError(t, err)
	defer cl.Close()
	again, err := session(cCtx)
	require.NoError(t, err)
	assert.Same(t, cl, again)
}

func TestRelayAddPersists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, run(t, "-d", dir, "relay", "add",
		"wss://relay.example.com"))
	list, err := relaylist.Load(dir)
	require.NoError(t, err)
	assert.True(t, list.Contains("wss://relay.example.com"))
}

func TestDeleteKeys(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, run(t, "-d", dir, "generate-keys", "-p", "p1"))
	path := filepath.Join(dir, keystore.FileName)
	require.FileExists(t, path)

	err := run(t, "-d", dir, "delete-keys", "-y", "-p", "wrong")
	assert.ErrorIs(t, err, keystore.ErrAuthentication)
	require.FileExists(t, path)

	require.NoError(t, run(t, "-d", dir, "delete-keys", "-y", "-p", "p1"))
	assert.NoFileExists(t, path)
}
