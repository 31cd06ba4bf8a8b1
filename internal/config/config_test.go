package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dappcoin/coinctl/internal/token"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Empty(t, cfg.RPCURL)
	assert.Equal(t, 3, cfg.PollSeconds)
	assert.Equal(t, dir, cfg.Dir())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)
	cfg.RPCURL = "http://localhost:8545"
	cfg.ChainID = 31337
	cfg.PollSeconds = 1
	require.NoError(t, cfg.Save())

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8545", loaded.RPCURL)
	assert.Equal(t, int64(31337), loaded.ChainID)
	assert.Equal(t, 1, loaded.PollSeconds)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFile), []byte("{nope"), 0o600))

	_, err := Load(dir)
	assert.ErrorContains(t, err, "parsing config")
}

func TestLoadClampsPollSeconds(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, configFile),
		[]byte(`{"rpc_url":"http://x","poll_seconds":-2}`), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.PollSeconds)
}

func TestBindingDefaultsAndOverride(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, token.DefaultBinding(), cfg.Binding())

	cfg = &Config{ContractAddress: "0x1111111111111111111111111111111111111111", ChainID: 31337}
	b := cfg.Binding()
	assert.Equal(t, "0x1111111111111111111111111111111111111111", b.Address)
	assert.Equal(t, int64(31337), b.ChainID)

	// A lone address override keeps the built-in chain id.
	cfg = &Config{ContractAddress: "0x1111111111111111111111111111111111111111"}
	assert.Equal(t, token.DeploymentChainID, cfg.Binding().ChainID)
}
