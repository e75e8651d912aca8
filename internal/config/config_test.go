package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	c, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), c)
	assert.Same(t, c, Get())
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	c, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Equal(t, 8080, c.Port)
	assert.Equal(t, "pubreg.db", c.DBFile)
}

func TestLoadConfigMergesDefaults(t *testing.T) {
	path := writeConfig(t, `{"port": 9090, "db_file": "/var/lib/pubreg/state.db"}`)

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Port)
	assert.Equal(t, "/var/lib/pubreg/state.db", c.DBFile)
	assert.Equal(t, "pubreg_key.pem", c.KeyFile)
	assert.Equal(t, "unix://pubreg.sock", c.ABCIAddress)
	assert.Equal(t, 20, c.MaxBackups)
	assert.False(t, c.TrustProxy)
}

func TestLoadConfigBadJSONUsesDefaults(t *testing.T) {
	c, err := LoadConfig(writeConfig(t, `{"port": `))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), c)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `{"port": 9090}`)
	t.Setenv("PUBREG_PORT", "7000")
	t.Setenv("PUBREG_RPC_ADDRESS", "http://tm:26657")
	t.Setenv("PUBREG_RUN_TENDERMINT", "true")
	t.Setenv("PUBREG_RATE_LIMIT", "2.5")
	t.Setenv("PUBREG_TRUST_PROXY", "true")

	c, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, c.Port)
	assert.Equal(t, "http://tm:26657", c.RPCAddress)
	assert.True(t, c.RunTendermint)
	assert.Equal(t, 2.5, c.RateLimit)
	assert.True(t, c.TrustProxy)
}

func TestMalformedEnvironmentOverride(t *testing.T) {
	t.Setenv("PUBREG_PORT", "eighty")
	_, err := LoadConfig("")
	assert.Error(t, err)
}
