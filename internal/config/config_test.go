package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseJSONOverridesFields(t *testing.T) {
	path := writeTempConfig(t, `{"listen":"0.0.0.0:29900","key":"secret","mtu":1350,"proxy-protocol-v2":true,"waiter-cap":25}`)

	cfg := Config{Listen: ":1", MTU: 1}
	require.NoError(t, ParseJSON(&cfg, path))

	require.Equal(t, "0.0.0.0:29900", cfg.Listen)
	require.Equal(t, "secret", cfg.Key)
	require.Equal(t, 1350, cfg.MTU)
	require.True(t, cfg.ProxyProtocolV2)
	require.Equal(t, 25, cfg.WaiterCap)
}

func TestParseJSONMissingFileErrors(t *testing.T) {
	var cfg Config
	missing := filepath.Join(t.TempDir(), "missing.json")
	require.Error(t, ParseJSON(&cfg, missing))
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
