package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()

	t.Setenv("INDIGO_REMOTE_URL", "https://proj.supabase.co")
	t.Setenv("INDIGO_ANON_KEY", "anon")
	t.Setenv("INDIGO_ACCESS_TOKEN", "token")
	t.Setenv("INDIGO_PASSPHRASE", "hunter2 hunter2")
	t.Setenv("INDIGO_DATA_DIR", t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.True(t, cfg.AutoSync)
	assert.Equal(t, 5*time.Minute, cfg.AutoSyncInterval)
	assert.Equal(t, time.Minute, cfg.SyncTimeout)
	assert.True(t, cfg.Realtime)
	assert.False(t, cfg.EnableMCP)
	assert.Equal(t, ":8090", cfg.MCPListenAddr)
	assert.NotEmpty(t, cfg.DeviceName, "device name falls back to hostname")
}

func TestLoad_MissingRequired(t *testing.T) {
	cases := []string{
		"INDIGO_REMOTE_URL",
		"INDIGO_ANON_KEY",
		"INDIGO_PASSPHRASE",
	}

	for _, missing := range cases {
		t.Run(missing, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(missing, "")

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), missing)
		})
	}
}

func TestLoad_RejectsNonHTTPRemote(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("INDIGO_REMOTE_URL", "ftp://example.com")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_MCPRequiresAPIKeys(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENABLE_MCP", "true")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MCP_API_KEYS")

	t.Setenv("MCP_API_KEYS", "key-1,key-2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"key-1", "key-2"}, cfg.ParseMCPAPIKeys())
}

func TestParseMCPAPIKeys_TrimsAndDropsEmpty(t *testing.T) {
	cfg := &Config{MCPAPIKeys: " key-1 , ,key-2,"}
	assert.Equal(t, []string{"key-1", "key-2"}, cfg.ParseMCPAPIKeys())
}

func TestLoad_CustomIntervals(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("AUTO_SYNC_INTERVAL", "30s")
	t.Setenv("SYNC_TIMEOUT", "10s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.AutoSyncInterval)
	assert.Equal(t, 10*time.Second, cfg.SyncTimeout)
}
