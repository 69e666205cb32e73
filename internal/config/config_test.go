package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, "57 17 * * *", cfg.Sync.Schedule)
	require.Equal(t, 61*time.Second, cfg.Sync.MinInterval)
	require.True(t, cfg.Sync.CloseOnGoal)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9000\"\nprovider:\n  url: https://file.example.com\n"), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PROVIDER_URL", "https://env.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.Server.Addr)
	require.Equal(t, "https://env.example.com", cfg.Provider.URL)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", "/does/not/exist.yaml")
	_, err := Load()
	require.Error(t, err)
}
