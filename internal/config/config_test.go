package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "memory", cfg.Store.Provider)
	require.Equal(t, "memory", cfg.Blob.Provider)
	require.Equal(t, "noop", cfg.Publisher.Provider)
	require.Equal(t, 168, cfg.Cache.FreshnessWindowHours)
	require.Equal(t, time.Second, cfg.Search.CourtesyDelay())
	require.Equal(t, 7*24*time.Hour, cfg.Cache.FreshnessWindow())
}

func TestLoad_FileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
server:
  port: 9090
cache:
  freshness_window_hours: 24
search:
  courtesy_delay_ms: 250
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, 24*time.Hour, cfg.Cache.FreshnessWindow())
	require.Equal(t, 250*time.Millisecond, cfg.Search.CourtesyDelay())
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	cfg := base
	cfg.Store.Provider = "postgres"
	cfg.Store.DSN = ""
	require.Error(t, cfg.Validate())

	cfg = base
	cfg.Auth.Enabled = true
	cfg.Auth.APIKey = ""
	require.Error(t, cfg.Validate())

	cfg = base
	cfg.Blob.Provider = "gcs"
	require.Error(t, cfg.Validate())

	cfg = base
	cfg.Cache.FreshnessWindowHours = 0
	require.Error(t, cfg.Validate())
}
