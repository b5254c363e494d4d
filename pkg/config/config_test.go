package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 22, cfg.Remote.Port)
	require.Equal(t, 200, cfg.Oracle.MaxPerBatch)
	require.Equal(t, "data", cfg.Data.Dir)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sluice.yaml")
	yaml := `
remote:
  host: gpu.internal
  user: cracker
data:
  dir: /mnt/sluice
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "gpu.internal", cfg.Remote.Host)
	require.Equal(t, "cracker", cfg.Remote.User)
	require.Equal(t, "/mnt/sluice", cfg.Data.Dir)
	require.Equal(t, 22, cfg.Remote.Port, "unset fields keep their default")
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load("/nonexistent/sluice.yaml")
	require.NoError(t, err)
	require.Equal(t, New().Data.Dir, cfg.Data.Dir)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SLUICE_REMOTE_HOST", "override.internal")
	t.Setenv("SLUICE_LOG_JSON", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "override.internal", cfg.Remote.Host)
	require.True(t, cfg.Logging.JSON)
}
