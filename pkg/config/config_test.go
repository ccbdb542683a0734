package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/worldline-systems/wll/pkg/fabric"
)

func TestLoadAppliesDefaultsWithNoFileOrEnv(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ".wll", cfg.StoreDir)
	require.Equal(t, fabric.EveryWrite, cfg.SyncMode())
}

func TestLoadOverlaysYamlFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wll.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store_dir: /var/lib/wll\nwal_sync_mode: periodic\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/wll", cfg.StoreDir)
	require.Equal(t, fabric.Periodic, cfg.SyncMode())
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wll.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store_dir: /var/lib/wll\n"), 0o600))

	t.Setenv("WLL_STORE_DIR", "/env/override")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/env/override", cfg.StoreDir)
}

func TestLoadToleratesMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, defaults().StoreDir, cfg.StoreDir)
}
