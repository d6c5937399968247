package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":8420", cfg.ListenAddr)
	assert.Equal(t, StoreModeStandalone, cfg.Store.Mode)
	assert.False(t, cfg.IsManaged())
}

func TestLoadPartialFileFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \":9000\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, "python3", cfg.PythonCommand)
	assert.Equal(t, 5*time.Minute, cfg.CacheRetention)
}

func TestLoadManagedStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskd.yaml")
	body := "store:\n  mode: managed\n  postgres_dsn: \"postgres://x\"\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.IsManaged())
}

func TestSaveRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskd.yaml")

	cfg := Default()
	cfg.ListenAddr = ":1234"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":1234", loaded.ListenAddr)
}

func TestLoadMissingPathErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
