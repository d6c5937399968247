package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \":1\"\n"), 0o644))

	w, err := NewWatcher(path)
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	reloaded := make(chan *Config, 1)
	w.OnChange(func(cfg *Config) { reloaded <- cfg })

	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \":2\"\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, ":2", cfg.ListenAddr)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not reload in time")
	}
}
