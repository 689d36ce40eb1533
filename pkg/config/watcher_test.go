package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeConfigFile(t *testing.T, path, queueSize string) {
	t.Helper()
	content := "app_name: campus-app\nreporter:\n  queue_size: " + queueSize + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "telemetry.yaml")
	writeConfigFile(t, path, "100")

	initial, err := Load(path)
	require.NoError(t, err)

	w, err := NewWatcher(path, initial, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	var mu sync.Mutex
	var reloaded *Config
	w.OnReload(func(cfg *Config) {
		mu.Lock()
		defer mu.Unlock()
		reloaded = cfg
	})

	writeConfigFile(t, path, "250")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reloaded != nil && reloaded.Reporter.QueueSize == 250
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, 250, w.Current().Reporter.QueueSize)
}

func TestWatcher_KeepsPreviousConfigOnInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "telemetry.yaml")
	writeConfigFile(t, path, "100")

	initial, err := Load(path)
	require.NoError(t, err)

	w, err := NewWatcher(path, initial, zap.NewNop())
	require.NoError(t, err)
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("app_name: [broken"), 0o644))

	// The reload fails; give the debounce time to fire, then confirm the
	// previous configuration is still active.
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, 100, w.Current().Reporter.QueueSize)
}

func TestWatcher_MissingFile(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), Default(), zap.NewNop())
	assert.Error(t, err)
}
