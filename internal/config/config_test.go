package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 16*time.Millisecond, cfg.UI.FrameInterval)
	require.Equal(t, 4*time.Second, cfg.UI.StatusTTL)
	require.Equal(t, filepath.Join(cfg.Storage.Dir, "parley.log"), cfg.LogFile())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Dir = ""
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.UI.FrameInterval = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.UI.StatusTTL = time.Millisecond
	require.Error(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server: example.org
storage:
  dir: ` + dir + `
logging:
  level: debug
ui:
  frame_interval: 32ms
  status_ttl: 2s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "example.org", cfg.Server)
	require.Equal(t, dir, cfg.Storage.Dir)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, 32*time.Millisecond, cfg.UI.FrameInterval)
	require.Equal(t, 2*time.Second, cfg.UI.StatusTTL)
	// Unset keys keep defaults.
	require.Equal(t, 20, cfg.UI.TimelineLimit)
}

func TestLoadFromMissingExplicitFileFails(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
