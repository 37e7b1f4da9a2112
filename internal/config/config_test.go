package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(t.TempDir(), "cfg"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(t.TempDir(), "cache"))

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, AppName, filepath.Base(cfg.DataDir))
	assert.Equal(t, "downloads", filepath.Base(cfg.DownloadDir))
	assert.Equal(t, filepath.Join(cfg.DataDir, "jobs.db"), cfg.DatabasePath)
	assert.Equal(t, filepath.Join(cfg.DataDir, "entries.bleve"), cfg.SearchIndexPath)
	assert.Equal(t, DefaultYtDlpPath, cfg.YtDlpPath)
	assert.Equal(t, DefaultProgressThrottleMs, cfg.ProgressThrottleMs)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
DataDir = "/srv/mdl"
DownloadDir = "/srv/mdl/videos"
FFmpegLocation = "/opt/ffmpeg/bin"
ProgressThrottleMs = 250
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/mdl", cfg.DataDir)
	assert.Equal(t, "/srv/mdl/videos", cfg.DownloadDir)
	assert.Equal(t, filepath.Join("/srv/mdl", "jobs.db"), cfg.DatabasePath)
	assert.Equal(t, "/opt/ffmpeg/bin", cfg.FFmpegLocation)
	assert.Equal(t, 250, cfg.ProgressThrottleMs)
}

func TestLoadConfigInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("DataDir = [unclosed"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
