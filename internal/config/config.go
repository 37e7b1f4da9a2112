package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go-media-downloader/internal/models"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

const (
	// AppName names the per-user data and cache directories.
	AppName = "media-downloader"

	DefaultConfigPath         = "config.toml"
	DefaultYtDlpPath          = "yt-dlp"
	DefaultProgressThrottleMs = 100
)

// LoadConfig reads the TOML file at configFilePath (defaulting to
// "config.toml") and fills every unset field with its default. A missing
// file is not an error: the defaults are returned and a warning logged.
func LoadConfig(configFilePath string) (models.Config, error) {
	if configFilePath == "" {
		configFilePath = DefaultConfigPath
	}
	var cfg models.Config
	_, err := toml.DecodeFile(configFilePath, &cfg)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Warnf("Config file %s not found, using defaults", configFilePath)
	case err != nil:
		return models.Config{}, fmt.Errorf("error loading config file %s: %w", configFilePath, err)
	default:
		log.Infof("Configuration loaded from %s", configFilePath)
	}

	ApplyDefaults(&cfg)
	return cfg, nil
}

// ApplyDefaults fills empty fields of cfg. Paths derived from DataDir are
// resolved after DataDir itself, so overriding DataDir moves them too.
func ApplyDefaults(cfg *models.Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = userDir(os.UserConfigDir, ".config")
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = filepath.Join(userDir(os.UserCacheDir, ".cache"), "downloads")
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, "jobs.db")
	}
	if cfg.SearchIndexPath == "" {
		cfg.SearchIndexPath = filepath.Join(cfg.DataDir, "entries.bleve")
	}
	if cfg.YtDlpPath == "" {
		cfg.YtDlpPath = DefaultYtDlpPath
	}
	if cfg.ProgressThrottleMs == 0 {
		cfg.ProgressThrottleMs = DefaultProgressThrottleMs
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
}

// userDir resolves the per-user base directory, falling back to
// ~/<fallback> and finally the working directory.
func userDir(base func() (string, error), fallback string) string {
	if dir, err := base(); err == nil && dir != "" {
		return filepath.Join(dir, AppName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, fallback, AppName)
	}
	log.Warn("Could not determine a per-user directory, using the working directory")
	return AppName
}
