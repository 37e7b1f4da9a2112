package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-media-downloader/internal/config"
	"go-media-downloader/internal/models"
)

// cfgFile holds the path to the config file specified by the user
var cfgFile string

// Logging flags, applied by initLogging
var logLevel string
var logFormat string // "text" or "json"

// globalConfig holds the loaded configuration after flag and env overrides
var globalConfig models.Config

const envPrefix = "MEDIADL"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "media-downloader",
	Short: "Download videos and playlists and keep a searchable history",
	Long: `media-downloader resolves video and playlist URLs from supported platforms,
downloads them with yt-dlp, and records every finished download in a local,
deduplicated history store.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadGlobalConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultConfigPath, "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Logging format (text, json)")
	rootCmd.PersistentFlags().String("data-dir", "", "History store directory (overrides config)")
	rootCmd.PersistentFlags().String("download-dir", "", "Default download directory (overrides config)")
	rootCmd.PersistentFlags().String("yt-dlp", "", "Path to the yt-dlp binary (overrides config)")
	rootCmd.PersistentFlags().String("ffmpeg-location", "", "ffmpeg binary or directory passed to yt-dlp (overrides config)")
	rootCmd.PersistentFlags().Int("progress-throttle", 0, "Minimum milliseconds between progress updates (overrides config)")

	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("download_dir", rootCmd.PersistentFlags().Lookup("download-dir"))
	viper.BindPFlag("yt_dlp", rootCmd.PersistentFlags().Lookup("yt-dlp"))
	viper.BindPFlag("ffmpeg_location", rootCmd.PersistentFlags().Lookup("ffmpeg-location"))
	viper.BindPFlag("progress_throttle", rootCmd.PersistentFlags().Lookup("progress-throttle"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadGlobalConfig loads .env, the TOML config file, and then applies
// environment (MEDIADL_*) and flag overrides on top.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Warn("Failed to load .env file")
	}

	var err error
	globalConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	if viper.IsSet("log_level") {
		globalConfig.LogLevel = viper.GetString("log_level")
	}
	if viper.IsSet("log_format") {
		globalConfig.LogFormat = viper.GetString("log_format")
	}
	initLogging(globalConfig.LogLevel, globalConfig.LogFormat)

	// Paths derived from DataDir follow it unless set explicitly.
	if v := viper.GetString("data_dir"); v != "" && v != globalConfig.DataDir {
		log.Debugf("Overriding DataDir: %s", v)
		if globalConfig.DatabasePath == filepath.Join(globalConfig.DataDir, "jobs.db") {
			globalConfig.DatabasePath = ""
		}
		if globalConfig.SearchIndexPath == filepath.Join(globalConfig.DataDir, "entries.bleve") {
			globalConfig.SearchIndexPath = ""
		}
		globalConfig.DataDir = v
	}
	if v := viper.GetString("download_dir"); v != "" {
		log.Debugf("Overriding DownloadDir: %s", v)
		globalConfig.DownloadDir = v
	}
	if v := viper.GetString("yt_dlp"); v != "" {
		globalConfig.YtDlpPath = v
	}
	if v := viper.GetString("ffmpeg_location"); v != "" {
		globalConfig.FFmpegLocation = v
	}
	if viper.IsSet("progress_throttle") {
		if v := viper.GetInt("progress_throttle"); v != 0 {
			globalConfig.ProgressThrottleMs = v
		}
	}
	config.ApplyDefaults(&globalConfig)

	log.WithFields(log.Fields{
		"dataDir":     globalConfig.DataDir,
		"downloadDir": globalConfig.DownloadDir,
		"ytDlp":       globalConfig.YtDlpPath,
	}).Debug("Configuration resolved")
	return nil
}

// initLogging configures logrus from the resolved level and format
func initLogging(levelName, format string) {
	level, err := log.ParseLevel(levelName)
	if err != nil {
		log.WithError(err).Warnf("Invalid log level '%s', using default 'info'", levelName)
		level = log.InfoLevel
	}
	log.SetLevel(level)

	switch format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		log.Warnf("Invalid log format '%s', using default 'text'", format)
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	log.Debugf("Logging configured: Level=%s, Format=%s", log.GetLevel(), format)
}
