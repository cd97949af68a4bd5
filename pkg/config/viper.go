package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/recall/pkg/dotdir"
)

// EnvPrefix is the prefix of environment overrides, e.g. RECALL_API_LISTEN.
const EnvPrefix = "RECALL"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the RECALL_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (RECALL_API_LISTEN, RECALL_STORAGE_DRIVER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: RECALL_API_LISTEN, RECALL_CAPTURE_INTERVAL, etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.driver", d.Storage.Driver)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Capture
	v.SetDefault("capture.screenshots_dir", d.Capture.ScreenshotsDir)
	v.SetDefault("capture.interval", d.Capture.Interval.Duration)
	v.SetDefault("capture.idle_interval", d.Capture.IdleInterval.Duration)
	v.SetDefault("capture.error_backoff", d.Capture.ErrorBackoff.Duration)
	v.SetDefault("capture.similarity_threshold", d.Capture.SimilarityThreshold)
	v.SetDefault("capture.primary_monitor_only", d.Capture.PrimaryMonitorOnly)
	v.SetDefault("capture.max_text_chars", d.Capture.MaxTextChars)

	// OCR
	v.SetDefault("ocr.provider", d.OCR.Provider)
	v.SetDefault("ocr.command", d.OCR.Command)
	v.SetDefault("ocr.language", d.OCR.Language)

	// Vision
	v.SetDefault("vision.enabled", d.Vision.Enabled)
	v.SetDefault("vision.target", d.Vision.Target)
	v.SetDefault("vision.model", d.Vision.Model)
	v.SetDefault("vision.timeout", d.Vision.Timeout.Duration)

	// Interpret
	v.SetDefault("interpret.provider", d.Interpret.Provider)
	v.SetDefault("interpret.target", d.Interpret.Target)
	v.SetDefault("interpret.model", d.Interpret.Model)
	v.SetDefault("interpret.timeout", d.Interpret.Timeout.Duration)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)

	// Reprocess
	v.SetDefault("reprocess.workers", d.Reprocess.Workers)
	v.SetDefault("reprocess.batch_size", d.Reprocess.BatchSize)
	v.SetDefault("reprocess.checkpoint_every", d.Reprocess.CheckpointEvery)
	v.SetDefault("reprocess.max_text_chars", d.Reprocess.MaxTextChars)
	v.SetDefault("reprocess.cache_path", d.Reprocess.CachePath)

	// API and client
	v.SetDefault("api.listen", d.API.Listen)
	v.SetDefault("api.page_size", d.API.PageSize)
	v.SetDefault("client.api_target", d.Client.APITarget)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)
}
