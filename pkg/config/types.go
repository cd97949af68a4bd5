package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent recall configuration stored as config.toml
// in the .recall/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version   int             `toml:"version"`
	Storage   StorageConfig   `toml:"storage"`
	Capture   CaptureConfig   `toml:"capture"`
	OCR       OCRConfig       `toml:"ocr"`
	Vision    VisionConfig    `toml:"vision"`
	Interpret InterpretConfig `toml:"interpret"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Reprocess ReprocessConfig `toml:"reprocess"`
	API       APIConfig       `toml:"api"`
	Client    ClientConfig    `toml:"client"`
	Events    EventsConfig    `toml:"events"`
}

// StorageConfig selects the entry store.
type StorageConfig struct {
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// CaptureConfig holds the live capture loop settings.
type CaptureConfig struct {
	ScreenshotsDir      string   `toml:"screenshots_dir,omitempty"`
	Interval            Duration `toml:"interval,omitempty"`
	IdleInterval        Duration `toml:"idle_interval,omitempty"`
	ErrorBackoff        Duration `toml:"error_backoff,omitempty"`
	SimilarityThreshold float64  `toml:"similarity_threshold,omitempty"`
	PrimaryMonitorOnly  bool     `toml:"primary_monitor_only,omitempty"`
	MaxTextChars        int      `toml:"max_text_chars,omitempty"`
}

// OCRConfig selects the text recognizer.
type OCRConfig struct {
	Provider string `toml:"provider,omitempty"`
	Command  string `toml:"command,omitempty"`
	Language string `toml:"language,omitempty"`
}

// VisionConfig holds the vision model settings.
type VisionConfig struct {
	Enabled bool     `toml:"enabled"`
	Target  string   `toml:"target,omitempty"`
	Model   string   `toml:"model,omitempty"`
	Timeout Duration `toml:"timeout,omitempty"`
}

// InterpretConfig holds the text LLM used while reprocessing.
type InterpretConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Target   string   `toml:"target,omitempty"`
	Model    string   `toml:"model,omitempty"`
	Timeout  Duration `toml:"timeout,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`
}

// ReprocessConfig holds the defaults of a reprocessing run.
type ReprocessConfig struct {
	Workers         int    `toml:"workers,omitempty"`
	BatchSize       int    `toml:"batch_size,omitempty"`
	CheckpointEvery int    `toml:"checkpoint_every,omitempty"`
	MaxTextChars    int    `toml:"max_text_chars,omitempty"`
	CachePath       string `toml:"cache_path,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen   string `toml:"listen,omitempty"`
	PageSize int    `toml:"page_size,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to the running
// API server (e.g. recall search, recall recording). Values are full URLs.
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// EventsConfig selects where entry events are published.
type EventsConfig struct {
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// Duration is a time.Duration that reads and writes as "3s" in TOML.
type Duration struct {
	time.Duration
}

// NewDuration wraps d.
func NewDuration(d time.Duration) Duration {
	return Duration{Duration: d}
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid value for %s: %q", name, v)
			}
			*field(c) = n
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func durationKey(name string, field func(c *Config) *Duration) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if field(c).Duration == 0 {
				return ""
			}
			return field(c).String()
		},
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return fmt.Errorf("invalid value for %s: %q", name, v)
			}
			field(c).Duration = d
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver":       stringKey(func(c *Config) *string { return &c.Storage.Driver }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"capture.screenshots_dir": stringKey(func(c *Config) *string { return &c.Capture.ScreenshotsDir }),
	"capture.interval":        durationKey("capture.interval", func(c *Config) *Duration { return &c.Capture.Interval }),
	"capture.idle_interval":   durationKey("capture.idle_interval", func(c *Config) *Duration { return &c.Capture.IdleInterval }),
	"capture.error_backoff":   durationKey("capture.error_backoff", func(c *Config) *Duration { return &c.Capture.ErrorBackoff }),
	"capture.similarity_threshold": {
		get: func(c *Config) string {
			if c.Capture.SimilarityThreshold == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Capture.SimilarityThreshold, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil || f <= 0 || f > 1 {
				return fmt.Errorf("invalid value for capture.similarity_threshold: %q (want 0 < t <= 1)", v)
			}
			c.Capture.SimilarityThreshold = f
			return nil
		},
	},
	"capture.primary_monitor_only": boolKey("capture.primary_monitor_only", func(c *Config) *bool { return &c.Capture.PrimaryMonitorOnly }),
	"capture.max_text_chars":       intKey("capture.max_text_chars", func(c *Config) *int { return &c.Capture.MaxTextChars }),

	"ocr.provider": stringKey(func(c *Config) *string { return &c.OCR.Provider }),
	"ocr.command":  stringKey(func(c *Config) *string { return &c.OCR.Command }),
	"ocr.language": stringKey(func(c *Config) *string { return &c.OCR.Language }),

	"vision.enabled": boolKey("vision.enabled", func(c *Config) *bool { return &c.Vision.Enabled }),
	"vision.target":  stringKey(func(c *Config) *string { return &c.Vision.Target }),
	"vision.model":   stringKey(func(c *Config) *string { return &c.Vision.Model }),
	"vision.timeout": durationKey("vision.timeout", func(c *Config) *Duration { return &c.Vision.Timeout }),

	"interpret.provider": stringKey(func(c *Config) *string { return &c.Interpret.Provider }),
	"interpret.target":   stringKey(func(c *Config) *string { return &c.Interpret.Target }),
	"interpret.model":    stringKey(func(c *Config) *string { return &c.Interpret.Model }),
	"interpret.timeout":  durationKey("interpret.timeout", func(c *Config) *Duration { return &c.Interpret.Timeout }),

	"embedding.provider": stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":   stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":    stringKey(func(c *Config) *string { return &c.Embedding.Model }),

	"reprocess.workers":          intKey("reprocess.workers", func(c *Config) *int { return &c.Reprocess.Workers }),
	"reprocess.batch_size":       intKey("reprocess.batch_size", func(c *Config) *int { return &c.Reprocess.BatchSize }),
	"reprocess.checkpoint_every": intKey("reprocess.checkpoint_every", func(c *Config) *int { return &c.Reprocess.CheckpointEvery }),
	"reprocess.max_text_chars":   intKey("reprocess.max_text_chars", func(c *Config) *int { return &c.Reprocess.MaxTextChars }),
	"reprocess.cache_path":       stringKey(func(c *Config) *string { return &c.Reprocess.CachePath }),

	"api.listen":    stringKey(func(c *Config) *string { return &c.API.Listen }),
	"api.page_size": intKey("api.page_size", func(c *Config) *int { return &c.API.PageSize }),

	"client.api_target": stringKey(func(c *Config) *string { return &c.Client.APITarget }),

	"events.provider": stringKey(func(c *Config) *string { return &c.Events.Provider }),
	"events.brokers": {
		get: func(c *Config) string { return strings.Join(c.Events.Brokers, ",") },
		set: func(c *Config, v string) error {
			c.Events.Brokers = nil
			for b := range strings.SplitSeq(v, ",") {
				if b = strings.TrimSpace(b); b != "" {
					c.Events.Brokers = append(c.Events.Brokers, b)
				}
			}
			return nil
		},
	},
	"events.topic": stringKey(func(c *Config) *string { return &c.Events.Topic }),
}

// orderedKeys is the stable listing order, matching the TOML section layout.
var orderedKeys = []string{
	"storage.driver",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"capture.screenshots_dir",
	"capture.interval",
	"capture.idle_interval",
	"capture.error_backoff",
	"capture.similarity_threshold",
	"capture.primary_monitor_only",
	"capture.max_text_chars",
	"ocr.provider",
	"ocr.command",
	"ocr.language",
	"vision.enabled",
	"vision.target",
	"vision.model",
	"vision.timeout",
	"interpret.provider",
	"interpret.target",
	"interpret.model",
	"interpret.timeout",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"reprocess.workers",
	"reprocess.batch_size",
	"reprocess.checkpoint_every",
	"reprocess.max_text_chars",
	"reprocess.cache_path",
	"api.listen",
	"api.page_size",
	"client.api_target",
	"events.provider",
	"events.brokers",
	"events.topic",
}
