package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/recall/pkg/dotdir"
)

const (
	configFile = dotdir.ConfigFile

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Always set targetPath when the directory exists so SaveConfig
	// can create or overwrite the file.
	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns all supported configuration key names in the
// order of the TOML section layout.
func ValidConfigKeys() []string {
	return append([]string(nil), orderedKeys...)
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target .recall/ directory.
// If the file does not exist, returns NewDefaultConfig() so callers always receive
// a fully-populated Config with sane defaults. Fields explicitly set in the file
// override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	// Merge in defaults: fill in any zero-value fields from the loaded config
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	d := NewDefaultConfig()

	fillString(&cfg.Storage.Driver, d.Storage.Driver)

	fillDuration(&cfg.Capture.Interval, d.Capture.Interval)
	fillDuration(&cfg.Capture.IdleInterval, d.Capture.IdleInterval)
	fillDuration(&cfg.Capture.ErrorBackoff, d.Capture.ErrorBackoff)
	if cfg.Capture.SimilarityThreshold == 0 {
		cfg.Capture.SimilarityThreshold = d.Capture.SimilarityThreshold
	}
	fillInt(&cfg.Capture.MaxTextChars, d.Capture.MaxTextChars)

	fillString(&cfg.OCR.Provider, d.OCR.Provider)
	fillString(&cfg.OCR.Command, d.OCR.Command)
	fillString(&cfg.OCR.Language, d.OCR.Language)

	fillString(&cfg.Vision.Target, d.Vision.Target)
	fillString(&cfg.Vision.Model, d.Vision.Model)
	fillDuration(&cfg.Vision.Timeout, d.Vision.Timeout)

	fillString(&cfg.Interpret.Provider, d.Interpret.Provider)
	fillString(&cfg.Interpret.Target, d.Interpret.Target)
	fillString(&cfg.Interpret.Model, d.Interpret.Model)
	fillDuration(&cfg.Interpret.Timeout, d.Interpret.Timeout)

	fillString(&cfg.Embedding.Provider, d.Embedding.Provider)
	fillString(&cfg.Embedding.Target, d.Embedding.Target)
	fillString(&cfg.Embedding.Model, d.Embedding.Model)

	fillInt(&cfg.Reprocess.Workers, d.Reprocess.Workers)
	fillInt(&cfg.Reprocess.BatchSize, d.Reprocess.BatchSize)
	fillInt(&cfg.Reprocess.CheckpointEvery, d.Reprocess.CheckpointEvery)
	fillInt(&cfg.Reprocess.MaxTextChars, d.Reprocess.MaxTextChars)

	fillString(&cfg.API.Listen, d.API.Listen)
	fillInt(&cfg.API.PageSize, d.API.PageSize)
	fillString(&cfg.Client.APITarget, d.Client.APITarget)

	fillString(&cfg.Events.Provider, d.Events.Provider)
	fillString(&cfg.Events.Topic, d.Events.Topic)
}

func fillString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func fillInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func fillDuration(v *Duration, def Duration) {
	if v.Duration == 0 {
		*v = def
	}
}

// SaveConfig persists the configuration to config.toml in the target .recall/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	// vision is on unless the file turns it off.
	if !md.IsDefined("vision", "enabled") {
		cfg.Vision.Enabled = true
	}

	return cfg, nil
}
