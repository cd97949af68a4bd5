package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --api-target
// on "recall search" and "recall recording").
type Flag struct {
	// Name is the long flag name (e.g. "api-listen").
	Name string

	// Shorthand is the one-letter short flag (e.g. "a"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "api.listen").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling the Add*Flag helpers and
// BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagAPIListen      = "api-listen"
	FlagAPITarget      = "api-target"
	FlagStorageDriver  = "storage"
	FlagSQLite         = "sqlite"
	FlagPostgresDSN    = "postgres-dsn"
	FlagScreenshotsDir = "screenshots-dir"
	FlagInterval       = "interval"
	FlagThreshold      = "threshold"
	FlagPrimaryOnly    = "primary-only"
	FlagVisionEnabled  = "vision"
	FlagVisionTarget   = "vision-target"
	FlagVisionModel    = "vision-model"
	FlagInterpretProv  = "interpret-provider"
	FlagInterpretModel = "interpret-model"
	FlagEmbeddingProv  = "embedding-provider"
	FlagEmbeddingTgt   = "embedding-target"
	FlagEmbeddingModel = "embedding-model"
	FlagWorkers        = "workers"
	FlagBatchSize      = "batch-size"
	FlagCachePath      = "cache"
	FlagEventsProvider = "events"
	FlagEventsBrokers  = "brokers"
	FlagEventsTopic    = "topic"
)

// Flags is the registry shared by every command.
var Flags = FlagSet{
	FlagAPIListen:      {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagAPITarget:      {Name: "api-target", Shorthand: "a", ViperKey: "client.api_target", Description: "URL of the running recall API"},
	FlagStorageDriver:  {Name: "storage", ViperKey: "storage.driver", Description: "Entry store (sqlite, postgres, memory)"},
	FlagSQLite:         {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite database (default: .recall/recall.db)"},
	FlagPostgresDSN:    {Name: "postgres-dsn", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagScreenshotsDir: {Name: "screenshots-dir", ViperKey: "capture.screenshots_dir", Description: "Directory for frame assets (default: .recall/screenshots)"},
	FlagInterval:       {Name: "interval", Shorthand: "i", ViperKey: "capture.interval", Description: "Delay between capture cycles"},
	FlagThreshold:      {Name: "threshold", Shorthand: "t", ViperKey: "capture.similarity_threshold", Description: "MSSIM at or above which a frame counts as unchanged"},
	FlagPrimaryOnly:    {Name: "primary-only", ViperKey: "capture.primary_monitor_only", Description: "Capture only the primary display"},
	FlagVisionEnabled:  {Name: "vision", ViperKey: "vision.enabled", Description: "Describe frames with a vision model"},
	FlagVisionTarget:   {Name: "vision-target", ViperKey: "vision.target", Description: "Vision model server URL"},
	FlagVisionModel:    {Name: "vision-model", ViperKey: "vision.model", Description: "Vision model name"},
	FlagInterpretProv:  {Name: "interpret-provider", ViperKey: "interpret.provider", Description: "LLM provider for interpretation (ollama, openai, anthropic)"},
	FlagInterpretModel: {Name: "interpret-model", ViperKey: "interpret.model", Description: "LLM model for interpretation"},
	FlagEmbeddingProv:  {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider"},
	FlagEmbeddingTgt:   {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding server URL"},
	FlagEmbeddingModel: {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model name"},
	FlagWorkers:        {Name: "workers", Shorthand: "w", ViperKey: "reprocess.workers", Description: "Number of reprocessing workers"},
	FlagBatchSize:      {Name: "batch-size", Shorthand: "b", ViperKey: "reprocess.batch_size", Description: "Entries per embedding and write batch"},
	FlagCachePath:      {Name: "cache", ViperKey: "reprocess.cache_path", Description: "Path to the reprocessing cache (default: .recall/reprocess.cache)"},
	FlagEventsProvider: {Name: "events", ViperKey: "events.provider", Description: "Entry event publisher (nop, kafka)"},
	FlagEventsBrokers:  {Name: "brokers", ViperKey: "events.brokers", Description: "Kafka brokers for entry events"},
	FlagEventsTopic:    {Name: "topic", ViperKey: "events.topic", Description: "Kafka topic for entry events"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}
	cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaults().GetString(def.ViperKey), def.Description)
}

// AddStringSliceFlag registers a comma-separated string slice flag.
func AddStringSliceFlag(cmd *cobra.Command, fs FlagSet, key string, target *[]string) {
	def, ok := fs[key]
	if !ok {
		return
	}
	cmd.Flags().StringSliceVarP(target, def.Name, def.Shorthand, defaults().GetStringSlice(def.ViperKey), def.Description)
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, key string, target *int) {
	def, ok := fs[key]
	if !ok {
		return
	}
	cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaults().GetInt(def.ViperKey), def.Description)
}

// AddFloatFlag registers a float64 flag on cmd from the given FlagSet.
func AddFloatFlag(cmd *cobra.Command, fs FlagSet, key string, target *float64) {
	def, ok := fs[key]
	if !ok {
		return
	}
	cmd.Flags().Float64VarP(target, def.Name, def.Shorthand, defaults().GetFloat64(def.ViperKey), def.Description)
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, key string, target *bool) {
	def, ok := fs[key]
	if !ok {
		return
	}
	cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaults().GetBool(def.ViperKey), def.Description)
}

// AddDurationFlag registers a duration flag on cmd from the given FlagSet.
func AddDurationFlag(cmd *cobra.Command, fs FlagSet, key string, target *time.Duration) {
	def, ok := fs[key]
	if !ok {
		return
	}
	cmd.Flags().DurationVarP(target, def.Name, def.Shorthand, defaults().GetDuration(def.ViperKey), def.Description)
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaults returns a viper holding only the values from NewDefaultConfig.
func defaults() *viper.Viper {
	v := viper.New()
	setViperDefaults(v)
	return v
}
