// Package stack builds the recall components from resolved configuration.
// It is shared by the commands that run the pipeline in-process.
package stack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"github.com/papercomputeco/recall/pkg/credentials"
	"github.com/papercomputeco/recall/pkg/dotdir"
	"github.com/papercomputeco/recall/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/recall/pkg/embeddings/utils"
	"github.com/papercomputeco/recall/pkg/eventstream"
	"github.com/papercomputeco/recall/pkg/eventstream/kafka"
	"github.com/papercomputeco/recall/pkg/eventstream/nop"
	"github.com/papercomputeco/recall/pkg/extract"
	"github.com/papercomputeco/recall/pkg/interpret"
	"github.com/papercomputeco/recall/pkg/ocr"
	"github.com/papercomputeco/recall/pkg/reprocess"
	"github.com/papercomputeco/recall/pkg/screen"
	"github.com/papercomputeco/recall/pkg/session"
	"github.com/papercomputeco/recall/pkg/storage"
	"github.com/papercomputeco/recall/pkg/storage/inmemory"
	"github.com/papercomputeco/recall/pkg/storage/postgres"
	"github.com/papercomputeco/recall/pkg/storage/sqlite"
	"github.com/papercomputeco/recall/pkg/vision"
)

// OpenStore opens the entry store selected by storage.driver.
func OpenStore(ctx context.Context, v *viper.Viper, paths *dotdir.Paths, logger *slog.Logger) (storage.Driver, error) {
	switch driver := v.GetString("storage.driver"); driver {
	case "sqlite", "":
		path := v.GetString("storage.sqlite_path")
		if path == "" {
			path = paths.Database
		}
		logger.Info("using SQLite storage", "path", path)
		d, err := sqlite.NewDriver(ctx, path, logger)
		if err != nil {
			return nil, err
		}
		return d, nil

	case "postgres":
		dsn := v.GetString("storage.postgres_dsn")
		if dsn == "" {
			return nil, errors.New("storage.postgres_dsn is required for the postgres driver")
		}
		logger.Info("using PostgreSQL storage")
		d, err := postgres.NewDriver(ctx, dsn, logger)
		if err != nil {
			return nil, err
		}
		return d, nil

	case "memory":
		logger.Warn("using in-memory storage, entries are lost on exit")
		return inmemory.NewDriver(), nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}

// NewPublisher builds the entry event publisher selected by events.provider.
func NewPublisher(v *viper.Viper, logger *slog.Logger) (eventstream.Publisher, error) {
	switch provider := v.GetString("events.provider"); provider {
	case "nop", "":
		return nop.NewPublisher(), nil

	case "kafka":
		brokers := v.GetStringSlice("events.brokers")
		topic := v.GetString("events.topic")
		logger.Info("publishing entry events to kafka", "brokers", brokers, "topic", topic)
		p, err := kafka.NewPublisher(kafka.Config{Brokers: brokers, Topic: topic})
		if err != nil {
			return nil, err
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unsupported events provider: %s", provider)
	}
}

// NewIndexer builds the embedding indexer.
func NewIndexer(v *viper.Viper) (*embeddings.Indexer, error) {
	return embeddingutils.NewIndexer(&embeddingutils.NewEmbedderOpts{
		ProviderType: v.GetString("embedding.provider"),
		TargetURL:    v.GetString("embedding.target"),
		Model:        v.GetString("embedding.model"),
	})
}

// NewRecognizer returns the OCR engine, or nil when OCR is disabled.
func NewRecognizer(v *viper.Viper) (extract.TextRecognizer, error) {
	switch provider := v.GetString("ocr.provider"); provider {
	case "tesseract", "":
		return ocr.NewTesseract(ocr.Config{
			Command:  v.GetString("ocr.command"),
			Language: v.GetString("ocr.language"),
		}), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported ocr provider: %s", provider)
	}
}

// NewDescriber returns a vision describer with its own HTTP client, or nil
// when vision is disabled.
func NewDescriber(v *viper.Viper) extract.Describer {
	if !v.GetBool("vision.enabled") {
		return nil
	}
	return vision.NewDescriber(vision.Config{
		BaseURL: v.GetString("vision.target"),
		Model:   v.GetString("vision.model"),
		Timeout: v.GetDuration("vision.timeout"),
	})
}

// NewExtractor builds the live-capture extractor.
func NewExtractor(v *viper.Viper, logger *slog.Logger) (*extract.Extractor, error) {
	rec, err := NewRecognizer(v)
	if err != nil {
		return nil, err
	}
	return extract.NewExtractor(extract.Config{
		OCR:      rec,
		Vision:   NewDescriber(v),
		MaxChars: v.GetInt("capture.max_text_chars"),
		Logger:   logger,
	}), nil
}

// WorkerDeps returns a factory giving every reprocessing worker its own
// OCR engine, describer and interpreter. Hosted interpretation providers
// read their API key from credentials.toml or the environment.
func WorkerDeps(v *viper.Viper, paths *dotdir.Paths, logger *slog.Logger) reprocess.DepsFactory {
	return func(id int) (reprocess.WorkerDeps, error) {
		rec, err := NewRecognizer(v)
		if err != nil {
			return reprocess.WorkerDeps{}, err
		}

		provider := v.GetString("interpret.provider")
		apiKey, err := interpretKey(paths, provider)
		if err != nil {
			return reprocess.WorkerDeps{}, err
		}

		call, err := interpret.NewCaller(interpret.Config{
			Provider: provider,
			Model:    v.GetString("interpret.model"),
			APIKey:   apiKey,
			BaseURL:  v.GetString("interpret.target"),
			Timeout:  v.GetDuration("interpret.timeout"),
			Logger:   logger.With("worker_id", id),
		})
		if err != nil {
			return reprocess.WorkerDeps{}, err
		}

		return reprocess.WorkerDeps{
			OCR:         rec,
			Vision:      NewDescriber(v),
			Interpreter: interpret.NewInterpreter(call),
		}, nil
	}
}

func interpretKey(paths *dotdir.Paths, provider string) (string, error) {
	if !credentials.IsSupportedProvider(provider) {
		return "", nil
	}
	mgr, err := credentials.NewManager(paths.Dir)
	if err != nil {
		return "", fmt.Errorf("loading credentials: %w", err)
	}
	return mgr.ResolveKey(provider)
}

// AssetStore opens the frame asset directory.
func AssetStore(v *viper.Viper, paths *dotdir.Paths) (*screen.AssetStore, error) {
	dir := v.GetString("capture.screenshots_dir")
	if dir == "" {
		dir = paths.Screenshots
	}
	return screen.NewAssetStore(dir)
}

// CachePath is the reprocessing cache file.
func CachePath(v *viper.Viper, paths *dotdir.Paths) string {
	if p := v.GetString("reprocess.cache_path"); p != "" {
		return p
	}
	return paths.Cache
}

// ReprocessOptions are the run defaults from reprocess.*.
func ReprocessOptions(v *viper.Viper) reprocess.Options {
	return reprocess.Options{
		Workers:         v.GetInt("reprocess.workers"),
		BatchSize:       v.GetInt("reprocess.batch_size"),
		CheckpointEvery: v.GetInt("reprocess.checkpoint_every"),
		MaxTextChars:    v.GetInt("reprocess.max_text_chars"),
	}
}

// NewReprocessEngine builds a reprocessing engine with a loaded cache.
func NewReprocessEngine(
	v *viper.Viper,
	paths *dotdir.Paths,
	store storage.Driver,
	indexer *embeddings.Indexer,
	assets *screen.AssetStore,
	publisher eventstream.Publisher,
	logger *slog.Logger,
) (*reprocess.Engine, error) {
	cache, err := reprocess.LoadCache(CachePath(v, paths))
	if err != nil {
		return nil, fmt.Errorf("loading reprocess cache: %w", err)
	}

	return reprocess.NewEngine(reprocess.Config{
		Store:     store,
		Indexer:   indexer,
		Cache:     cache,
		Assets:    assets,
		NewDeps:   WorkerDeps(v, paths, logger),
		Publisher: publisher,
		Logger:    logger,
	})
}

// APITarget resolves the API URL for client commands. An explicit flag wins,
// then the URL recorded by a running serve process, then client.api_target.
func APITarget(v *viper.Viper, paths *dotdir.Paths, explicit bool) string {
	if !explicit {
		if m, err := session.NewManager(paths.Dir); err == nil {
			if state, err := m.LoadState(); err == nil && state != nil && state.APIURL != "" {
				return state.APIURL
			}
		}
	}
	return v.GetString("client.api_target")
}
