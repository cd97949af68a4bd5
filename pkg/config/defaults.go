package config

import "time"

const (
	defaultStorageDriver = "sqlite"

	defaultInterval     = 3 * time.Second
	defaultIdleInterval = 3 * time.Second
	defaultErrorBackoff = 5 * time.Second
	defaultThreshold    = 0.9
	defaultCaptureChars = 2000

	defaultOCRProvider = "tesseract"
	defaultOCRCommand  = "tesseract"
	defaultOCRLanguage = "eng"

	defaultOllamaTarget = "http://localhost:11434"
	defaultVisionModel  = "llava:7b"
	defaultLLMTimeout   = 60 * time.Second

	defaultInterpretProvider = "ollama"
	defaultInterpretModel    = "llama3.2"

	defaultEmbeddingProvider = "ollama"
	defaultEmbeddingModel    = "nomic-embed-text"

	defaultReprocessWorkers    = 4
	defaultReprocessBatchSize  = 20
	defaultReprocessCheckpoint = 100
	defaultReprocessChars      = 1000

	defaultAPIListen       = ":8082"
	defaultAPIPageSize     = 10
	defaultClientAPITarget = "http://localhost:8082"

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "recall.entries"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values. Paths are left
// empty and resolve inside the .recall/ directory.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: defaultStorageDriver,
		},
		Capture: CaptureConfig{
			Interval:            NewDuration(defaultInterval),
			IdleInterval:        NewDuration(defaultIdleInterval),
			ErrorBackoff:        NewDuration(defaultErrorBackoff),
			SimilarityThreshold: defaultThreshold,
			MaxTextChars:        defaultCaptureChars,
		},
		OCR: OCRConfig{
			Provider: defaultOCRProvider,
			Command:  defaultOCRCommand,
			Language: defaultOCRLanguage,
		},
		Vision: VisionConfig{
			Enabled: true,
			Target:  defaultOllamaTarget,
			Model:   defaultVisionModel,
			Timeout: NewDuration(defaultLLMTimeout),
		},
		Interpret: InterpretConfig{
			Provider: defaultInterpretProvider,
			Target:   defaultOllamaTarget,
			Model:    defaultInterpretModel,
			Timeout:  NewDuration(defaultLLMTimeout),
		},
		Embedding: EmbeddingConfig{
			Provider: defaultEmbeddingProvider,
			Target:   defaultOllamaTarget,
			Model:    defaultEmbeddingModel,
		},
		Reprocess: ReprocessConfig{
			Workers:         defaultReprocessWorkers,
			BatchSize:       defaultReprocessBatchSize,
			CheckpointEvery: defaultReprocessCheckpoint,
			MaxTextChars:    defaultReprocessChars,
		},
		API: APIConfig{
			Listen:   defaultAPIListen,
			PageSize: defaultAPIPageSize,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}
