package config

const (
	defaultConfigPath = "~/.config/briefsmith/config.toml"
	defaultDataDir    = "~/.local/share/briefsmith"
	defaultLogDir     = "~/.local/share/briefsmith/logs"
	defaultBlobDir    = "~/.local/share/briefsmith/blobs"
	defaultAPIBind    = "127.0.0.1:7490"
	defaultLogFormat  = "console"
	defaultLogLevel   = "info"

	defaultStageTimeout      = 120
	defaultMaxRetryDelay     = 60
	defaultQualityThreshold  = 60
	defaultMaxRegenerations  = 1
	defaultHeartbeatInterval = 15
	defaultHeartbeatTimeout  = 120
	defaultMaxSources        = 10

	defaultFetchTimeout      = 15
	defaultMaxCharsPerSource = 10000
	defaultChunkWords        = 1500
	defaultChunkOverlap      = 200
	defaultIngestConcurrency = 4
	defaultUserAgent         = "briefsmith/dev"

	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "google/gemini-3-flash-preview"
	defaultLLMReferer        = "https://github.com/briefsmith/briefsmith"
	defaultLLMTitle          = "briefsmith"
	defaultLLMTimeoutSeconds = 120

	defaultS3Prefix = "artifacts"
)

// Blob storage backends.
const (
	StorageFilesystem = "filesystem"
	StorageS3         = "s3"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			BlobDir: defaultBlobDir,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Storage: Storage{
			Backend:  StorageFilesystem,
			S3Prefix: defaultS3Prefix,
		},
		Pipeline: Pipeline{
			IngestionAttempts:   3,
			IngestionBaseDelay:  2,
			IngestionTimeout:    defaultStageTimeout,
			GenerationAttempts:  2,
			GenerationBaseDelay: 5,
			GenerationTimeout:   300,
			QualityAttempts:     2,
			QualityBaseDelay:    5,
			QualityTimeout:      defaultStageTimeout,
			RevisionAttempts:    2,
			RevisionBaseDelay:   5,
			RevisionTimeout:     300,
			SynthesisAttempts:   2,
			SynthesisBaseDelay:  5,
			SynthesisTimeout:    300,
			MaxRetryDelay:       defaultMaxRetryDelay,
			QualityThreshold:    defaultQualityThreshold,
			MaxRegenerations:    defaultMaxRegenerations,
			HeartbeatInterval:   defaultHeartbeatInterval,
			HeartbeatTimeout:    defaultHeartbeatTimeout,
			MaxSources:          defaultMaxSources,
		},
		Ingest: Ingest{
			FetchTimeout:      defaultFetchTimeout,
			MaxCharsPerSource: defaultMaxCharsPerSource,
			ChunkWords:        defaultChunkWords,
			ChunkOverlap:      defaultChunkOverlap,
			UserAgent:         defaultUserAgent,
			Concurrency:       defaultIngestConcurrency,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			SessionCreated: true,
			BriefReady:     true,
			Feedback:       true,
			BriefUpdated:   true,
			Synthesis:      true,
			Errors:         true,
		},
		Delivery: Delivery{
			RequestTimeout: 15,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
