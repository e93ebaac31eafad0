package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains data, blob, and log directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	BlobDir string `toml:"blob_dir"`
}

// API contains HTTP bind and authentication settings.
type API struct {
	Bind      string `toml:"bind"`
	Token     string `toml:"token"`
	JWTSecret string `toml:"jwt_secret"`
	JWTIssuer string `toml:"jwt_issuer"`
}

// Storage selects the blob backend for artifact content.
type Storage struct {
	Backend    string `toml:"backend"`
	S3Bucket   string `toml:"s3_bucket"`
	S3Region   string `toml:"s3_region"`
	S3Endpoint string `toml:"s3_endpoint"`
	S3Prefix   string `toml:"s3_prefix"`
}

// Pipeline contains per-stage retry policies and quality gate knobs.
// Delays and timeouts are in seconds.
type Pipeline struct {
	IngestionAttempts   int `toml:"ingestion_attempts"`
	IngestionBaseDelay  int `toml:"ingestion_base_delay"`
	IngestionTimeout    int `toml:"ingestion_timeout"`
	GenerationAttempts  int `toml:"generation_attempts"`
	GenerationBaseDelay int `toml:"generation_base_delay"`
	GenerationTimeout   int `toml:"generation_timeout"`
	QualityAttempts     int `toml:"quality_attempts"`
	QualityBaseDelay    int `toml:"quality_base_delay"`
	QualityTimeout      int `toml:"quality_timeout"`
	RevisionAttempts    int `toml:"revision_attempts"`
	RevisionBaseDelay   int `toml:"revision_base_delay"`
	RevisionTimeout     int `toml:"revision_timeout"`
	SynthesisAttempts   int `toml:"synthesis_attempts"`
	SynthesisBaseDelay  int `toml:"synthesis_base_delay"`
	SynthesisTimeout    int `toml:"synthesis_timeout"`
	MaxRetryDelay       int `toml:"max_retry_delay"`
	QualityThreshold    int `toml:"quality_threshold"`
	MaxRegenerations    int `toml:"max_regenerations"`
	HeartbeatInterval   int `toml:"heartbeat_interval"`
	HeartbeatTimeout    int `toml:"heartbeat_timeout"`
	MaxSources          int `toml:"max_sources"`
}

// Ingest contains source fetching and chunking settings.
type Ingest struct {
	FetchTimeout      int    `toml:"fetch_timeout"`
	MaxCharsPerSource int    `toml:"max_chars_per_source"`
	ChunkWords        int    `toml:"chunk_words"`
	ChunkOverlap      int    `toml:"chunk_overlap"`
	UserAgent         string `toml:"user_agent"`
	Concurrency       int    `toml:"concurrency"`
}

// LLM contains the language model connection settings.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	SessionCreated bool   `toml:"session_created"`
	BriefReady     bool   `toml:"brief_ready"`
	Feedback       bool   `toml:"feedback"`
	BriefUpdated   bool   `toml:"brief_updated"`
	Synthesis      bool   `toml:"synthesis"`
	Errors         bool   `toml:"errors"`
}

// Delivery contains the packet delivery webhook settings.
type Delivery struct {
	WebhookURL     string `toml:"webhook_url"`
	RequestTimeout int    `toml:"request_timeout"`
	FromAddress    string `toml:"from_address"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for briefsmith.
//
// Configuration sections by subsystem:
//   - Paths: database, blob, and log directories
//   - API: HTTP bind address and bearer/JWT authentication
//   - Storage: filesystem or S3 blob backend
//   - Pipeline: retry policies, stage timeouts, quality gate
//   - Ingest: source fetching and chunking
//   - LLM: language model connection
//   - Notifications: ntfy push notifications
//   - Delivery: packet delivery webhook
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Storage       Storage       `toml:"storage"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Ingest        Ingest        `toml:"ingest"`
	LLM           LLM           `toml:"llm"`
	Notifications Notifications `toml:"notifications"`
	Delivery      Delivery      `toml:"delivery"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("briefsmith.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The blob directory is only needed by the filesystem backend.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir}
	if c.Storage.Backend == StorageFilesystem {
		dirs = append(dirs, c.Paths.BlobDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location inside the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "briefsmith.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "briefsmithd.lock")
}

// AuthEnabled reports whether the API requires a bearer token or JWT.
func (c *Config) AuthEnabled() bool {
	return strings.TrimSpace(c.API.Token) != "" || strings.TrimSpace(c.API.JWTSecret) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the trimmed LLM connection settings.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// GetLLM returns the LLM connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
	}
}

// StagePolicy is the resolved retry policy for one pipeline stage.
type StagePolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Timeout   time.Duration
}

// Stage names accepted by StagePolicyFor.
const (
	StageIngestion  = "ingestion"
	StageGeneration = "generation"
	StageQuality    = "quality"
	StageRevision   = "revision"
	StageSynthesis  = "synthesis"
)

// StagePolicyFor returns the retry policy for the named stage. Regeneration
// shares the generation policy. Unknown stages get a single attempt.
func (c *Config) StagePolicyFor(stage string) StagePolicy {
	p := c.Pipeline
	maxDelay := seconds(p.MaxRetryDelay)
	switch stage {
	case StageIngestion:
		return StagePolicy{p.IngestionAttempts, seconds(p.IngestionBaseDelay), maxDelay, seconds(p.IngestionTimeout)}
	case StageGeneration, "regeneration":
		return StagePolicy{p.GenerationAttempts, seconds(p.GenerationBaseDelay), maxDelay, seconds(p.GenerationTimeout)}
	case StageQuality:
		return StagePolicy{p.QualityAttempts, seconds(p.QualityBaseDelay), maxDelay, seconds(p.QualityTimeout)}
	case StageRevision:
		return StagePolicy{p.RevisionAttempts, seconds(p.RevisionBaseDelay), maxDelay, seconds(p.RevisionTimeout)}
	case StageSynthesis:
		return StagePolicy{p.SynthesisAttempts, seconds(p.SynthesisBaseDelay), maxDelay, seconds(p.SynthesisTimeout)}
	default:
		return StagePolicy{Attempts: 1, MaxDelay: maxDelay, Timeout: seconds(defaultStageTimeout)}
	}
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}
