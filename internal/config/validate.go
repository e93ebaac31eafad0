package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageFilesystem:
		if strings.TrimSpace(c.Paths.BlobDir) == "" {
			return errors.New("paths.blob_dir must be set when storage.backend is filesystem")
		}
	case StorageS3:
		if c.Storage.S3Bucket == "" {
			return errors.New("storage.s3_bucket must be set when storage.backend is s3")
		}
	default:
		return fmt.Errorf("storage.backend: unsupported value %q (use filesystem or s3)", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if err := ensurePositiveMap(map[string]int{
		"pipeline.ingestion_attempts":  p.IngestionAttempts,
		"pipeline.ingestion_timeout":   p.IngestionTimeout,
		"pipeline.generation_attempts": p.GenerationAttempts,
		"pipeline.generation_timeout":  p.GenerationTimeout,
		"pipeline.quality_attempts":    p.QualityAttempts,
		"pipeline.quality_timeout":     p.QualityTimeout,
		"pipeline.revision_attempts":   p.RevisionAttempts,
		"pipeline.revision_timeout":    p.RevisionTimeout,
		"pipeline.synthesis_attempts":  p.SynthesisAttempts,
		"pipeline.synthesis_timeout":   p.SynthesisTimeout,
	}); err != nil {
		return err
	}
	for key, value := range map[string]int{
		"pipeline.ingestion_base_delay":  p.IngestionBaseDelay,
		"pipeline.generation_base_delay": p.GenerationBaseDelay,
		"pipeline.quality_base_delay":    p.QualityBaseDelay,
		"pipeline.revision_base_delay":   p.RevisionBaseDelay,
		"pipeline.synthesis_base_delay":  p.SynthesisBaseDelay,
	} {
		if value < 0 {
			return fmt.Errorf("%s must be >= 0", key)
		}
	}
	if p.QualityThreshold < 0 || p.QualityThreshold > 100 {
		return errors.New("pipeline.quality_threshold must be between 0 and 100")
	}
	if p.MaxRegenerations < 0 {
		return errors.New("pipeline.max_regenerations must be >= 0")
	}
	if p.HeartbeatInterval <= 0 {
		return errors.New("pipeline.heartbeat_interval must be positive")
	}
	if p.HeartbeatTimeout <= 0 {
		return errors.New("pipeline.heartbeat_timeout must be positive")
	}
	if p.HeartbeatTimeout <= p.HeartbeatInterval {
		return errors.New("pipeline.heartbeat_timeout must be greater than pipeline.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateIngest() error {
	if err := ensurePositiveMap(map[string]int{
		"ingest.fetch_timeout":          c.Ingest.FetchTimeout,
		"ingest.max_chars_per_source":   c.Ingest.MaxCharsPerSource,
		"ingest.chunk_words":            c.Ingest.ChunkWords,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkWords {
		return errors.New("ingest.chunk_overlap must be >= 0 and smaller than ingest.chunk_words")
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.JWTIssuer != "" && c.API.JWTSecret == "" {
		return errors.New("api.jwt_secret must be set when api.jwt_issuer is set (or set BRIEFSMITH_JWT_SECRET)")
	}
	return nil
}

func (c *Config) validateDelivery() error {
	if c.Delivery.WebhookURL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Delivery.WebhookURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("delivery.webhook_url: invalid URL %q", c.Delivery.WebhookURL)
	}
	if c.Delivery.RequestTimeout <= 0 {
		return errors.New("delivery.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
