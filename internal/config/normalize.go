package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeStorage()
	c.normalizePipeline()
	c.normalizeIngest()
	c.normalizeLLM()
	c.normalizeNotifications()
	c.normalizeDelivery()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.BlobDir) == "" {
		c.Paths.BlobDir = defaultBlobDir
	}
	if c.Paths.BlobDir, err = expandPath(c.Paths.BlobDir); err != nil {
		return fmt.Errorf("paths.blob_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
	if c.API.Token == "" {
		c.API.Token = lookupEnv("BRIEFSMITH_API_TOKEN")
	}
	c.API.JWTSecret = strings.TrimSpace(c.API.JWTSecret)
	if c.API.JWTSecret == "" {
		c.API.JWTSecret = lookupEnv("BRIEFSMITH_JWT_SECRET")
	}
	c.API.JWTIssuer = strings.TrimSpace(c.API.JWTIssuer)
}

func (c *Config) normalizeStorage() {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageFilesystem
	}
	c.Storage.S3Bucket = strings.TrimSpace(c.Storage.S3Bucket)
	c.Storage.S3Endpoint = strings.TrimSpace(c.Storage.S3Endpoint)
	c.Storage.S3Region = strings.TrimSpace(c.Storage.S3Region)
	if c.Storage.S3Region == "" {
		c.Storage.S3Region = lookupEnv("AWS_REGION")
	}
	c.Storage.S3Prefix = strings.Trim(strings.TrimSpace(c.Storage.S3Prefix), "/")
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.MaxRetryDelay <= 0 {
		c.Pipeline.MaxRetryDelay = defaultMaxRetryDelay
	}
	if c.Pipeline.MaxSources <= 0 {
		c.Pipeline.MaxSources = defaultMaxSources
	}
}

func (c *Config) normalizeIngest() {
	c.Ingest.UserAgent = strings.TrimSpace(c.Ingest.UserAgent)
	if c.Ingest.UserAgent == "" {
		c.Ingest.UserAgent = defaultUserAgent
	}
	if c.Ingest.Concurrency <= 0 {
		c.Ingest.Concurrency = defaultIngestConcurrency
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value := lookupEnv("OPENROUTER_API_KEY"); value != "" {
			c.LLM.APIKey = value
		} else {
			c.LLM.APIKey = lookupEnv("LLM_API_KEY")
		}
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		c.Notifications.NtfyTopic = lookupEnv("NTFY_TOPIC")
	}
}

func (c *Config) normalizeDelivery() {
	c.Delivery.WebhookURL = strings.TrimSpace(c.Delivery.WebhookURL)
	c.Delivery.FromAddress = strings.TrimSpace(c.Delivery.FromAddress)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "json":
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func lookupEnv(key string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return ""
}
