package testsupport

import (
	"path/filepath"
	"testing"

	"briefsmith/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Retry delays are zeroed so failure paths run without sleeping.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.BlobDir = filepath.Join(base, "blobs")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.LLM.APIKey = "test"
	cfgVal.Pipeline.IngestionBaseDelay = 0
	cfgVal.Pipeline.GenerationBaseDelay = 0
	cfgVal.Pipeline.QualityBaseDelay = 0
	cfgVal.Pipeline.RevisionBaseDelay = 0
	cfgVal.Pipeline.SynthesisBaseDelay = 0
	cfgVal.Pipeline.HeartbeatInterval = 1
	cfgVal.Pipeline.HeartbeatTimeout = 30

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPIToken enables static bearer-token auth on the test config.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.Token = token
	}
}

// WithJWTSecret enables HS256 JWT auth on the test config.
func WithJWTSecret(secret, issuer string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.JWTSecret = secret
		b.cfg.API.JWTIssuer = issuer
	}
}

// WithQualityThreshold overrides the quality gate pass score.
func WithQualityThreshold(score int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Pipeline.QualityThreshold = score
	}
}

// WithNtfyTopic points notifications at the given topic URL.
func WithNtfyTopic(topic string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = topic
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
