// Package daemonrun wires briefsmith's collaborators together and runs the
// daemon until the process is signalled.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"briefsmith/internal/artifact"
	"briefsmith/internal/blobstore"
	"briefsmith/internal/config"
	"briefsmith/internal/daemon"
	"briefsmith/internal/generation"
	"briefsmith/internal/ingest"
	"briefsmith/internal/logging"
	"briefsmith/internal/notifications"
	"briefsmith/internal/pipeline"
	"briefsmith/internal/quality"
	"briefsmith/internal/registry"
	"briefsmith/internal/services/llm"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the briefsmith daemon runtime loop.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := newLogger(cfg, opts)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logConfigSnapshot(logger, cfg)

	d, err := Build(signalCtx, cfg, logger)
	if err != nil {
		logger.Error("build daemon", logging.Error(err))
		return err
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the api bind address and data directory lock"),
		)
		return err
	}

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	<-signalCtx.Done()
	logger.Info("briefsmith daemon shutting down")
	return nil
}

// Build opens storage and constructs the pipeline and daemon. The caller owns
// the returned daemon and must Close it.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	store, err := registry.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open registry: %w", err)
	}
	blobs, err := blobstore.Open(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	llmCfg := cfg.GetLLM()
	mgr, err := pipeline.NewManager(cfg, pipeline.Dependencies{
		Store:     store,
		Artifacts: artifact.New(store, blobs),
		Blobs:     blobs,
		Ingester:  ingest.New(ingest.OptionsFromConfig(cfg.Ingest), blobs, logger),
		Generator: generation.NewFromConfig(llm.Config(llmCfg)),
		Gate:      quality.NewRuleGate(cfg.Pipeline.QualityThreshold),
		Notifier:  notifications.NewService(cfg),
		Deliverer: notifications.NewDeliverer(cfg, logger),
		Logger:    logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	d, err := daemon.New(cfg, store, blobs, mgr, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return d, nil
}

// PIDPath returns the pid file written while the daemon runs.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "briefsmithd.pid")
}

// ReadPID returns the pid recorded in the pid file, or 0 when absent.
func ReadPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(PIDPath(cfg))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse pid file: %w", err)
	}
	return pid, nil
}

func newLogger(cfg *config.Config, opts Options) (*slog.Logger, error) {
	if opts.LogLevel == "" && !opts.Development {
		return logging.NewFromConfig(cfg)
	}
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	return logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", filepath.Join(cfg.Paths.LogDir, "briefsmith.log")},
		Development: opts.Development,
	})
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("data_dir", cfg.Paths.DataDir),
		logging.String("storage_backend", cfg.Storage.Backend),
		logging.String("api_bind", cfg.API.Bind),
		logging.Bool("auth_enabled", cfg.AuthEnabled()),
		logging.Bool("llm_key_present", strings.TrimSpace(cfg.LLM.APIKey) != ""),
		logging.String("llm_model", cfg.LLM.Model),
		logging.Bool("ntfy_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("delivery_webhook", strings.TrimSpace(cfg.Delivery.WebhookURL) != ""),
		logging.Int("quality_threshold", cfg.Pipeline.QualityThreshold),
	)
}
