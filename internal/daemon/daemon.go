package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"briefsmith/internal/blobstore"
	"briefsmith/internal/config"
	"briefsmith/internal/logging"
	"briefsmith/internal/pipeline"
	"briefsmith/internal/preflight"
	"briefsmith/internal/registry"
)

// Daemon owns the pipeline manager and API server and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *registry.Store
	blobs    blobstore.Store
	pipeline *pipeline.Manager

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc

	checksMu sync.RWMutex
	checks   []preflight.Result
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Pipeline     pipeline.Summary
	DatabasePath string
	LockFilePath string
	BlobBackend  string
	AuthMode     string
	Checks       []preflight.Result
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *registry.Store, blobs blobstore.Store, mgr *pipeline.Manager, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || mgr == nil {
		return nil, errors.New("daemon requires config, registry store, and pipeline manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		blobs:    blobs,
		pipeline: mgr,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock, starts the pipeline manager, runs preflight
// checks, and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another briefsmith daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.pipeline.Start(d.ctx); err != nil {
		d.abortStart()
		return fmt.Errorf("start pipeline: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.pipeline.Stop()
		d.abortStart()
		return err
	}

	d.RefreshChecks(d.ctx)
	for _, failed := range preflight.Failed(d.Checks()) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldErrorHint, "runs touching this dependency are likely to fail"),
		)
	}

	d.running.Store(true)
	d.logger.Info("briefsmith daemon started",
		logging.String("lock", d.lockPath),
		logging.String("auth", d.authMode()),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

// Stop stops the API server and pipeline and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.pipeline.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("briefsmith daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the API listen address once started.
func (d *Daemon) Addr() string {
	return d.api.addr()
}

// Handler exposes the API routes, mainly for tests.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}

// RefreshChecks reruns the preflight checks and caches the results.
func (d *Daemon) RefreshChecks(ctx context.Context) {
	results := preflight.RunAll(ctx, d.cfg)
	if d.blobs != nil {
		results = append(results, preflight.CheckBlobRoundTrip(ctx, d.blobs))
	}
	d.checksMu.Lock()
	d.checks = results
	d.checksMu.Unlock()
}

// Checks returns the cached preflight results.
func (d *Daemon) Checks() []preflight.Result {
	d.checksMu.RLock()
	defer d.checksMu.RUnlock()
	return append([]preflight.Result(nil), d.checks...)
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Pipeline:     d.pipeline.Summary(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		BlobBackend:  d.cfg.Storage.Backend,
		AuthMode:     d.authMode(),
		Checks:       d.Checks(),
	}
}

func (d *Daemon) authMode() string {
	switch {
	case d.cfg.API.JWTSecret != "" && d.cfg.API.Token != "":
		return "token+jwt"
	case d.cfg.API.JWTSecret != "":
		return "jwt"
	case d.cfg.API.Token != "":
		return "token"
	default:
		return "none"
	}
}
