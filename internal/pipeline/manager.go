package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"briefsmith/internal/artifact"
	"briefsmith/internal/blobstore"
	"briefsmith/internal/brief"
	"briefsmith/internal/config"
	"briefsmith/internal/generation"
	"briefsmith/internal/ingest"
	"briefsmith/internal/logging"
	"briefsmith/internal/notifications"
	"briefsmith/internal/quality"
	"briefsmith/internal/registry"
)

// Ingester reads a session's sources.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (brief.IngestResult, error)
}

// Generator produces brief, revision, and synthesis documents.
type Generator interface {
	GenerateBrief(ctx context.Context, in generation.BriefInput) (generation.Draft, error)
	ReviseBrief(ctx context.Context, in generation.RevisionInput) (brief.Brief, error)
	Synthesize(ctx context.Context, in generation.SynthesisInput) (brief.Synthesis, error)
}

// Dependencies are the collaborators a Manager drives.
type Dependencies struct {
	Store     *registry.Store
	Artifacts *artifact.Store
	Blobs     blobstore.Store
	Ingester  Ingester
	Generator Generator
	Gate      quality.Gate
	Notifier  notifications.Service
	Deliverer notifications.Deliverer
	Logger    *slog.Logger
}

// Manager owns run execution for every session.
type Manager struct {
	cfg       *config.Config
	store     *registry.Store
	artifacts *artifact.Store
	blobs     blobstore.Store
	ingester  Ingester
	generator Generator
	gate      quality.Gate
	notifier  notifications.Service
	deliverer notifications.Deliverer
	logger    *slog.Logger
	heartbeat *HeartbeatMonitor

	baseCtx context.Context
	cancel  context.CancelFunc
	runs    sync.WaitGroup
	bg      sync.WaitGroup

	mu      sync.RWMutex
	running bool
	active  map[int64]registry.RunKind
	lastErr error
}

// Summary is a point-in-time view of the manager for status endpoints.
type Summary struct {
	Running    bool
	ActiveRuns int
	LastError  string
}

// NewManager validates deps and builds a manager. Runs may be triggered
// before Start; Start only adds stale-run reclamation.
func NewManager(cfg *config.Config, deps Dependencies) (*Manager, error) {
	switch {
	case cfg == nil:
		return nil, errors.New("pipeline: config is required")
	case deps.Store == nil:
		return nil, errors.New("pipeline: registry store is required")
	case deps.Artifacts == nil:
		return nil, errors.New("pipeline: artifact store is required")
	case deps.Ingester == nil:
		return nil, errors.New("pipeline: ingester is required")
	case deps.Generator == nil:
		return nil, errors.New("pipeline: generator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	gate := deps.Gate
	if gate == nil {
		gate = quality.NewRuleGate(cfg.Pipeline.QualityThreshold)
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	deliverer := deps.Deliverer
	if deliverer == nil {
		deliverer = notifications.NewDeliverer(cfg, logger)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:       cfg,
		store:     deps.Store,
		artifacts: deps.Artifacts,
		blobs:     deps.Blobs,
		ingester:  deps.Ingester,
		generator: deps.Generator,
		gate:      gate,
		notifier:  notifier,
		deliverer: deliverer,
		logger:    logging.NewComponentLogger(logger, "pipeline"),
		baseCtx:   ctx,
		cancel:    cancel,
		active:    make(map[int64]registry.RunKind),
	}
	m.heartbeat = NewHeartbeatMonitor(
		deps.Store,
		m.logger,
		time.Duration(cfg.Pipeline.HeartbeatInterval)*time.Second,
		time.Duration(cfg.Pipeline.HeartbeatTimeout)*time.Second,
	)
	return m, nil
}

// Start reclaims runs left behind by a previous process and begins
// periodic reclamation of runs whose heartbeat stops.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("pipeline manager already running")
	}
	m.running = true
	m.mu.Unlock()

	if _, err := m.heartbeat.ReclaimStaleRuns(ctx, m.reclaimRun, m.isActive); err != nil {
		m.setLastError(err)
		return fmt.Errorf("reclaim stale runs: %w", err)
	}

	m.bg.Add(1)
	go m.monitorLoop()
	m.logger.Info("pipeline manager started",
		logging.Duration("heartbeat_interval", m.heartbeat.interval),
		logging.Duration("heartbeat_timeout", m.heartbeat.timeout),
	)
	return nil
}

// Stop cancels every in-flight run and waits for their goroutines. Cancelled
// runs are left unfinished and reclaimed as interrupted on the next Start.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	m.cancel()
	m.runs.Wait()
	m.bg.Wait()
}

// Wait blocks until every launched run has returned.
func (m *Manager) Wait() {
	m.runs.Wait()
}

// Summary reports the manager state.
func (m *Manager) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Summary{Running: m.running, ActiveRuns: len(m.active)}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

func (m *Manager) monitorLoop() {
	defer m.bg.Done()
	interval := m.heartbeat.timeout / 2
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.baseCtx.Done():
			return
		case <-ticker.C:
			if _, err := m.heartbeat.ReclaimStaleRuns(m.baseCtx, m.reclaimRun, m.isActive); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Warn("stale run reclamation failed", logging.Error(err))
				m.setLastError(err)
			}
		}
	}
}

// launch executes fn for run on its own goroutine, with a heartbeat loop for
// the run's lifetime.
func (m *Manager) launch(run *registry.Run, fn func(ctx context.Context)) {
	m.mu.Lock()
	m.active[run.ID] = run.Kind
	m.mu.Unlock()

	m.runs.Add(1)
	go func() {
		defer m.runs.Done()
		defer func() {
			m.mu.Lock()
			delete(m.active, run.ID)
			m.mu.Unlock()
		}()

		ctx := runContext(m.baseCtx, run)
		hbCtx, hbCancel := context.WithCancel(ctx)
		var hbWG sync.WaitGroup
		hbWG.Add(1)
		go m.heartbeat.StartLoop(hbCtx, &hbWG, run.ID)

		fn(ctx)
		hbCancel()
		hbWG.Wait()
	}()
}

func (m *Manager) isActive(runID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[runID]
	return ok
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
