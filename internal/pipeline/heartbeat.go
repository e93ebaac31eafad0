package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"briefsmith/internal/logging"
	"briefsmith/internal/registry"
)

// HeartbeatMonitor refreshes run heartbeats and finds runs that stopped
// sending them.
type HeartbeatMonitor struct {
	store    *registry.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *registry.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	return &HeartbeatMonitor{
		store:    store,
		logger:   logger,
		interval: interval,
		timeout:  timeout,
	}
}

// ReclaimStaleRuns hands every stale run that skip does not claim to
// reclaim and returns how many were reclaimed.
func (h *HeartbeatMonitor) ReclaimStaleRuns(ctx context.Context, reclaim func(context.Context, *registry.Run) error, skip func(int64) bool) (int, error) {
	if h.timeout <= 0 {
		return 0, nil
	}
	stale, err := h.store.StaleRuns(ctx, time.Now().Add(-h.timeout))
	if err != nil {
		return 0, err
	}
	reclaimed := 0
	var errs []error
	for _, run := range stale {
		if skip != nil && skip(run.ID) {
			continue
		}
		if err := reclaim(ctx, run); err != nil {
			errs = append(errs, err)
			continue
		}
		reclaimed++
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale runs", logging.Int("count", reclaimed))
	}
	return reclaimed, errors.Join(errs...)
}

// StartLoop runs a heartbeat updater for a specific run until context cancellation.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, wg *sync.WaitGroup, runID int64) {
	defer wg.Done()
	if h.interval <= 0 {
		return
	}
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "pipeline-heartbeat")))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.HeartbeatRun(ctx, runID); err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Debug("heartbeat update cancelled")
				} else {
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
			}
		}
	}
}
