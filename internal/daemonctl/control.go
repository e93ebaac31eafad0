package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"briefsmith/internal/api"
	"briefsmith/internal/client"
	"briefsmith/internal/config"
	"briefsmith/internal/daemonrun"
	"briefsmith/internal/preflight"
)

const pollInterval = 200 * time.Millisecond

// StatusClient is the subset of the API client used for lifecycle checks.
type StatusClient interface {
	Status(ctx context.Context) (api.DaemonStatus, error)
}

// LaunchOptions controls daemon process launch behavior.
type LaunchOptions struct {
	ConfigPath string
	LogLevel   string
}

type StartState string

const (
	StartStateStarted        StartState = "started"
	StartStateAlreadyRunning StartState = "already_running"
)

// StartResult captures daemon start orchestration state.
type StartResult struct {
	State   StartState
	PID     int
	Message string
}

// ErrDaemonNotRunning indicates the daemon API is unreachable and no pid file exists.
var ErrDaemonNotRunning = errors.New("daemon not running")

// StopResult captures daemon stop/termination outcome.
type StopResult struct {
	PID        int
	ForcedKill bool
}

// Launch starts a detached `briefsmith daemon` process.
func Launch(executablePath string, opts LaunchOptions) error {
	if strings.TrimSpace(executablePath) == "" {
		return fmt.Errorf("resolve executable: executable path is empty")
	}

	args := []string{"daemon"}
	if cfg := strings.TrimSpace(opts.ConfigPath); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		args = append(args, "--log-level", level)
	}

	proc := exec.Command(executablePath, args...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return fmt.Errorf("launch daemon: %w", err)
	}
	return proc.Process.Release()
}

// WaitForAPI polls the status endpoint until it answers or timeout elapses.
func WaitForAPI(ctx context.Context, c StatusClient, timeout time.Duration) (api.DaemonStatus, error) {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		status, err := c.Status(ctx)
		if err == nil {
			return status, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return api.DaemonStatus{}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("timeout waiting for daemon")
	}
	return api.DaemonStatus{}, fmt.Errorf("daemon did not become ready: %w", lastErr)
}

// EnsureStarted launches the daemon unless its API already responds.
func EnsureStarted(ctx context.Context, c StatusClient, executablePath string, opts LaunchOptions, waitTimeout time.Duration) (StartResult, error) {
	if status, err := c.Status(ctx); err == nil {
		return StartResult{State: StartStateAlreadyRunning, PID: status.PID, Message: "Daemon is already running"}, nil
	} else if !client.IsAPIUnavailable(err) {
		return StartResult{}, err
	}

	if err := Launch(executablePath, opts); err != nil {
		return StartResult{}, err
	}
	status, err := WaitForAPI(ctx, c, waitTimeout)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{State: StartStateStarted, PID: status.PID, Message: "Daemon started"}, nil
}

// Stop sends SIGTERM to the daemon recorded in the pid file and escalates to
// SIGKILL when it is still alive after gracePeriod.
func Stop(ctx context.Context, cfg *config.Config, gracePeriod time.Duration) (StopResult, error) {
	pid, err := daemonrun.ReadPID(cfg)
	if err != nil {
		return StopResult{}, err
	}
	if pid <= 0 || !processAlive(pid) {
		return StopResult{}, ErrDaemonNotRunning
	}
	if pid == os.Getpid() {
		return StopResult{}, fmt.Errorf("refusing to signal current process (pid %d)", pid)
	}

	result := StopResult{PID: pid}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return result, fmt.Errorf("signal daemon process %d: %w", pid, err)
	}
	if waitForExit(ctx, pid, gracePeriod) {
		return result, nil
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return result, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	result.ForcedKill = true
	if err := os.Remove(daemonrun.PIDPath(cfg)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("remove pid file: %w", err)
	}
	_ = os.Remove(cfg.LockPath())
	return result, nil
}

// BuildStatusSnapshot returns the daemon's own status, or an offline snapshot
// with locally evaluated readiness checks when the API is unreachable.
func BuildStatusSnapshot(ctx context.Context, c StatusClient, cfg *config.Config) (api.DaemonStatus, error) {
	if c != nil {
		status, err := c.Status(ctx)
		if err == nil {
			return status, nil
		}
		if !client.IsAPIUnavailable(err) {
			return api.DaemonStatus{}, err
		}
	}

	snapshot := api.DaemonStatus{
		DatabasePath: cfg.DatabasePath(),
		LockFilePath: cfg.LockPath(),
		BlobBackend:  cfg.Storage.Backend,
	}
	for _, result := range preflight.RunAll(ctx, cfg) {
		snapshot.Checks = append(snapshot.Checks, api.CheckStatus{
			Name:   result.Name,
			Passed: result.Passed,
			Detail: result.Detail,
		})
	}
	return snapshot, nil
}

func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

func waitForExit(ctx context.Context, pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return true
		}
		select {
		case <-ctx.Done():
			return !processAlive(pid)
		case <-time.After(pollInterval):
		}
	}
	return !processAlive(pid)
}
