// Package ripper owns the lifecycle of the single external AssetRipper
// worker process and all HTTP traffic to it. Nothing else in the service
// talks to the worker directly.
package ripper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"assetExtractor/config"
	"assetExtractor/fault"
)

const readyPollInterval = time.Second

// Supervisor manages one worker process (or, in external-host mode, only the
// HTTP client pointed at an operator-supplied endpoint) and keeps it alive
// through a background health-check loop with a bounded restart budget.
type Supervisor struct {
	cfg    *config.Config
	logger *zap.Logger

	client  *http.Client
	baseURL string

	external bool
	healthy  atomic.Bool

	mu       sync.Mutex
	cmd      *exec.Cmd
	procDone chan error
	running  bool

	// touched only by Start and the health loop goroutine
	restarts int

	cancelHealth context.CancelFunc
	healthDone   chan struct{}
}

func NewSupervisor(cfg *config.Config, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		logger:   logger,
		baseURL:  cfg.RipperBaseURL(),
		external: cfg.ExternalRipper(),
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
			},
		},
	}
}

// Start spawns the worker process (self-managed mode), waits for it to answer
// the readiness probe, and begins the health-check loop. A worker that fails
// to come up within the startup deadline is fatal to service startup.
func (s *Supervisor) Start(ctx context.Context) error {
	// running is claimed up front so a concurrent Start cannot spawn a
	// second child; a failed startup releases it again.
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("Supervisor already started")
		return nil
	}
	s.running = true
	s.mu.Unlock()

	if s.external {
		s.logger.Info("Using external worker", zap.String("base_url", s.baseURL))
	} else {
		if err := s.spawn(); err != nil {
			s.setRunning(false)
			return err
		}
	}

	if err := s.waitForReady(ctx); err != nil {
		s.stopProcess()
		s.setRunning(false)
		return err
	}

	hctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.cancelHealth = cancel
	s.healthDone = make(chan struct{})
	s.mu.Unlock()

	go s.healthLoop(hctx)

	s.logger.Info("Worker is ready", zap.String("base_url", s.baseURL))
	return nil
}

// Stop cancels the health-check loop, then shuts the worker process down
// gracefully, escalating to a kill after the grace period. Safe to call
// twice or before Start.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancelHealth
	done := s.healthDone
	s.mu.Unlock()

	s.logger.Info("Stopping worker supervisor")

	if cancel != nil {
		cancel()
		<-done
	}

	s.client.CloseIdleConnections()
	s.stopProcess()
	s.healthy.Store(false)
}

func (s *Supervisor) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

// IsHealthy reports the last-known health flag. It reflects the most recent
// probe, not a fresh one.
func (s *Supervisor) IsHealthy() bool {
	return s.healthy.Load()
}

// LoadFile instructs the worker to load the file at the given absolute path.
func (s *Supervisor) LoadFile(ctx context.Context, path string) error {
	s.logger.Info("Loading file into worker", zap.String("path", path))

	if err := s.postForm(ctx, "load file", "/LoadFile", path, s.cfg.LoadTimeout); err != nil {
		return err
	}

	s.logger.Info("File loaded", zap.String("path", path))
	return nil
}

// ExportPrimaryContent instructs the worker to export everything it has
// loaded into exportPath, creating the directory first. Export is the slow
// step and runs under its own (longer) timeout.
func (s *Supervisor) ExportPrimaryContent(ctx context.Context, exportPath string) error {
	s.logger.Info("Exporting primary content", zap.String("path", exportPath))

	if err := os.MkdirAll(exportPath, 0o755); err != nil {
		return fault.New(fault.File, "export primary content", err)
	}

	if err := s.postForm(ctx, "export primary content", "/Export/PrimaryContent", exportPath, s.cfg.ExportTimeout); err != nil {
		return err
	}

	s.logger.Info("Export completed", zap.String("path", exportPath))
	return nil
}

// Reset tells the worker to discard loaded state. Failures are logged, never
// raised: the worker overwrites stale state on the next load anyway.
func (s *Supervisor) Reset(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LoadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/Reset", nil)
	if err != nil {
		s.logger.Warn("Failed to reset worker", zap.Error(err))
		return
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("Failed to reset worker", zap.Error(err))
		return
	}
	drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Warn("Worker reset rejected", zap.Int("status", resp.StatusCode))
		return
	}

	s.logger.Info("Worker reset")
}

func (s *Supervisor) postForm(ctx context.Context, op, route, path string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	form := url.Values{"path": {path}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+route, strings.NewReader(form.Encode()))
	if err != nil {
		return fault.New(fault.Connection, op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fault.Newf(fault.Timeout, op, "no response within %s", timeout)
		}
		return fault.New(fault.Connection, op, err)
	}
	drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fault.Newf(fault.Process, op, "worker returned status %d", resp.StatusCode)
	}
	return nil
}

func (s *Supervisor) spawn() error {
	args := []string{
		"--port", strconv.Itoa(s.cfg.RipperPort),
		"--launch-browser=false",
		"--log",
	}

	cmd := exec.Command(s.cfg.RipperBinaryPath, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return fault.New(fault.Process, "start worker process", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	s.mu.Lock()
	s.cmd = cmd
	s.procDone = done
	s.mu.Unlock()

	s.logger.Info("Worker process started", zap.Int("pid", cmd.Process.Pid))
	return nil
}

// waitForReady polls the readiness endpoint until the worker answers or the
// startup deadline elapses.
func (s *Supervisor) waitForReady(ctx context.Context) error {
	s.logger.Info("Waiting for worker to become ready")

	deadline := time.Now().Add(s.cfg.RipperStartupTimeout)
	for {
		if !s.external && s.processExited() {
			return fault.Newf(fault.Process, "start worker process", "worker process exited during startup")
		}
		if time.Now().After(deadline) {
			return fault.Newf(fault.Process, "start worker process",
				"worker did not become ready within %s", s.cfg.RipperStartupTimeout)
		}

		if err := s.probe(ctx); err == nil {
			s.healthy.Store(true)
			return nil
		}

		select {
		case <-ctx.Done():
			return fault.New(fault.Process, "start worker process", ctx.Err())
		case <-time.After(readyPollInterval):
		}
	}
}

func (s *Supervisor) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/", nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("readiness probe returned status %d", resp.StatusCode)
	}
	return nil
}

// healthLoop runs until Stop. It races intentionally with in-flight
// load/export calls: a restart while a call is in flight surfaces to the
// pipeline as a connection or timeout fault on that call.
func (s *Supervisor) healthLoop(ctx context.Context) {
	defer close(s.healthDone)

	ticker := time.NewTicker(s.cfg.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if !s.external && s.processExited() {
			s.logger.Error("Worker process is not running")
			s.healthy.Store(false)
			s.attemptRestart(ctx)
			continue
		}

		if err := s.probe(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("Worker health check failed", zap.Error(err))
			s.healthy.Store(false)
			if !s.external {
				s.attemptRestart(ctx)
			}
			continue
		}

		s.healthy.Store(true)
	}
}

// attemptRestart performs a stop-then-start cycle of the worker process,
// sleeping beforehand with a delay that doubles per consecutive attempt.
// Once the budget is exhausted the supervisor stays unhealthy until an
// operator restarts the whole service.
func (s *Supervisor) attemptRestart(ctx context.Context) {
	if s.restarts >= s.cfg.MaxRestartAttempts {
		s.logger.Error("Max worker restart attempts reached, giving up",
			zap.Int("max_restarts", s.cfg.MaxRestartAttempts))
		return
	}

	s.restarts++
	s.logger.Info("Attempting worker restart",
		zap.Int("attempt", s.restarts),
		zap.Int("max_restarts", s.cfg.MaxRestartAttempts))

	s.stopProcess()

	select {
	case <-ctx.Done():
		return
	case <-time.After(backoffDelay(s.cfg.RestartBackoffBase, s.restarts)):
	}

	if err := s.spawn(); err != nil {
		s.logger.Error("Failed to restart worker", zap.Error(err))
		return
	}
	if err := s.waitForReady(ctx); err != nil {
		s.logger.Error("Restarted worker did not become ready", zap.Error(err))
		return
	}

	s.restarts = 0
	s.healthy.Store(true)
	s.logger.Info("Worker restarted")
}

// backoffDelay doubles per consecutive attempt: base, 2*base, 4*base, ...
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base << (attempt - 1)
}

// stopProcess terminates the child process gracefully, killing it if it does
// not exit within the grace period. No-op in external-host mode.
func (s *Supervisor) stopProcess() {
	s.mu.Lock()
	cmd := s.cmd
	done := s.procDone
	s.cmd = nil
	s.procDone = nil
	s.mu.Unlock()

	if s.external || cmd == nil || cmd.Process == nil {
		return
	}

	select {
	case <-done:
		return // already exited
	default:
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		s.logger.Warn("Failed to signal worker process", zap.Error(err))
	}

	select {
	case <-done:
		s.logger.Info("Worker process stopped gracefully")
	case <-time.After(s.cfg.ShutdownGrace):
		s.logger.Warn("Worker process did not stop gracefully, killing")
		if err := cmd.Process.Kill(); err != nil {
			s.logger.Warn("Failed to kill worker process", zap.Error(err))
		}
		<-done
	}
}

func (s *Supervisor) processExited() bool {
	s.mu.Lock()
	done := s.procDone
	s.mu.Unlock()

	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
