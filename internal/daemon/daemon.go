// Package daemon ties the worker pool, the status API, and the reference
// catalog syncer into a single lifecycle with flock-based locking to prevent
// multiple daemon instances.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"gantry/internal/api"
	"gantry/internal/config"
	"gantry/internal/logging"
	"gantry/internal/queue"
	"gantry/internal/refdata"
	"gantry/internal/workflow"
)

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	server   *api.Server
	syncer   *refdata.Syncer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	APIAddr      string
	QueueDBPath  string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies. The syncer may be
// nil when no tracker is configured.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, server *api.Server, syncer *refdata.Syncer) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil || server == nil {
		return nil, errors.New("daemon requires config, store, workflow manager, and api server")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "gantryd.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		workflow: wf,
		server:   server,
		syncer:   syncer,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the workers, the API server,
// and the catalog syncer.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another gantry daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.server.Start(); err != nil {
		d.workflow.Stop()
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start api server: %w", err)
	}
	if d.syncer != nil {
		go d.syncer.Run(runCtx)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("gantry daemon started", "lock", d.lockPath, "api", d.server.Addr())
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	if err := d.server.Shutdown(context.Background()); err != nil {
		d.logger.Warn("api server shutdown", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("gantry daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		APIAddr:      d.server.Addr(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
	}
}
