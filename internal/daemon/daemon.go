package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"quorum/internal/approval"
	"quorum/internal/config"
	"quorum/internal/fanout"
	"quorum/internal/logging"
	"quorum/internal/store"
)

// Daemon coordinates the approval engine, fan-out retries, and the HTTP API
// into a single lifecycle with flock-based locking to prevent multiple
// instances.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.Store
	engine *approval.Engine
	fanout *fanout.Service

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	Tasks        map[store.Status]int
	FanoutLag    int
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	fo := fanout.NewService(st, cfg, fanout.NewPusher(cfg), logger)
	eng := approval.New(st, cfg, fo, logger)

	lockPath := filepath.Join(cfg.Paths.DataDir, "quorumd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		engine:   eng,
		fanout:   fo,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Engine exposes the approval engine for in-process callers.
func (d *Daemon) Engine() *approval.Engine {
	return d.engine
}

// Start acquires the daemon lock and launches the fan-out retry loop and the
// HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another quorum daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	go d.fanout.Start(d.ctx)

	if d.api != nil {
		if err := d.api.start(d.ctx); err != nil {
			_ = d.lock.Unlock()
			d.cancel()
			d.ctx = nil
			d.cancel = nil
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("quorum daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock. Queued
// fan-out deliveries get one final attempt before shutdown.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	d.fanout.Flush(flushCtx)
	cancel()

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.api != nil {
		d.api.stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("quorum daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// APIAddr returns the bound HTTP listener address, empty when the API is
// disabled or not yet started.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	stats, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("stats unavailable", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.cfg.DatabasePath(),
		LockFilePath: d.lockPath,
		Tasks:        stats,
		FanoutLag:    d.fanout.LagCount(),
	}
}
