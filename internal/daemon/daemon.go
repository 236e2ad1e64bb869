package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gofrs/flock"

	"vidsurvey/internal/api"
	"vidsurvey/internal/clipstore"
	"vidsurvey/internal/config"
	"vidsurvey/internal/deps"
	"vidsurvey/internal/logging"
	"vidsurvey/internal/notifications"
	"vidsurvey/internal/pipeline"
	"vidsurvey/internal/preflight"
	"vidsurvey/internal/store"
)

const abandonedRunReason = "daemon stopped before the run finished"

// Daemon owns the store, pipeline and API server and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Store
	clips   *clipstore.Store
	version string
	notify  notifications.Service

	api *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Address      string
	DatabasePath string
	LockFilePath string
	Dependencies []deps.Status
}

// New constructs a daemon with initialized dependencies. pipe may be nil, in
// which case the configured ffmpeg and inference engine are used.
func New(cfg *config.Config, st *store.Store, clips *clipstore.Store, pipe api.Submitter, logger *slog.Logger, version string) (*Daemon, error) {
	if cfg == nil || st == nil || clips == nil || logger == nil {
		return nil, errors.New("daemon requires config, store, clip store, and logger")
	}
	if pipe == nil {
		orch, err := pipeline.NewFromConfig(cfg, st, clips, logger)
		if err != nil {
			return nil, fmt.Errorf("build pipeline: %w", err)
		}
		pipe = orch
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		clips:    clips,
		version:  version,
		notify:   notifications.NewService(cfg),
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	handler, err := api.New(api.Options{
		Store:          st,
		Clips:          clips,
		Pipeline:       pipe,
		Token:          cfg.Paths.APIToken,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		Version:        version,
		Dependencies:   d.Dependencies,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	d.api = newAPIServer(cfg.Paths.APIBind, handler, logger)
	return d, nil
}

// Start acquires the daemon lock, fails abandoned runs and starts serving.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vidsurvey daemon instance is already running")
	}

	if n, err := d.store.FailAbandonedRuns(ctx, abandonedRunReason); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("recover runs: %w", err)
	} else if n > 0 {
		logging.WarnWithContext(d.logger, "marked abandoned runs as failed", "runs_abandoned",
			logging.Int64("run_count", n),
			logging.String(logging.FieldImpact, "affected submissions have no analysis until reanalysed"),
			logging.String(logging.FieldErrorHint, "run vidsurvey reanalyze <submission-id>"),
		)
		if err := d.notify.Publish(ctx, notifications.EventRunsAbandoned, notifications.Payload{Count: int(n)}); err != nil {
			d.logger.Warn("abandoned run notification not delivered",
				logging.String(logging.FieldEventType, "notification_failed"),
				logging.Error(err),
			)
		}
	}

	for _, check := range preflight.Failed(preflight.RunAll(ctx, d.cfg)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", check.Name),
			logging.String("detail", check.Detail),
			logging.String(logging.FieldImpact, "submissions may fail at the affected stage"),
			logging.String(logging.FieldErrorHint, "run vidsurvey doctor"),
		)
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start api: %w", err)
	}

	d.running.Store(true)
	d.logger.Info("vidsurvey daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.address()),
		logging.String("version", d.version),
	)
	return nil
}

// Stop stops serving and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("vidsurvey daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Address returns the bound API address once started.
func (d *Daemon) Address() string {
	return d.api.address()
}

// Dependencies checks the external binaries the pipeline invokes.
func (d *Daemon) Dependencies(ctx context.Context) []deps.Status {
	return deps.ProbeVersions(ctx, deps.CheckBinaries(deps.Requirements(d.cfg)))
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Address:      d.api.address(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Dependencies: d.Dependencies(ctx),
	}
}
