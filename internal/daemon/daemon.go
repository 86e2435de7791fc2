// Package daemon wires the transcription pipeline, store, and generative
// backend behind the HTTP API and enforces single-instance execution.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"lectern/internal/config"
	"lectern/internal/logging"
	"lectern/internal/media/ffmpeg"
	"lectern/internal/pipeline"
	"lectern/internal/services/llm"
	"lectern/internal/services/whisper"
	"lectern/internal/studycontent"
	"lectern/internal/transcripts"
)

// Daemon owns the long-lived components and serves the HTTP API.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *transcripts.Store
	pipe      *pipeline.Pipeline
	generator *studycontent.Generator
	api       *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	DatabasePath string
	LockFilePath string
	StorageErr   error
}

// New constructs a daemon from already-initialized components.
func New(cfg *config.Config, store *transcripts.Store, pipe *pipeline.Pipeline, generator *studycontent.Generator, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || pipe == nil || generator == nil {
		return nil, errors.New("daemon requires config, store, pipeline, and generator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "lecternd.lock")
	d := &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		pipe:      pipe,
		generator: generator,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// NewFromConfig builds a daemon with its full production dependency set:
// SQLite store, ffmpeg transcoder, ffprobe prober, transcription backend, and
// generative backend.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	store, err := transcripts.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open transcript store: %w", err)
	}

	transcriber, err := whisper.NewClient(cfg.Whisper)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	transcoder := ffmpeg.New(cfg.Transcoder.FFmpegBinary)
	prober := pipeline.FFprobeProber{Binary: cfg.Transcoder.FFprobeBinary}
	pipe := pipeline.New(cfg, transcoder, prober, transcriber, store, logger)

	backend := llm.NewClient(cfg.LLM)
	generator := studycontent.NewGenerator(backend, logger)

	d, err := New(cfg, store, pipe, generator, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return d, nil
}

// Start acquires the single-instance lock and brings up the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another lectern daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.api.start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.logger.Info("lectern daemon started",
		logging.String("lock", d.lockPath),
		logging.String("database", d.store.Path()),
	)
	return nil
}

// Stop shuts down the API server and releases the daemon lock.
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
	d.logger.Info("lectern daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Addr returns the API listener address once the daemon has started.
func (d *Daemon) Addr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Status returns the current daemon status, including store reachability.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		StorageErr:   d.store.CheckHealth(ctx),
	}
}
