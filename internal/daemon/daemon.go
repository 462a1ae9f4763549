package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"meetsync/internal/config"
	"meetsync/internal/connectivity"
	"meetsync/internal/logging"
	"meetsync/internal/messaging"
	"meetsync/internal/notifications"
	"meetsync/internal/preflight"
	"meetsync/internal/publication"
	"meetsync/internal/queue"
	"meetsync/internal/watcher"
	"meetsync/internal/workflow"
)

// LogFileName is the stable pointer to the current run's log file.
const LogFileName = "meetsync.log"

// Components bundles the long-running services the daemon supervises.
// Only Manager is required; a nil Monitor reads as always online.
type Components struct {
	Manager    *workflow.Manager
	Monitor    *connectivity.Monitor
	Watcher    *watcher.Watcher
	Dispatcher *messaging.Dispatcher
	Publisher  *publication.Publisher
	Notifier   notifications.Service
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithPreflight replaces the startup readiness checks.
func WithPreflight(fn func(context.Context) []preflight.Result) Option {
	return func(d *Daemon) {
		d.preflight = fn
	}
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *queue.Store
	manager    *workflow.Manager
	monitor    *connectivity.Monitor
	watcher    *watcher.Watcher
	dispatcher *messaging.Dispatcher
	publisher  *publication.Publisher
	notifier   notifications.Service
	preflight  func(context.Context) []preflight.Result
	api        *apiServer
	logPath    string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	DatabasePath string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, c Components, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || c.Manager == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}

	notifier := c.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		manager:    c.Manager,
		monitor:    c.Monitor,
		watcher:    c.Watcher,
		dispatcher: c.Dispatcher,
		publisher:  c.Publisher,
		notifier:   notifier,
		logPath:    filepath.Join(cfg.Paths.LogDir, LogFileName),
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}
	d.preflight = func(ctx context.Context) []preflight.Result {
		return preflight.RunAll(ctx, cfg)
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.monitor != nil {
		d.monitor.OnReconnect(d.manager.HandleReconnect)
		d.monitor.OnDisconnect(d.manager.HandleDisconnect)
	}
	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock, replays unfinished work and launches the
// watcher, connectivity probe and chat dispatcher.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another meetsync daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.reportPreflight(d.ctx)
	if d.monitor != nil {
		d.monitor.Check(d.ctx)
	}
	if d.publisher != nil && d.online() {
		if err := d.publisher.EnsureSheet(d.ctx); err != nil {
			logging.WarnWithContext(d.logger, "sheet setup failed", "sheet_setup_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "log rows may land in a tab without headers"),
				logging.String(logging.FieldErrorHint, "check google.sheets_id and service account access"),
			)
		}
	}

	if err := d.manager.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.manager.Stop()
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}

	d.running.Store(true)
	d.launch()
	d.logger.Info("meetsync daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
	)
	return nil
}

func (d *Daemon) launch() {
	ctx := d.ctx
	if d.monitor != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.monitor.Run(ctx)
		}()
	}
	if d.watcher != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if d.cfg.Workflow.ScanOnStart {
				d.scan(ctx)
			}
			if err := d.watcher.Run(ctx, d.manager.Intake()); err != nil {
				logging.ErrorWithContext(d.logger, "watcher stopped", "watcher_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "new recordings are not picked up until restart"),
					logging.String(logging.FieldErrorHint, "check paths.watch_dir exists and is readable"),
				)
			}
		}()
	}
	if d.dispatcher != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			_ = d.dispatcher.Run(ctx)
		}()
	}
}

// scan offers recordings that arrived while the daemon was down.
func (d *Daemon) scan(ctx context.Context) {
	paths, err := d.watcher.Scan()
	if err != nil {
		logging.WarnWithContext(d.logger, "startup scan failed", "startup_scan_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "existing recordings wait for a manual add"),
		)
		return
	}
	for _, path := range paths {
		if err := d.manager.Offer(ctx, path); err != nil {
			return
		}
	}
	if len(paths) > 0 {
		d.logger.Info("startup scan queued recordings",
			logging.String(logging.FieldEventType, "startup_scan"),
			logging.Int("count", len(paths)),
		)
	}
}

func (d *Daemon) reportPreflight(ctx context.Context) {
	if d.preflight == nil {
		return
	}
	for _, result := range preflight.Failed(d.preflight(ctx)) {
		logging.WarnWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldImpact, "steps that need this dependency fail or queue offline"),
			logging.String(logging.FieldErrorHint, "run meetsync status for the full readiness report"),
		)
	}
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
	d.api.stop()
	d.wg.Wait()
	d.manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("meetsync daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.manager.Status(ctx),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}
}

// AddFile registers a recording by hand.
func (d *Daemon) AddFile(ctx context.Context, sourcePath string) (*queue.Asset, error) {
	trimmed := strings.TrimSpace(sourcePath)
	if trimmed == "" {
		return nil, errors.New("source path is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat source file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source path %q is a directory", absPath)
	}
	ext := strings.ToLower(filepath.Ext(info.Name()))
	if !d.cfg.ExtensionAllowed(ext) {
		return nil, fmt.Errorf("unsupported file extension %q", ext)
	}
	asset, err := d.manager.Add(ctx, absPath)
	if err != nil {
		return asset, err
	}
	d.logger.Info("manual file queued",
		logging.String(logging.FieldEventType, "manual_add"),
		logging.Int64(logging.FieldAssetID, asset.ID),
		logging.String("source", absPath),
	)
	return asset, nil
}

// ListAssets returns recordings filtered by optional statuses.
func (d *Daemon) ListAssets(ctx context.Context, statuses []queue.AssetStatus) ([]*queue.Asset, error) {
	return d.store.ListAssets(ctx, statuses...)
}

// ListOffline returns both deferred work queues, videos first.
func (d *Daemon) ListOffline(ctx context.Context) ([]*queue.OfflineItem, error) {
	var items []*queue.OfflineItem
	for _, kind := range []queue.OfflineKind{queue.OfflineVideo, queue.OfflineLogEntry} {
		batch, err := d.store.ListOffline(ctx, kind)
		if err != nil {
			return nil, err
		}
		items = append(items, batch...)
	}
	return items, nil
}

// FlushOffline drains the deferred work queues now. Items parked after
// repeated failures get another chance.
func (d *Daemon) FlushOffline(ctx context.Context) (workflow.FlushResult, error) {
	if !d.online() {
		return workflow.FlushResult{}, errors.New("network is offline; queued work flushes on reconnect")
	}
	for _, kind := range []queue.OfflineKind{queue.OfflineVideo, queue.OfflineLogEntry} {
		unparked, err := d.store.Unpark(ctx, kind)
		if err != nil {
			return workflow.FlushResult{}, err
		}
		if unparked > 0 {
			d.logger.Info("parked offline items requeued",
				logging.String(logging.FieldEventType, "offline_unparked"),
				logging.String("queue", string(kind)),
				logging.Int64("items", unparked),
			)
		}
	}
	return d.manager.FlushOffline(ctx)
}

// ListJobs returns transcription jobs filtered by optional phases.
func (d *Daemon) ListJobs(ctx context.Context, phases []queue.JobPhase) ([]*queue.Job, error) {
	return d.store.ListJobs(ctx, phases...)
}

// GetJob returns one transcription job.
func (d *Daemon) GetJob(ctx context.Context, id string) (*queue.Job, error) {
	return d.store.GetJob(ctx, strings.TrimSpace(id))
}

// FinalizeJob finalizes a job awaiting speaker review.
func (d *Daemon) FinalizeJob(ctx context.Context, id string) error {
	return d.manager.FinalizeJob(ctx, strings.TrimSpace(id))
}

// CancelJob aborts an in-flight transcription job.
func (d *Daemon) CancelJob(ctx context.Context, id string) error {
	return d.manager.CancelJob(ctx, strings.TrimSpace(id))
}

// RenameSpeaker sets the published name for one speaker slot.
func (d *Daemon) RenameSpeaker(ctx context.Context, id, slot, name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("speaker name is required")
	}
	return d.manager.RenameSpeaker(ctx, strings.TrimSpace(id), slot, name)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTestNotification, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

func (d *Daemon) online() bool {
	return d.monitor == nil || d.monitor.Online()
}
