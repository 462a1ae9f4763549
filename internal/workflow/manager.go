package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"meetsync/internal/calendar"
	"meetsync/internal/config"
	"meetsync/internal/disambiguation"
	"meetsync/internal/logging"
	"meetsync/internal/messaging"
	"meetsync/internal/notifications"
	"meetsync/internal/publication"
	"meetsync/internal/queue"
	"meetsync/internal/relocate"
	"meetsync/internal/services"
	"meetsync/internal/transcription"
)

// ErrNotRunning is returned when work is offered to a stopped manager.
var ErrNotRunning = errors.New("workflow manager is not running")

// Deps bundles the pipeline components the manager coordinates.
type Deps struct {
	Store      *queue.Store
	Resolver   *calendar.Resolver
	Sessions   *disambiguation.Manager
	Relocator  *relocate.Relocator
	Supervisor *transcription.Supervisor
	Publisher  *publication.Publisher
	Transport  messaging.Transport
	Notifier   notifications.Service
	// Online reports connectivity; nil means always online.
	Online func() bool
}

// Manager coordinates assets through the meeting pipeline.
type Manager struct {
	cfg        *config.Config
	store      *queue.Store
	resolver   *calendar.Resolver
	sessions   *disambiguation.Manager
	relocator  *relocate.Relocator
	supervisor *transcription.Supervisor
	publisher  *publication.Publisher
	transport  messaging.Transport
	notifier   notifications.Service
	prompts    *messaging.Prompts
	online     func() bool
	logger     *slog.Logger

	loc        *time.Location
	flushDelay time.Duration
	intake     chan string

	mu       sync.RWMutex
	running  bool
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inflight map[int64]struct{}
	lastErr  error
	lastFile string

	flushMu sync.Mutex
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, deps Deps, logger *slog.Logger) *Manager {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	online := deps.Online
	if online == nil {
		online = func() bool { return true }
	}
	buffer := cfg.Workflow.IntakeBuffer
	if buffer <= 0 {
		buffer = 64
	}
	return &Manager{
		cfg:        cfg,
		store:      deps.Store,
		resolver:   deps.Resolver,
		sessions:   deps.Sessions,
		relocator:  deps.Relocator,
		supervisor: deps.Supervisor,
		publisher:  deps.Publisher,
		transport:  deps.Transport,
		notifier:   notifier,
		prompts:    messaging.NewPrompts(deps.Store),
		online:     online,
		logger:     logging.NewComponentLogger(logger, "workflow-manager"),
		loc:        cfg.Location(),
		flushDelay: time.Duration(cfg.Connectivity.FlushDelaySeconds) * time.Second,
		intake:     make(chan string, buffer),
		inflight:   make(map[int64]struct{}),
	}
}

// Start replays unfinished work and begins consuming the intake channel.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.ctx = runCtx
	m.cancel = cancel
	m.running = true
	m.lastErr = nil
	m.mu.Unlock()

	m.supervisor.SetHooks(transcription.Hooks{
		Finalized:   m.onFinalized,
		Failed:      m.onJobFailed,
		ReviewReady: m.onReviewReady,
	})
	if err := m.replay(runCtx); err != nil {
		m.Stop()
		return fmt.Errorf("replay pending work: %w", err)
	}

	m.wg.Add(1)
	go m.runIntake(runCtx)
	m.logger.Info("workflow manager started",
		logging.String(logging.FieldEventType, "workflow_started"),
		logging.String("watch_dir", m.cfg.Paths.WatchDir),
		logging.String("output_dir", m.cfg.Paths.OutputDir),
	)
	return nil
}

// Stop cancels in-flight work and waits for it to wind down.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
	m.supervisor.Stop()
	m.logger.Info("workflow manager stopped", logging.String(logging.FieldEventType, "workflow_stopped"))
}

// Intake returns the channel the watcher feeds detected paths into.
func (m *Manager) Intake() chan<- string {
	return m.intake
}

// Offer queues path for intake, blocking while the buffer is full.
func (m *Manager) Offer(ctx context.Context, path string) error {
	select {
	case m.intake <- path:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Add registers path by hand. A file that previously ended as failed,
// cancelled or skipped is reset and runs through the pipeline again.
func (m *Manager) Add(ctx context.Context, path string) (*queue.Asset, error) {
	if !m.isRunning() {
		return nil, ErrNotRunning
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "intake", "Add", "file not readable", err)
	}
	if !info.Mode().IsRegular() {
		return nil, services.Wrap(services.ErrValidation, "intake", "Add", abs+" is not a regular file", nil)
	}

	asset, created, err := m.store.AddAsset(ctx, abs)
	if err != nil {
		return nil, err
	}
	if !created {
		switch {
		case asset.Status == queue.AssetPublished:
			return asset, fmt.Errorf("asset %d was already published", asset.ID)
		case asset.Status.IsTerminal():
			if _, err := m.sessions.ExpireForAsset(ctx, asset.ID); err != nil {
				return nil, err
			}
			cleared := ""
			if err := m.store.TransitionAsset(ctx, asset.ID, asset.Status, queue.AssetDetected, queue.AssetUpdate{ErrorMessage: &cleared}); err != nil {
				return nil, err
			}
			m.logger.Info("asset re-added",
				logging.Args(append(logging.DecisionAttrs("asset_intake", "reset", "manual add of "+string(asset.Status)+" asset"),
					logging.Int64(logging.FieldAssetID, asset.ID),
				)...)...,
			)
		case asset.Status != queue.AssetDetected:
			return asset, fmt.Errorf("asset %d is already %s", asset.ID, asset.Status)
		}
	}
	m.spawn(asset.ID, m.process)
	return m.store.GetAsset(ctx, asset.ID)
}

func (m *Manager) runIntake(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-m.intake:
			m.accept(ctx, path)
		}
	}
}

// accept records a detected path. Paths already known in a state other than
// detected are ignored; re-processing them needs Add.
func (m *Manager) accept(ctx context.Context, path string) {
	asset, created, err := m.store.AddAsset(ctx, path)
	if err != nil {
		logging.ErrorWithContext(m.logger, "asset intake failed", "asset_intake_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the state database"),
		)
		return
	}
	if !created && asset.Status != queue.AssetDetected {
		m.logger.Debug("known asset ignored",
			logging.Args(append(logging.DecisionAttrs("asset_intake", "ignored", "already "+string(asset.Status)),
				logging.Int64(logging.FieldAssetID, asset.ID),
			)...)...,
		)
		return
	}
	m.logger.Info("asset detected",
		logging.String(logging.FieldEventType, "asset_detected"),
		logging.Int64(logging.FieldAssetID, asset.ID),
		logging.String("file", asset.FileName),
	)
	m.notify(ctx, notifications.EventAssetDetected, notifications.Payload{"file": asset.FileName})
	m.spawn(asset.ID, m.process)
}

// spawn runs fn for an asset on its own goroutine unless work for the asset
// is already in flight.
func (m *Manager) spawn(assetID int64, fn func(ctx context.Context, assetID int64)) bool {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return false
	}
	if _, busy := m.inflight[assetID]; busy {
		m.mu.Unlock()
		m.logger.Debug("asset already in flight", logging.Int64(logging.FieldAssetID, assetID))
		return false
	}
	m.inflight[assetID] = struct{}{}
	ctx := m.ctx
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer m.release(assetID)
		fn(services.WithAssetID(ctx, assetID), assetID)
	}()
	return true
}

func (m *Manager) release(assetID int64) {
	m.mu.Lock()
	delete(m.inflight, assetID)
	m.mu.Unlock()
}

func (m *Manager) isRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) isOnline() bool {
	return m.online()
}
