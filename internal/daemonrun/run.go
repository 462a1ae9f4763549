package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"meetsync/internal/calendar"
	"meetsync/internal/config"
	"meetsync/internal/connectivity"
	"meetsync/internal/daemon"
	"meetsync/internal/disambiguation"
	"meetsync/internal/ipc"
	"meetsync/internal/logging"
	"meetsync/internal/messaging"
	"meetsync/internal/notifications"
	"meetsync/internal/publication"
	"meetsync/internal/queue"
	"meetsync/internal/relocate"
	"meetsync/internal/services/archive"
	"meetsync/internal/services/google"
	"meetsync/internal/services/llm"
	"meetsync/internal/services/scriberr"
	"meetsync/internal/services/telegram"
	"meetsync/internal/transcription"
	"meetsync/internal/watcher"
	"meetsync/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the meetsync daemon runtime loop and blocks until a signal or a
// stop request arrives.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("meetsync-%s.log", runID))
	level := opts.LogLevel
	if strings.TrimSpace(level) == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logServiceSnapshot(logger, cfg)
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", daemon.LogFileName, err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "meetsync-*.log", Exclude: []string{logPath}},
	)
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open state database", logging.Error(err))
		return err
	}
	defer store.Close()

	c, closeComponents, err := buildComponents(signalCtx, cfg, store, logger)
	if err != nil {
		return err
	}
	defer closeComponents()

	d, err := daemon.New(cfg, store, logger, c)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger, ipc.WithShutdown(cancel))
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logger.Warn("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_start_failed"),
			logging.String(logging.FieldErrorHint, "check configuration and state database access"),
			logging.String(logging.FieldImpact, "recordings will not be processed until `meetsync start` succeeds"),
		)
	}

	<-signalCtx.Done()
	logger.Info("meetsync daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"))
	d.Stop()
	return nil
}

// buildComponents wires the external service clients into the pipeline.
func buildComponents(ctx context.Context, cfg *config.Config, store *queue.Store, logger *slog.Logger) (daemon.Components, func(), error) {
	closers := []func(){}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	googleClient, err := google.New(ctx, cfg)
	if err != nil {
		return daemon.Components{}, closeAll, fmt.Errorf("create google client: %w", err)
	}
	transport := telegram.New(cfg.Telegram)
	service := scriberr.New(cfg.Scriberr)
	llmCfg := cfg.GetLLM()
	completer := llm.NewCompleter(llm.Config{
		Provider:       llmCfg.Provider,
		APIKey:         llmCfg.APIKey,
		BaseURL:        llmCfg.BaseURL,
		Model:          llmCfg.Model,
		Referer:        llmCfg.Referer,
		Title:          llmCfg.Title,
		TimeoutSeconds: llmCfg.TimeoutSeconds,
		MaxTokens:      llmCfg.MaxTokens,
	})
	notifier := notifications.NewService(cfg)
	monitor := connectivity.New(cfg.Connectivity, logger)

	supervisor := transcription.NewSupervisor(cfg, store, service, completer, transport, logger)
	builder := publication.NewBuilder(cfg, googleClient, googleClient, completer, supervisor.JobLink, logger)
	pubOpts := []publication.PublisherOption{publication.WithOnline(monitor.Online)}
	if archive.Enabled(cfg.Archive) {
		archiveStore, archiveErr := archive.Open(ctx, cfg.Archive, logger)
		if archiveErr != nil {
			logging.WarnWithContext(logger, "archive unavailable", "archive_open_failed",
				logging.Error(archiveErr),
				logging.String(logging.FieldImpact, "published entries are not mirrored to Postgres"),
				logging.String(logging.FieldErrorHint, "check archive.postgres_dsn"),
			)
		} else {
			closers = append(closers, archiveStore.Close)
			pubOpts = append(pubOpts, publication.WithArchive(archiveStore))
		}
	}
	publisher := publication.NewPublisher(cfg, store, googleClient, builder, logger, pubOpts...)

	manager := workflow.NewManager(cfg, workflow.Deps{
		Store:      store,
		Resolver:   calendar.NewResolver(googleClient, cfg, logger),
		Sessions:   disambiguation.NewManager(store, transport, cfg.Location(), logger),
		Relocator:  relocate.New(cfg, logger),
		Supervisor: supervisor,
		Publisher:  publisher,
		Transport:  transport,
		Notifier:   notifier,
		Online:     monitor.Online,
	}, logger)
	dispatcher := messaging.NewDispatcher(transport, store, manager, cfg.Telegram.ChatID, logger)

	return daemon.Components{
		Manager:    manager,
		Monitor:    monitor,
		Watcher:    watcher.New(cfg, logger),
		Dispatcher: dispatcher,
		Publisher:  publisher,
		Notifier:   notifier,
	}, closeAll, nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, daemon.LogFileName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logServiceSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	llmCfg := cfg.GetLLM()
	logger.Info("service snapshot",
		logging.String(logging.FieldEventType, "service_snapshot"),
		logging.String("watch_dir", cfg.Paths.WatchDir),
		logging.String("output_dir", cfg.Paths.OutputDir),
		logging.Bool("telegram_configured", strings.TrimSpace(cfg.Telegram.BotToken) != "" && cfg.Telegram.ChatID != 0),
		logging.Bool("scriberr_key_present", strings.TrimSpace(cfg.Scriberr.APIKey) != ""),
		logging.String("scriberr_url", cfg.Scriberr.BaseURL),
		logging.String("llm_provider", llmCfg.Provider),
		logging.String("llm_model", llmCfg.Model),
		logging.Bool("llm_key_present", llmCfg.APIKey != ""),
		logging.Bool("google_credentials_present", strings.TrimSpace(cfg.Google.CredentialsFile) != ""),
		logging.Bool("archive_enabled", archive.Enabled(cfg.Archive)),
		logging.Bool("api_enabled", strings.TrimSpace(cfg.API.Bind) != ""),
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
	)
}
