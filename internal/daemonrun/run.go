package daemonrun

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"kiosk/internal/config"
	"kiosk/internal/daemon"
	"kiosk/internal/deps"
	"kiosk/internal/directory"
	"kiosk/internal/greeting"
	"kiosk/internal/history"
	"kiosk/internal/ipc"
	"kiosk/internal/logging"
	"kiosk/internal/metrics"
	"kiosk/internal/notifications"
	"kiosk/internal/preflight"
	"kiosk/internal/presence"
	"kiosk/internal/source"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	// Console overrides the manual entry stream. Nil means stdin.
	Console io.Reader
}

// Run starts the kiosk daemon and blocks until SIGINT or SIGTERM.
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
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("kiosk-%s.log", runID))

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update kiosk.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "kiosk-*.log", Exclude: []string{logPath}},
	)

	dependencies := preflight.CheckSystemDeps(signalCtx, cfg)
	logDependencySnapshot(logger, dependencies)
	logPreflight(logger, preflight.RunAll(signalCtx, cfg))

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := presence.Open(cfg.Paths.StateFile, presence.WithLogger(logger))
	if err != nil {
		logger.Error("open presence state", logging.Error(err))
		return err
	}

	dir, err := directory.OpenSQLite(signalCtx, cfg.Paths.DirectoryDB)
	if err != nil {
		_ = store.Close()
		logger.Error("open member directory", logging.Error(err))
		return err
	}

	hist, err := history.Open(signalCtx, cfg.Paths.HistoryDB)
	if err != nil {
		logging.WarnWithContext(logger, "history log unavailable", "history_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.history_db"),
			logging.String(logging.FieldImpact, "toggles will not be recorded in history"),
		)
		hist = nil
	}

	m := metrics.New()
	notifier := notifications.NewService(cfg)

	var console io.Reader
	if cfg.Console.Enabled {
		console = opts.Console
		if console == nil {
			console = os.Stdin
		}
	}
	var reader source.Reader
	if cfg.Reader.Enabled {
		reader = source.NewCommandReader(cfg.Reader.Command)
	}

	d, err := daemon.New(cfg, daemon.Dependencies{
		Store:        store,
		Directory:    dir,
		History:      hist,
		Announcer:    buildAnnouncer(cfg, m, logger),
		Notifier:     notifier,
		Metrics:      m,
		Reader:       reader,
		Console:      console,
		LogPath:      logPath,
		Dependencies: dependencies,
		Logger:       logger,
	})
	if err != nil {
		_ = store.Close()
		_ = dir.Close()
		_ = hist.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	<-signalCtx.Done()
	logger.Info("kiosk daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// buildAnnouncer wires the synthesizer, greeting cache, and player described
// by cfg.
func buildAnnouncer(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *greeting.Dispatcher {
	var synth greeting.Synthesizer
	switch cfg.Greeting.Synthesizer {
	case "command":
		synth = &greeting.CommandSynthesizer{Command: cfg.Greeting.TTSCommand, Locale: cfg.Greeting.Locale}
	default:
		synth = greeting.NewHTTPSynthesizer(cfg.Greeting.TTSURL, cfg.Greeting.Locale, cfg.SynthesisTimeout())
	}

	cache := greeting.NewCache(cfg.Paths.AudioDir, synth,
		greeting.WithSynthesisTimeout(cfg.SynthesisTimeout()),
		greeting.WithAssetObserver(func(result string) {
			m.GreetingAssets.WithLabelValues(result).Inc()
		}),
		greeting.WithCacheLogger(logger),
	)

	opts := []greeting.DispatcherOption{
		greeting.WithPlaybackTimeout(cfg.PlaybackTimeout()),
		greeting.WithLogger(logger),
	}
	if cfg.Reader.Enabled && cfg.Reader.TouchSound != "" {
		opts = append(opts, greeting.WithChime(cfg.Reader.TouchSound))
	}
	return greeting.NewDispatcher(cache, greeting.NewCommandPlayer(cfg.Greeting.PlayerCommand), greeting.Phrases{
		AnonymousEnter: cfg.Greeting.AnonymousEnter,
		AnonymousExit:  cfg.Greeting.AnonymousExit,
		PersonalEnter:  cfg.Greeting.PersonalEnter,
		PersonalExit:   cfg.Greeting.PersonalExit,
	}, opts...)
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "kiosk.log")
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

func logDependencySnapshot(logger *slog.Logger, statuses []deps.Status) {
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, status := range statuses {
		attrs = append(attrs,
			logging.Bool(status.Command+"_available", status.Available),
		)
		if status.Version != "" {
			attrs = append(attrs, logging.String(status.Command+"_version", status.Version))
		}
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)

	for _, missing := range deps.Missing(statuses) {
		logging.WarnWithContext(logger, "dependency missing", "dependency_missing",
			logging.String("dependency", missing.Name),
			logging.String("command", missing.Command),
			logging.String(logging.FieldErrorHint, missing.Detail),
			logging.String(logging.FieldImpact, missing.Description),
		)
	}
}

func logPreflight(logger *slog.Logger, results []preflight.Result) {
	for _, result := range results {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String(logging.FieldErrorHint, result.Detail),
			logging.String(logging.FieldImpact, "related feature may not work"),
		)
	}
}
