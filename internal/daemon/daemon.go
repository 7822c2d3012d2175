package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"kiosk/internal/api"
	"kiosk/internal/config"
	"kiosk/internal/deps"
	"kiosk/internal/directory"
	"kiosk/internal/events"
	"kiosk/internal/history"
	"kiosk/internal/hotplug"
	"kiosk/internal/identifier"
	"kiosk/internal/ingest"
	"kiosk/internal/logging"
	"kiosk/internal/metrics"
	"kiosk/internal/notifications"
	"kiosk/internal/pipeline"
	"kiosk/internal/presence"
	"kiosk/internal/source"
)

// ErrNotRunning is returned by requests that need a started daemon.
var ErrNotRunning = errors.New("daemon not running")

// Dependencies bundles what the daemon runs. Store, Directory, and Announcer
// are required. A nil Reader disables the card source and a nil Console
// disables manual entry on the terminal.
type Dependencies struct {
	Store        *presence.Store
	Directory    directory.Directory
	History      *history.Store
	Announcer    pipeline.Announcer
	Notifier     notifications.Service
	Metrics      *metrics.Metrics
	Reader       source.Reader
	Console      io.Reader
	LogPath      string
	Dependencies []deps.Status
	Logger       *slog.Logger
}

// Daemon runs the presence pipeline and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *presence.Store
	directory directory.Directory
	history   *history.Store
	announcer pipeline.Announcer
	notifier  notifications.Service
	metrics   *metrics.Metrics
	reader    source.Reader
	console   io.Reader
	hub       *events.Hub
	deps      []deps.Status
	logPath   string

	lockPath string
	lock     *flock.Flock

	mu          sync.RWMutex
	queue       *ingest.Queue
	coordinator *pipeline.Coordinator
	card        *source.Card
	remote      *source.Remote
	hotplug     *hotplug.Monitor
	apiServer   *api.Server

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, d Dependencies) (*Daemon, error) {
	if cfg == nil || d.Store == nil || d.Directory == nil || d.Announcer == nil {
		return nil, errors.New("daemon requires config, presence store, directory, and announcer")
	}
	logger := d.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := d.Notifier
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	m := d.Metrics
	if m == nil {
		m = metrics.New()
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:       cfg,
		logger:    logger,
		store:     d.Store,
		directory: d.Directory,
		history:   d.History,
		announcer: d.Announcer,
		notifier:  notifier,
		metrics:   m,
		reader:    d.Reader,
		console:   d.Console,
		hub:       events.NewHub(logger),
		deps:      d.Dependencies,
		logPath:   d.LogPath,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and launches the coordinator, the enabled
// sources, the hotplug watcher, and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another kiosk daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	queue := ingest.NewQueue()

	var recorder pipeline.Recorder
	if d.history != nil {
		recorder = d.history
	}
	coordinator := pipeline.New(pipeline.Dependencies{
		Queue:     queue,
		Directory: d.directory,
		Store:     d.store,
		Announcer: d.announcer,
		History:   recorder,
		Events:    d.hub,
		Notifier:  d.notifier,
		Metrics:   d.metrics,
		Logger:    d.logger,
	}, pipeline.WithDebounce(d.cfg.DebounceWindow()))

	apiServer := api.NewServer(api.Options{
		Bind:    d.cfg.Paths.APIBind,
		Backend: d,
		Hub:     d.hub,
		Metrics: d.metrics.Handler(),
		Logger:  d.logger,
	})
	if err := apiServer.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api server: %w", err)
	}

	monitor := hotplug.New(d.cfg, d.logger)
	_ = monitor.Start(runCtx)

	var card *source.Card
	if d.cfg.Reader.Enabled && d.reader != nil {
		card = source.NewCard(d.reader, source.CardOptions{
			ReadTimeout: d.cfg.ReaderReadTimeout(),
			RetryDelay:  d.cfg.ReaderRetryDelay(),
			Wake:        monitor.Wake(),
			Notifier:    d.notifier,
			Metrics:     d.metrics,
			Logger:      d.logger,
		})
	}

	d.mu.Lock()
	d.queue = queue
	d.coordinator = coordinator
	d.card = card
	d.remote = source.NewRemote(queue, d.metrics, d.logger)
	d.hotplug = monitor
	d.apiServer = apiServer
	d.cancel = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := coordinator.Run(runCtx); err != nil {
			logging.ErrorWithContext(d.logger, "pipeline stopped unexpectedly", "pipeline_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "restart the daemon"),
			)
		}
	}()

	if card != nil {
		d.supervise(runCtx, card, queue)
	}
	if d.cfg.Console.Enabled && d.console != nil {
		d.supervise(runCtx, source.NewConsole(d.console, d.cfg.ReaderRetryDelay(), d.metrics, d.logger), queue)
	}

	d.running.Store(true)
	present := len(d.store.Snapshot().Present)
	d.metrics.PresentMembers.Set(float64(present))
	d.logger.Info("kiosk daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("state_file", d.store.Path()),
		logging.Bool("card_reader", card != nil),
		logging.Bool("hotplug", monitor.Running()),
		logging.String("api", apiServer.Addr()),
		logging.Int("present", present),
	)
	if err := d.notifier.Publish(runCtx, notifications.EventDaemonStarted, notifications.Payload{"present": present}); err != nil {
		d.logger.Debug("daemon start notification failed", logging.Error(err))
	}
	return nil
}

func (d *Daemon) supervise(ctx context.Context, src source.Source, queue *ingest.Queue) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		source.Supervise(ctx, src, queue, d.cfg.ReaderRetryDelay(), d.logger)
	}()
}

// Stop cancels the sources and the coordinator, waits for them to return,
// and releases the daemon lock. Items still queued are discarded.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	cancel := d.cancel
	queue := d.queue
	apiServer := d.apiServer
	monitor := d.hotplug
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if queue != nil {
		if pending := queue.Len(); pending > 0 {
			logging.WarnWithContext(d.logger, "discarding queued identifiers on shutdown", "queue_discarded",
				logging.Int("pending", pending),
				logging.String(logging.FieldImpact, "queued touches were not recorded"),
			)
		}
		queue.Close()
	}
	apiServer.Stop()
	monitor.Stop()
	d.wg.Wait()

	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("kiosk daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon and releases the stores it was given.
func (d *Daemon) Close() error {
	d.Stop()
	var errs []error
	if d.history != nil {
		errs = append(errs, d.history.Close())
	}
	if closer, ok := d.directory.(io.Closer); ok {
		errs = append(errs, closer.Close())
	}
	if d.store != nil {
		errs = append(errs, d.store.Close())
	}
	return errors.Join(errs...)
}

// APIAddr returns the bound HTTP API address, or "" when it is disabled.
func (d *Daemon) APIAddr() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.apiServer.Addr()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	d.mu.RLock()
	coordinator := d.coordinator
	card := d.card
	monitor := d.hotplug
	d.mu.RUnlock()

	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StateFile:    d.store.Path(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		Subscribers:  d.hub.Subscribers(),
		Dependencies: api.FromDependencies(d.deps),
		Reader: api.ReaderStatus{
			Enabled: d.cfg.Reader.Enabled && d.reader != nil,
			Hotplug: monitor.Running(),
		},
	}
	if coordinator != nil {
		status.Pipeline = api.FromPipelineStatus(coordinator.Status())
	}
	if card != nil {
		healthy, lastFault := card.Healthy()
		status.Reader.Healthy = healthy
		if lastFault != nil {
			status.Reader.LastFault = lastFault.Error()
		}
	}
	return status
}

// Presence returns the present set with resolved names.
func (d *Daemon) Presence(ctx context.Context) api.PresenceView {
	return api.FromPresence(ctx, d.store.Snapshot(), time.Now().Format(presence.DayLayout), d.directory)
}

// History returns recent toggles, newest first.
func (d *Daemon) History(ctx context.Context, limit int, memberID string) ([]history.Entry, error) {
	if d.history == nil {
		return nil, errors.New("history log unavailable")
	}
	return d.history.Recent(ctx, limit, memberID)
}

// Submit queues manual input as if it was typed at the kiosk.
func (d *Daemon) Submit(ctx context.Context, raw string) (identifier.ID, error) {
	d.mu.RLock()
	remote := d.remote
	d.mu.RUnlock()
	if remote == nil || !d.running.Load() {
		return "", ErrNotRunning
	}
	return remote.Submit(ctx, raw)
}

// TestNotification sends a test notification through the configured service.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
