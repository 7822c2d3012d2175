package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"kiosk/internal/directory"
	"kiosk/internal/events"
	"kiosk/internal/history"
	"kiosk/internal/ingest"
	"kiosk/internal/logging"
	"kiosk/internal/metrics"
	"kiosk/internal/notifications"
	"kiosk/internal/presence"
)

// Toggler is the presence store surface the coordinator writes through.
type Toggler interface {
	Toggle(ctx context.Context, id string) (presence.ToggleResult, error)
	Snapshot() presence.State
}

// Announcer plays greetings and the card-touch chime.
type Announcer interface {
	Announce(ctx context.Context, profile directory.Profile, result presence.ToggleResult) error
	Chime(ctx context.Context) error
}

// Recorder appends committed toggles to the history log.
type Recorder interface {
	RecordToggle(ctx context.Context, e history.Entry) (int64, error)
}

// Publisher fans committed toggles out to live observers.
type Publisher interface {
	Publish(ev events.Event)
}

// Dependencies bundles the collaborators of a Coordinator. Queue, Directory,
// Store, and Announcer are required; the rest are optional.
type Dependencies struct {
	Queue     *ingest.Queue
	Directory directory.Directory
	Store     Toggler
	Announcer Announcer
	History   Recorder
	Events    Publisher
	Notifier  notifications.Service
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Coordinator is the pipeline's single consumer.
type Coordinator struct {
	queue     *ingest.Queue
	directory directory.Directory
	store     Toggler
	announcer Announcer
	history   Recorder
	events    Publisher
	notifier  notifications.Service
	metrics   *metrics.Metrics
	logger    *slog.Logger

	debounce       *cache.Cache
	debounceWindow time.Duration

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	processed int64
	dropped   int64
	lastErr   error
	lastItem  *ItemSummary
}

// Option configures optional Coordinator behavior.
type Option func(*Coordinator)

// WithDebounce suppresses a repeat of the same identifier within window.
// A zero window disables suppression.
func WithDebounce(window time.Duration) Option {
	return func(c *Coordinator) {
		c.debounceWindow = window
	}
}

// New constructs a coordinator.
func New(deps Dependencies, opts ...Option) *Coordinator {
	c := &Coordinator{
		queue:     deps.Queue,
		directory: deps.Directory,
		store:     deps.Store,
		announcer: deps.Announcer,
		history:   deps.History,
		events:    deps.Events,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    logging.NewComponentLogger(deps.Logger, "pipeline"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notifier == nil {
		c.notifier = notifications.NewService(nil)
	}
	if c.debounceWindow > 0 {
		c.debounce = cache.New(c.debounceWindow, 2*c.debounceWindow)
	}
	return c
}

// Run consumes the queue until ctx is done or the queue is closed.
func (c *Coordinator) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("pipeline already running")
	}
	c.running = true
	c.startedAt = time.Now()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	c.logger.Info("pipeline started",
		logging.String(logging.FieldEventType, "pipeline_started"),
		logging.Duration("debounce_window", c.debounceWindow),
	)
	for {
		item, err := c.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ingest.ErrClosed) || ctx.Err() != nil {
				c.logger.Info("pipeline stopped", logging.String(logging.FieldEventType, "pipeline_stopped"))
				return nil
			}
			return err
		}
		c.observeQueueDepth()
		c.process(ctx, item)
	}
}

func (c *Coordinator) observeQueueDepth() {
	if c.metrics != nil {
		c.metrics.QueueDepth.Set(float64(c.queue.Len()))
	}
}
