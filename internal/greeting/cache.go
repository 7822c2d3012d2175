package greeting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kiosk/internal/fileutil"
	"kiosk/internal/logging"
	"kiosk/internal/presence"
)

// Synthesizer renders text to MP3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

// Asset outcomes reported to an AssetObserver.
const (
	AssetHit   = "hit"
	AssetMiss  = "miss"
	AssetError = "error"
)

// AssetObserver is notified of every Ensure outcome.
type AssetObserver func(result string)

// Cache stores synthesized greetings on disk.
type Cache struct {
	dir      string
	synth    Synthesizer
	timeout  time.Duration
	observer AssetObserver
	logger   *slog.Logger

	// mu serializes synthesis so two callers never race on the same file.
	mu sync.Mutex
}

// CacheOption customizes a Cache.
type CacheOption func(*Cache)

// WithSynthesisTimeout bounds each synthesizer call. Zero means no bound.
func WithSynthesisTimeout(d time.Duration) CacheOption {
	return func(c *Cache) { c.timeout = d }
}

// WithAssetObserver registers fn to receive hit, miss, and error outcomes.
func WithAssetObserver(fn AssetObserver) CacheOption {
	return func(c *Cache) { c.observer = fn }
}

// WithCacheLogger sets the cache logger.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) { c.logger = logging.NewComponentLogger(logger, "greeting-cache") }
}

// NewCache returns a cache rooted at dir.
func NewCache(dir string, synth Synthesizer, opts ...CacheOption) *Cache {
	c := &Cache{
		dir:    dir,
		synth:  synth,
		logger: logging.NewComponentLogger(nil, "greeting-cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Path returns where the asset for key lives, whether or not it exists yet.
func (c *Cache) Path(key Key) string {
	return filepath.Join(c.dir, key.FileName())
}

// Ensure returns the path of the asset for key, synthesizing text on a miss.
func (c *Cache) Ensure(ctx context.Context, key Key, text string) (string, error) {
	path := c.Path(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		c.observe(AssetHit)
		return path, nil
	}

	if c.synth == nil {
		c.observe(AssetError)
		return "", fmt.Errorf("%w: no synthesizer configured for %s", ErrSynthesis, key)
	}
	if text == "" {
		c.observe(AssetError)
		return "", fmt.Errorf("%w: empty phrase for %s", ErrSynthesis, key)
	}

	synthCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		synthCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	started := time.Now()
	audio, err := c.synth.Synthesize(synthCtx, text)
	if err != nil {
		c.observe(AssetError)
		return "", fmt.Errorf("%w: %s: %w", ErrSynthesis, key, err)
	}
	defer audio.Close()

	written, err := fileutil.WriteStreamAtomic(path, audio, 0o644)
	if err != nil {
		c.observe(AssetError)
		return "", fmt.Errorf("%w: store %s: %w", ErrSynthesis, key, err)
	}

	c.observe(AssetMiss)
	logging.WithContext(ctx, c.logger).Info("greeting synthesized",
		logging.String(logging.FieldEventType, "greeting_synthesized"),
		logging.String("asset", key.String()),
		logging.Int64("bytes", written),
		logging.Duration("elapsed", time.Since(started)),
	)
	return path, nil
}

// Purge removes the personalized assets for subject so they are synthesized
// again with the current greeting name.
func (c *Cache) Purge(subject string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, action := range []presence.Action{presence.ActionEnter, presence.ActionExit} {
		path := c.Path(Key{Subject: subject, Action: action, Personalized: true})
		err := os.Remove(path)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			return removed, fmt.Errorf("remove %s: %w", path, err)
		}
	}
	return removed, nil
}

func (c *Cache) observe(result string) {
	if c.observer != nil {
		c.observer(result)
	}
}
