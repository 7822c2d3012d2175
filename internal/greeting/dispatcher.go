package greeting

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"kiosk/internal/directory"
	"kiosk/internal/logging"
	"kiosk/internal/presence"
)

// Dispatcher speaks the greeting for each committed toggle.
type Dispatcher struct {
	cache           *Cache
	player          Player
	phrases         Phrases
	playbackTimeout time.Duration
	chimePath       string
	logger          *slog.Logger
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPlaybackTimeout bounds each playback. Zero means no bound.
func WithPlaybackTimeout(d time.Duration) DispatcherOption {
	return func(x *Dispatcher) { x.playbackTimeout = d }
}

// WithChime sets the sound effect played by Chime.
func WithChime(path string) DispatcherOption {
	return func(x *Dispatcher) { x.chimePath = path }
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(x *Dispatcher) { x.logger = logging.NewComponentLogger(logger, "greeting") }
}

// NewDispatcher wires a cache, player, and phrase set.
func NewDispatcher(cache *Cache, player Player, phrases Phrases, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		cache:   cache,
		player:  player,
		phrases: phrases,
		logger:  logging.NewComponentLogger(nil, "greeting"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Announce plays the greeting for result and returns once playback ends. A
// synthesis failure returns ErrSynthesis without playing anything; a playback
// failure returns ErrPlayback.
func (d *Dispatcher) Announce(ctx context.Context, profile directory.Profile, result presence.ToggleResult) error {
	action := result.Action()
	key := KeyFor(profile, action)

	path, err := d.cache.Ensure(ctx, key, d.phrases.Text(profile, action))
	if err != nil {
		return err
	}

	started := time.Now()
	if err := d.play(ctx, path); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPlayback, key, err)
	}
	logging.WithContext(ctx, d.logger).Debug("greeting played",
		logging.String("asset", key.String()),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

// Chime plays the card-touch sound effect. A missing sound file is skipped.
func (d *Dispatcher) Chime(ctx context.Context) error {
	if d.chimePath == "" {
		return nil
	}
	if _, err := os.Stat(d.chimePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			d.logger.Debug("touch sound missing; skipping chime", logging.String("path", d.chimePath))
			return nil
		}
		return fmt.Errorf("%w: stat chime: %w", ErrPlayback, err)
	}
	if err := d.play(ctx, d.chimePath); err != nil {
		return fmt.Errorf("%w: chime: %w", ErrPlayback, err)
	}
	return nil
}

func (d *Dispatcher) play(ctx context.Context, path string) error {
	if d.player == nil {
		return errors.New("no player configured")
	}
	playCtx := ctx
	if d.playbackTimeout > 0 {
		var cancel context.CancelFunc
		playCtx, cancel = context.WithTimeout(ctx, d.playbackTimeout)
		defer cancel()
	}
	return d.player.Play(playCtx, path)
}
