package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"kiosk/internal/fileutil"
	"kiosk/internal/logging"
	"kiosk/internal/services"
)

var (
	// ErrPersistence reports that a toggle could not be written durably. The
	// committed state is unchanged when it is returned.
	ErrPersistence = fmt.Errorf("presence persistence failed: %w", services.ErrTransient)
	// ErrLocked reports that another process owns the state file.
	ErrLocked = errors.New("presence state is locked by another process")
)

// Action is the outcome of a toggle.
type Action string

const (
	ActionEnter Action = "enter"
	ActionExit  Action = "exit"
)

// ToggleResult describes one committed toggle.
type ToggleResult struct {
	ID               string
	WasPresentBefore bool
	IsEnteringNow    bool
	Day              string
	TotalEnters      int64
	DailyEnters      int64
}

// Action returns ActionEnter or ActionExit.
func (r ToggleResult) Action() Action {
	if r.IsEnteringNow {
		return ActionEnter
	}
	return ActionExit
}

// Option customizes a Store.
type Option func(*Store)

// WithClock sets the time source used to derive the day key.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logging.NewComponentLogger(logger, "presence")
	}
}

// Store is the persisted presence record.
type Store struct {
	path   string
	lock   *flock.Flock
	clock  func() time.Time
	logger *slog.Logger
	write  func(path string, data []byte, mode os.FileMode) error

	mu        sync.RWMutex
	committed State
}

// Open loads the state file at path, creating an empty state if it does not
// exist, and takes ownership of it for the lifetime of the Store.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, services.Wrap(services.ErrConfiguration, "presence", "open", "state file path is empty", nil)
	}
	s := &Store{
		path:   path,
		clock:  time.Now,
		logger: logging.NewComponentLogger(nil, "presence"),
		write:  fileutil.WriteFileAtomic,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	s.lock = flock.New(path + ".lock")
	locked, err := s.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire state lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	state, err := s.load()
	if err != nil {
		_ = s.lock.Unlock()
		return nil, err
	}
	s.committed = state
	return s, nil
}

// Close releases the state file lock.
func (s *Store) Close() error {
	if s == nil || s.lock == nil {
		return nil
	}
	return s.lock.Unlock()
}

// Path returns the state file location.
func (s *Store) Path() string { return s.path }

// Snapshot returns a deep copy of the committed state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committed.clone()
}

// Toggle flips the presence of id and commits the updated counters. It must
// only be called from the single writer goroutine.
func (s *Store) Toggle(ctx context.Context, id string) (ToggleResult, error) {
	if id == "" {
		return ToggleResult{}, services.Wrap(services.ErrValidation, "presence", "toggle", "empty identifier", nil)
	}
	if err := ctx.Err(); err != nil {
		return ToggleResult{}, err
	}

	s.mu.RLock()
	next := s.committed.clone()
	s.mu.RUnlock()

	now := s.clock()
	day := now.Format(DayLayout)
	result := ToggleResult{ID: id, Day: day}

	if idx := slices.Index(next.Present, id); idx >= 0 {
		result.WasPresentBefore = true
		next.Present = slices.Delete(next.Present, idx, idx+1)
	} else {
		result.IsEnteringNow = true
		next.Present = append(next.Present, id)
		next.TotalEnters++
		next.DailyEnters[day]++
	}
	next.UpdatedAt = now.UTC()
	result.TotalEnters = next.TotalEnters
	result.DailyEnters = next.DailyEnters[day]

	if err := s.persist(next); err != nil {
		return ToggleResult{}, err
	}

	s.mu.Lock()
	s.committed = next
	s.mu.Unlock()

	logging.WithContext(ctx, s.logger).Debug("presence committed",
		logging.String(logging.FieldAction, string(result.Action())),
		logging.Int64("total_enters", result.TotalEnters),
		logging.Int64("daily_enters", result.DailyEnters),
		logging.Int("present_count", len(next.Present)),
	)
	return result, nil
}

func (s *Store) persist(state State) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal state: %w", ErrPersistence, err)
	}
	if err := s.write(s.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

func (s *Store) load() (State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return emptyState(), nil
		}
		return State{}, fmt.Errorf("read state file: %w", err)
	}
	if len(data) == 0 {
		return emptyState(), nil
	}

	state, legacy, err := decodeState(data)
	if err != nil {
		return State{}, err
	}
	if legacy {
		backup := s.path + ".legacy"
		if err := fileutil.CopyFile(s.path, backup); err != nil {
			logging.WarnWithContext(s.logger, "legacy state backup failed", "presence_legacy_backup_failed",
				logging.String("path", backup),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "copy the state file manually before the next toggle"),
				logging.String(logging.FieldImpact, "the legacy layout is rewritten on the next toggle"),
			)
		}
		s.logger.Info("legacy presence state loaded",
			logging.String(logging.FieldEventType, "presence_legacy_loaded"),
			logging.String("path", s.path),
			logging.Int("present_count", len(state.Present)),
			logging.Int("days", len(state.DailyEnters)),
		)
	}
	return state, nil
}
