package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"kiosk/internal/directory"
	"kiosk/internal/events"
	"kiosk/internal/history"
	"kiosk/internal/ingest"
	"kiosk/internal/logging"
	"kiosk/internal/notifications"
	"kiosk/internal/services"
)

// Drop reasons reported through kiosk_items_dropped_total.
const (
	DropPersistence = "persistence"
	DropDebounced   = "debounced"
	DropPanic       = "panic"
	DropShutdown    = "shutdown"
)

// process handles one item end to end. It never returns an error: every
// failure is logged and the item is dropped.
func (c *Coordinator) process(ctx context.Context, item ingest.Item) {
	requestID := uuid.NewString()
	ctx = services.WithRequestID(ctx, requestID)
	ctx = services.WithSource(ctx, string(item.Source))
	ctx = services.WithIdentifier(ctx, item.ID.String())
	logger := logging.WithContext(ctx, c.logger)
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("pipeline panic: %v", r)
			logging.ErrorWithContext(logger, "item processing panicked; item dropped", "pipeline_panic",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "report the stack trace from the daemon log"),
			)
			c.drop(item, DropPanic, err)
		}
	}()

	if c.suppressed(item) {
		logger.Info("duplicate identification suppressed",
			logging.String(logging.FieldEventType, "item_debounced"),
			logging.Duration("window", c.debounceWindow),
		)
		c.drop(item, DropDebounced, nil)
		return
	}

	if item.Source == ingest.SourceCard {
		if err := c.announcer.Chime(services.WithStage(ctx, "chime")); err != nil {
			logging.WarnWithContext(logger, "touch chime failed", "chime_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check greeting.chime_path and the player command"),
				logging.String(logging.FieldImpact, "card touch was not acknowledged audibly"),
			)
		}
	}

	profile := directory.Resolve(services.WithStage(ctx, "resolve"), c.directory, item.ID, c.logger)

	result, err := c.store.Toggle(services.WithStage(ctx, "toggle"), item.ID.String())
	if errors.Is(err, context.Canceled) {
		logger.Warn("daemon stopping; item dropped before toggle",
			logging.String(logging.FieldEventType, "item_dropped_shutdown"),
		)
		c.drop(item, DropShutdown, err)
		return
	}
	if err != nil {
		logging.ErrorWithContext(logger, "presence toggle failed; item dropped", "toggle_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Classify(err)),
			logging.String(logging.FieldErrorHint, "check free space and permissions of paths.state_file"),
		)
		c.drop(item, DropPersistence, err)
		c.notifyStoreFailure(ctx, item, err)
		return
	}
	action := result.Action()

	snapshot := c.store.Snapshot()
	logger.Info("presence toggled",
		logging.String(logging.FieldEventType, "presence_toggled"),
		logging.String(logging.FieldAction, string(action)),
		logging.String(logging.FieldMemberID, profile.MemberID),
		logging.Int64("total_enters", result.TotalEnters),
		logging.Int64("daily_enters", result.DailyEnters),
		logging.Int("present", len(snapshot.Present)),
	)

	occurredAt := time.Now().UTC()
	if c.history != nil {
		entry := history.Entry{
			Identifier: result.ID,
			MemberID:   profile.MemberID,
			Action:     string(action),
			Source:     string(item.Source),
			Day:        result.Day,
			OccurredAt: occurredAt,
			RequestID:  requestID,
		}
		if _, err := c.history.RecordToggle(services.WithStage(ctx, "history"), entry); err != nil {
			logging.WarnWithContext(logger, "history append failed", "history_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check paths.history_db"),
				logging.String(logging.FieldImpact, "toggle is committed but missing from history"),
			)
		}
	}

	if c.events != nil {
		c.events.Publish(events.Event{
			Type:         events.TypePresence,
			RequestID:    requestID,
			Identifier:   result.ID,
			MemberID:     profile.MemberID,
			DisplayName:  profile.DisplayName,
			AvatarURL:    profile.AvatarURL,
			Action:       string(action),
			Source:       string(item.Source),
			Day:          result.Day,
			TotalEnters:  result.TotalEnters,
			DailyEnters:  result.DailyEnters,
			PresentCount: len(snapshot.Present),
			OccurredAt:   occurredAt,
		})
	}

	if c.metrics != nil {
		c.metrics.Toggles.WithLabelValues(string(action)).Inc()
		c.metrics.PresentMembers.Set(float64(len(snapshot.Present)))
	}

	if err := c.announcer.Announce(services.WithStage(ctx, "announce"), profile, result); err != nil {
		logging.WarnWithContext(logger, "greeting failed", "greeting_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorKind, services.Classify(err)),
			logging.String(logging.FieldErrorHint, "check the synthesizer endpoint and greeting.player_command"),
			logging.String(logging.FieldImpact, "presence changed without an audible greeting"),
		)
		c.setLastError(err)
	}

	if c.metrics != nil {
		c.metrics.ProcessingSeconds.Observe(time.Since(started).Seconds())
	}
	c.complete(item, action, profile)
}

// suppressed reports whether item repeats an identifier seen inside the
// debounce window. cache.Add fails when the key is still live.
func (c *Coordinator) suppressed(item ingest.Item) bool {
	if c.debounce == nil {
		return false
	}
	return c.debounce.Add(item.ID.String(), item.Source, cache.DefaultExpiration) != nil
}

func (c *Coordinator) notifyStoreFailure(ctx context.Context, item ingest.Item, cause error) {
	if c.notifier == nil {
		return
	}
	err := c.notifier.Publish(ctx, notifications.EventStoreFailed, notifications.Payload{
		"identifier": item.ID.String(),
		"source":     string(item.Source),
		"error":      cause.Error(),
	})
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, c.logger), "store failure notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "operators were not alerted"),
		)
	}
}
