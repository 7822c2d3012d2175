package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"kiosk/internal/identifier"
	"kiosk/internal/ingest"
	"kiosk/internal/logging"
	"kiosk/internal/metrics"
	"kiosk/internal/services"
)

// ErrMedium marks a failure of the underlying input device or stream.
var ErrMedium = fmt.Errorf("input medium failed: %w", services.ErrTransient)

// Sink receives normalized items. ingest.Queue satisfies it.
type Sink interface {
	Enqueue(item ingest.Item) error
}

// Source is one producer. Run returns nil when the medium is exhausted and an
// error when it should be restarted.
type Source interface {
	Name() ingest.Source
	Run(ctx context.Context, sink Sink) error
}

// submit normalizes raw and enqueues it. Rejected input is logged and counted.
func submit(ctx context.Context, sink Sink, src ingest.Source, raw string, m *metrics.Metrics, logger *slog.Logger) (identifier.ID, error) {
	id, err := identifier.Normalize(raw)
	if err != nil {
		logging.WithContext(services.WithSource(ctx, string(src)), logger).Warn("invalid identifier",
			logging.String(logging.FieldEventType, "identifier_rejected"),
			logging.String("input", raw),
			logging.Error(err),
		)
		if m != nil {
			m.IdentifiersRejected.WithLabelValues(string(src)).Inc()
		}
		return "", err
	}
	if err := sink.Enqueue(ingest.Item{ID: id, Source: src, ReceivedAt: time.Now()}); err != nil {
		return id, err
	}
	if m != nil {
		m.IdentifiersReceived.WithLabelValues(string(src)).Inc()
	}
	logging.WithContext(services.WithIdentifier(services.WithSource(ctx, string(src)), id.String()), logger).Debug("identifier queued",
		logging.String(logging.FieldEventType, "identifier_queued"),
		logging.String("kind", id.Kind().String()),
	)
	return id, nil
}

// Supervise runs src until ctx is cancelled, restarting it after retryDelay
// whenever it returns an error or panics. A nil return ends supervision.
func Supervise(ctx context.Context, src Source, sink Sink, retryDelay time.Duration, logger *slog.Logger) {
	logger = logging.NewComponentLogger(logger, "source")
	name := string(src.Name())
	for {
		err := runOnce(ctx, src, sink)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			logger.Info("source finished",
				logging.String(logging.FieldEventType, "source_finished"),
				logging.String(logging.FieldSource, name),
			)
			return
		}
		if errors.Is(err, ingest.ErrClosed) {
			return
		}
		logging.WarnWithContext(logger, "source stopped; restarting", "source_restart",
			logging.String(logging.FieldSource, name),
			logging.Error(err),
			logging.Duration("retry_delay", retryDelay),
			logging.String(logging.FieldImpact, "identifications from this source are paused"),
		)
		if !sleep(ctx, retryDelay, nil) {
			return
		}
	}
}

func runOnce(ctx context.Context, src Source, sink Sink) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("source %s panicked: %v", src.Name(), r)
		}
	}()
	return src.Run(ctx, sink)
}

// sleep waits for d, an early wake, or ctx. It reports false when ctx ended.
func sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-wake:
		return true
	}
}
