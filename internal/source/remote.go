package source

import (
	"context"
	"log/slog"

	"kiosk/internal/identifier"
	"kiosk/internal/ingest"
	"kiosk/internal/logging"
	"kiosk/internal/metrics"
)

// Remote accepts identifiers submitted by other processes, such as
// `kiosk enter` over the IPC socket. Unlike the other adapters it reports
// rejections back to the caller.
type Remote struct {
	sink    Sink
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewRemote builds the remote entry adapter.
func NewRemote(sink Sink, m *metrics.Metrics, logger *slog.Logger) *Remote {
	return &Remote{sink: sink, metrics: m, logger: logging.NewComponentLogger(logger, "remote-entry")}
}

// Submit normalizes raw and enqueues it with source remote.
func (r *Remote) Submit(ctx context.Context, raw string) (identifier.ID, error) {
	return submit(ctx, r.sink, ingest.SourceRemote, raw, r.metrics, r.logger)
}
