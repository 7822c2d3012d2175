package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"kiosk/internal/ingest"
	"kiosk/internal/logging"
	"kiosk/internal/metrics"
)

// Console reads one identifier per line, typically from stdin.
type Console struct {
	in         io.Reader
	retryDelay time.Duration
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewConsole builds a console adapter over in.
func NewConsole(in io.Reader, retryDelay time.Duration, m *metrics.Metrics, logger *slog.Logger) *Console {
	return &Console{
		in:         in,
		retryDelay: retryDelay,
		metrics:    m,
		logger:     logging.NewComponentLogger(logger, "console"),
	}
}

// Name implements Source.
func (c *Console) Name() ingest.Source { return ingest.SourceConsole }

type line struct {
	text string
	err  error
}

// Run reads lines until EOF or ctx ends. The reading goroutine stays blocked
// on the reader after cancellation; stdin is released at process exit.
func (c *Console) Run(ctx context.Context, sink Sink) error {
	lines := make(chan line)
	go c.scan(ctx, lines)

	for {
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			if l.err != nil {
				logging.WarnWithContext(c.logger, "console read failed", "console_read_failed",
					logging.Error(l.err),
					logging.Duration("retry_delay", c.retryDelay),
					logging.String(logging.FieldImpact, "typed numbers are ignored until the console recovers"),
				)
				continue
			}
			if l.text == "" {
				continue
			}
			if _, err := submit(ctx, sink, ingest.SourceConsole, l.text, c.metrics, c.logger); err != nil {
				if errors.Is(err, ingest.ErrClosed) {
					return err
				}
			}
		}
	}
}

// scan feeds lines until EOF. A read error is reported as ErrMedium and
// scanning resumes after the retry delay with a fresh scanner.
func (c *Console) scan(ctx context.Context, out chan<- line) {
	defer close(out)
	for {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case out <- line{text: scanner.Text()}:
			case <-ctx.Done():
				return
			}
		}
		err := scanner.Err()
		if err == nil {
			return
		}
		select {
		case out <- line{err: fmt.Errorf("%w: %v", ErrMedium, err)}:
		case <-ctx.Done():
			return
		}
		if !sleep(ctx, c.retryDelay, nil) {
			return
		}
	}
}
