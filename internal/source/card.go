package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"kiosk/internal/identifier"
	"kiosk/internal/ingest"
	"kiosk/internal/logging"
	"kiosk/internal/metrics"
	"kiosk/internal/notifications"
)

// ErrNoCard reports a read that finished without a card being presented.
var ErrNoCard = errors.New("no card presented")

// Reader blocks until a card is touched and returns its serial.
type Reader interface {
	ReadSerial(ctx context.Context) (identifier.ID, error)
}

// CardOptions tunes a Card adapter.
type CardOptions struct {
	ReadTimeout time.Duration
	RetryDelay  time.Duration
	// Wake cuts a retry wait short, typically on a reader hotplug event.
	Wake     <-chan struct{}
	Notifier notifications.Service
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// Card polls a Reader and enqueues every serial it returns.
type Card struct {
	reader      Reader
	readTimeout time.Duration
	retryDelay  time.Duration
	wake        <-chan struct{}
	notifier    notifications.Service
	metrics     *metrics.Metrics
	logger      *slog.Logger

	mu        sync.Mutex
	faulted   bool
	lastFault error
}

// NewCard builds a card adapter around reader.
func NewCard(reader Reader, opts CardOptions) *Card {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(nil)
	}
	return &Card{
		reader:      reader,
		readTimeout: opts.ReadTimeout,
		retryDelay:  opts.RetryDelay,
		wake:        opts.Wake,
		notifier:    notifier,
		metrics:     opts.Metrics,
		logger:      logging.NewComponentLogger(opts.Logger, "card-reader"),
	}
}

// Name implements Source.
func (c *Card) Name() ingest.Source { return ingest.SourceCard }

// Healthy reports whether the last read did not fail, and the last fault.
func (c *Card) Healthy() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.faulted, c.lastFault
}

// Run reads cards until ctx ends.
func (c *Card) Run(ctx context.Context, sink Sink) error {
	c.logger.Info("card reader started",
		logging.String(logging.FieldEventType, "card_reader_started"),
		logging.Duration("read_timeout", c.readTimeout),
	)
	for ctx.Err() == nil {
		id, err := c.read(ctx)
		switch {
		case err == nil:
			c.recovered(ctx)
			if _, err := submit(ctx, sink, ingest.SourceCard, id.String(), c.metrics, c.logger); errors.Is(err, ingest.ErrClosed) {
				return err
			}
			if !sleep(ctx, c.retryDelay, nil) {
				return nil
			}
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, context.DeadlineExceeded):
			c.recovered(ctx)
		case errors.Is(err, ErrNoCard):
			// A helper that gives up at once must not be relaunched in a tight loop.
			c.recovered(ctx)
			if !sleep(ctx, c.retryDelay, c.wake) {
				return nil
			}
		default:
			c.fault(ctx, err)
			if !sleep(ctx, c.retryDelay, c.wake) {
				return nil
			}
		}
	}
	return nil
}

func (c *Card) read(ctx context.Context) (identifier.ID, error) {
	if c.readTimeout <= 0 {
		return c.reader.ReadSerial(ctx)
	}
	readCtx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()
	return c.reader.ReadSerial(readCtx)
}

func (c *Card) fault(ctx context.Context, err error) {
	c.mu.Lock()
	first := !c.faulted
	c.faulted = true
	c.lastFault = err
	c.mu.Unlock()

	logging.WarnWithContext(c.logger, "card read failed", "card_read_failed",
		logging.Error(err),
		logging.Duration("retry_delay", c.retryDelay),
		logging.String(logging.FieldErrorHint, "check the reader is plugged in and reader.command works"),
		logging.String(logging.FieldImpact, "card touches are not registered"),
	)
	if !first {
		return
	}
	if perr := c.notifier.Publish(ctx, notifications.EventReaderFault, notifications.Payload{"error": err.Error()}); perr != nil {
		c.logger.Debug("reader fault notification failed", logging.Error(perr))
	}
}

func (c *Card) recovered(ctx context.Context) {
	c.mu.Lock()
	was := c.faulted
	c.faulted = false
	c.lastFault = nil
	c.mu.Unlock()
	if !was {
		return
	}
	c.logger.Info("card reader recovered", logging.String(logging.FieldEventType, "card_reader_recovered"))
	if err := c.notifier.Publish(ctx, notifications.EventReaderRecovered, nil); err != nil {
		c.logger.Debug("reader recovery notification failed", logging.Error(err))
	}
}

// CommandReader runs a helper once per read and parses the serial it prints.
type CommandReader struct {
	Command []string
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewCommandReader builds a reader around the helper command.
func NewCommandReader(command []string) *CommandReader {
	return &CommandReader{Command: command, run: runOutput}
}

func runOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		err = fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, err
}

// ReadSerial implements Reader.
func (r *CommandReader) ReadSerial(ctx context.Context) (identifier.ID, error) {
	if len(r.Command) == 0 || strings.TrimSpace(r.Command[0]) == "" {
		return "", fmt.Errorf("%w: reader command is empty", ErrMedium)
	}
	run := r.run
	if run == nil {
		run = runOutput
	}
	out, err := run(ctx, r.Command[0], r.Command[1:]...)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrMedium, r.Command[0], err)
	}
	serial, ok := ParseSerial(out)
	if !ok {
		return "", ErrNoCard
	}
	raw, err := hex.DecodeString(serial)
	if err != nil {
		return "", fmt.Errorf("%w: decode serial %q: %v", ErrMedium, serial, err)
	}
	return identifier.FromSerialBytes(raw)
}

// ParseSerial extracts the first 16-hex-digit serial from reader output. A
// line mentioning NFCID2 or IDm wins over any other line.
func ParseSerial(out []byte) (string, bool) {
	var fallback string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		text := scanner.Text()
		label := strings.ToLower(text)
		preferred := strings.Contains(label, "nfcid2") || strings.Contains(label, "idm")
		if preferred {
			if _, rest, found := strings.Cut(text, ":"); found {
				text = rest
			}
		}
		serial, ok := hexRun(text, preferred)
		if !ok {
			continue
		}
		if preferred {
			return serial, true
		}
		if fallback == "" {
			fallback = serial
		}
	}
	return fallback, fallback != ""
}

// hexRun finds a 16-hex-digit serial in text. When spaced is true the line is
// a labelled byte dump like "01  2e  4c ..." and whitespace is ignored;
// otherwise the serial must be a standalone token.
func hexRun(text string, spaced bool) (string, bool) {
	if spaced {
		joined := strings.Join(strings.Fields(text), "")
		if len(joined) >= identifier.CardSerialLength && isHex(joined[:identifier.CardSerialLength]) {
			return strings.ToLower(joined[:identifier.CardSerialLength]), true
		}
		return "", false
	}
	for _, field := range strings.Fields(text) {
		if len(field) == identifier.CardSerialLength && isHex(field) {
			return strings.ToLower(field), true
		}
	}
	return "", false
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if (b < '0' || b > '9') && (b < 'a' || b > 'f') && (b < 'A' || b > 'F') {
			return false
		}
	}
	return true
}
