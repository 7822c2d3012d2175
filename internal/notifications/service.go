package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kiosk/internal/config"
)

const userAgent = "kiosk/1.0"

// Event names an operator-facing occurrence.
type Event string

const (
	EventStoreFailed     Event = "store_failed"
	EventReaderFault     Event = "reader_fault"
	EventReaderRecovered Event = "reader_recovered"
	EventDaemonStarted   Event = "daemon_started"
	EventTest            Event = "test"
)

// Payload carries event details. Keys are event specific.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:      topic,
		client:        &http.Client{Timeout: timeout},
		storeFailures: cfg.Notifications.StoreFailures,
		readerFaults:  cfg.Notifications.ReaderFaults,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint      string
	client        *http.Client
	storeFailures bool
	readerFaults  bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	msg, ok := n.render(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) render(event Event, data Payload) (payload, bool) {
	switch event {
	case EventStoreFailed:
		if !n.storeFailures {
			return payload{}, false
		}
		return payload{
			title:    "Kiosk - State Write Failed",
			message:  fmt.Sprintf("❌ Presence for %s was not recorded: %s", stringValue(data, "identifier", "unknown"), stringValue(data, "error", "unknown error")),
			tags:     []string{"kiosk", "store", "alert"},
			priority: "high",
		}, true
	case EventReaderFault:
		if !n.readerFaults {
			return payload{}, false
		}
		return payload{
			title:    "Kiosk - Card Reader Fault",
			message:  fmt.Sprintf("⚠️ Card reader unavailable: %s", stringValue(data, "error", "unknown error")),
			tags:     []string{"kiosk", "reader", "fault"},
			priority: "high",
		}, true
	case EventReaderRecovered:
		if !n.readerFaults {
			return payload{}, false
		}
		return payload{
			title:   "Kiosk - Card Reader Recovered",
			message: fmt.Sprintf("✅ Card reader is reading again after %s", stringValue(data, "downtime", "an outage")),
			tags:    []string{"kiosk", "reader", "recovered"},
		}, true
	case EventDaemonStarted:
		message := "Kiosk daemon started"
		if present := stringValue(data, "present", ""); present != "" {
			message = fmt.Sprintf("%s with %s members present", message, present)
		}
		return payload{
			title:    "Kiosk - Started",
			message:  message,
			tags:     []string{"kiosk", "daemon", "started"},
			priority: "low",
		}, true
	case EventTest:
		return payload{
			title:    "Kiosk - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"kiosk", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func stringValue(data Payload, key, fallback string) string {
	value, ok := data[key]
	if !ok || value == nil {
		return fallback
	}
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case error:
		s = v.Error()
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}
	if s = strings.TrimSpace(s); s == "" {
		return fallback
	}
	return s
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
