// Package events fans committed presence changes out to live observers such
// as the signage websocket feed.
//
// Publish never blocks: a subscriber whose buffer is full misses the event.
package events

import (
	"log/slog"
	"sync"
	"time"

	"kiosk/internal/logging"
)

// Event types.
const (
	TypePresence = "presence"
)

// Event is one committed toggle.
type Event struct {
	Type         string    `json:"type"`
	RequestID    string    `json:"request_id,omitempty"`
	Identifier   string    `json:"identifier"`
	MemberID     string    `json:"member_id"`
	DisplayName  string    `json:"display_name,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	Action       string    `json:"action"`
	Source       string    `json:"source"`
	Day          string    `json:"day"`
	TotalEnters  int64     `json:"total_enters"`
	DailyEnters  int64     `json:"daily_enters"`
	PresentCount int       `json:"present_count"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Subscription receives published events on C until it is closed.
type Subscription struct {
	C chan Event

	id        uint64
	done      chan struct{}
	closeOnce sync.Once
}

// Done is closed once the subscription is removed from the hub.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Hub is an in-process broadcast primitive.
type Hub struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*Subscription
}

// NewHub constructs an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logging.NewComponentLogger(logger, "events"),
		subs:   make(map[uint64]*Subscription),
	}
}

// Subscribe registers a subscriber with a bounded buffer.
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &Subscription{
		C:    make(chan Event, buffer),
		id:   h.nextID,
		done: make(chan struct{}),
	}
	h.subs[sub.id] = sub
	return sub
}

// Unsubscribe removes sub. C is never closed so a concurrent Publish cannot panic.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	delete(h.subs, sub.id)
	h.mu.Unlock()
	sub.close()
}

// Publish delivers ev to every subscriber that has room for it.
func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	if ev.Type == "" {
		ev.Type = TypePresence
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		select {
		case <-sub.done:
			continue
		default:
		}
		select {
		case sub.C <- ev:
		default:
			h.logger.Debug("event dropped for slow subscriber", logging.Int64("subscriber", int64(sub.id)))
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
