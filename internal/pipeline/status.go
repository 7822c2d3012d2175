package pipeline

import (
	"time"

	"kiosk/internal/directory"
	"kiosk/internal/ingest"
	"kiosk/internal/presence"
)

// ItemSummary describes the most recently finished item.
type ItemSummary struct {
	Identifier string
	Source     string
	MemberID   string
	Action     string
	Dropped    string
	FinishedAt time.Time
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	Running    bool
	StartedAt  time.Time
	Processed  int64
	Dropped    int64
	QueueDepth int
	LastError  string
	LastItem   *ItemSummary
}

// Status returns a copy of the coordinator's counters.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := Status{
		Running:   c.running,
		StartedAt: c.startedAt,
		Processed: c.processed,
		Dropped:   c.dropped,
	}
	if c.queue != nil {
		status.QueueDepth = c.queue.Len()
	}
	if c.lastErr != nil {
		status.LastError = c.lastErr.Error()
	}
	if c.lastItem != nil {
		item := *c.lastItem
		status.LastItem = &item
	}
	return status
}

func (c *Coordinator) complete(item ingest.Item, action presence.Action, profile directory.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processed++
	c.lastItem = &ItemSummary{
		Identifier: item.ID.String(),
		Source:     string(item.Source),
		MemberID:   profile.MemberID,
		Action:     string(action),
		FinishedAt: time.Now(),
	}
}

func (c *Coordinator) drop(item ingest.Item, reason string, err error) {
	if c.metrics != nil {
		c.metrics.ItemsDropped.WithLabelValues(reason).Inc()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropped++
	if err != nil {
		c.lastErr = err
	}
	c.lastItem = &ItemSummary{
		Identifier: item.ID.String(),
		Source:     string(item.Source),
		Dropped:    reason,
		FinishedAt: time.Now(),
	}
}

func (c *Coordinator) setLastError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = err
}
