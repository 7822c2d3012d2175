// Package ingest provides the unbounded multi-producer single-consumer queue
// between identifier sources and the pipeline coordinator.
//
// Enqueue never blocks, so a producer waiting on its own medium is never held
// up by the consumer. Items from one producer are dequeued in the order that
// producer enqueued them; items from different producers interleave in
// arrival order.
package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"kiosk/internal/identifier"
)

// Source names the input channel that produced an item.
type Source string

const (
	SourceCard    Source = "card"
	SourceConsole Source = "console"
	SourceRemote  Source = "remote"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained, and
// by Enqueue after Close.
var ErrClosed = errors.New("ingest queue closed")

// Item is one normalized identification waiting to be processed.
type Item struct {
	ID         identifier.ID
	Source     Source
	ReceivedAt time.Time
}

// Queue is an unbounded FIFO.
type Queue struct {
	mu     sync.Mutex
	items  []Item
	closed bool
	wake   chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Enqueue appends item and wakes the consumer.
func (q *Queue) Enqueue(item Item) error {
	if item.ReceivedAt.IsZero() {
		item.ReceivedAt = time.Now()
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.signal()
	return nil
}

// Dequeue blocks until an item is available, the queue is closed and empty,
// or ctx is done.
func (q *Queue) Dequeue(ctx context.Context) (Item, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = Item{}
			q.items = q.items[1:]
			if len(q.items) == 0 {
				q.items = nil
			}
			q.mu.Unlock()
			return item, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Item{}, ErrClosed
		}

		select {
		case <-ctx.Done():
			return Item{}, ctx.Err()
		case <-q.wake:
		}
	}
}

// Len reports the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting items. Items already queued remain available.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
