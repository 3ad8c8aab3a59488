package notifications

import (
	"sync"
	"time"

	"github.com/bissquit/incident-tracker/internal/domain"
)

// QueueItem represents a notification waiting for delivery.
type QueueItem struct {
	ID            string
	IncidentID    int64
	Channel       domain.NotificationChannel
	Payload       NotificationPayload
	Attempts      int
	MaxAttempts   int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
}

// QueueStats is a snapshot of the queue.
type QueueStats struct {
	Pending  int
	Capacity int
}

// Queue is a bounded in-memory delivery queue. Items become fetchable once
// their NextAttemptAt has passed.
type Queue struct {
	mu       sync.Mutex
	items    []*QueueItem
	capacity int
	closed   bool
}

// NewQueue creates a queue holding at most capacity items.
func NewQueue(capacity int) *Queue {
	return &Queue{
		items:    make([]*QueueItem, 0, capacity),
		capacity: capacity,
	}
}

// Enqueue adds an item. It fails with ErrQueueFull when the queue is at capacity.
func (q *Queue) Enqueue(item *QueueItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if len(q.items) >= q.capacity {
		return ErrQueueFull
	}
	q.items = append(q.items, item)
	notificationQueueSize.Set(float64(len(q.items)))
	return nil
}

// FetchReady removes and returns up to limit items due at now, in enqueue order.
func (q *Queue) FetchReady(now time.Time, limit int) []*QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ready []*QueueItem
	remaining := q.items[:0]
	for _, item := range q.items {
		if len(ready) < limit && !item.NextAttemptAt.After(now) {
			ready = append(ready, item)
			continue
		}
		remaining = append(remaining, item)
	}
	// Drop references held past the new length.
	for i := len(remaining); i < len(q.items); i++ {
		q.items[i] = nil
	}
	q.items = remaining
	notificationQueueSize.Set(float64(len(q.items)))
	return ready
}

// Stats returns the current queue depth.
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{Pending: len(q.items), Capacity: q.capacity}
}

// Close rejects further enqueues and returns the items that were still pending.
func (q *Queue) Close() []*QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	pending := q.items
	q.items = nil
	notificationQueueSize.Set(0)
	return pending
}
