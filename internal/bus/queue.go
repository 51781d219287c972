package bus

import (
	"context"
	"errors"
	"sync"

	"main/internal/obs"
	"main/internal/schema"
)

var (
	ErrQueueFull   = errors.New("tick queue full")
	ErrQueueClosed = errors.New("tick queue closed")
)

// TickEvent is one decoded record with its source ring.
type TickEvent struct {
	Ring string
	Tick schema.Tick
}

// Queue is a bounded, non-blocking queue between the ring readers and the
// decision collaborator. A full queue drops the new event rather than stall
// the reader. Safe for concurrent publishers and a concurrent Close.
type Queue struct {
	mu      sync.RWMutex
	ch      chan TickEvent
	closed  bool
	metrics *obs.Metrics
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int, metrics *obs.Metrics) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan TickEvent, capacity), metrics: metrics}
}

// TryPublish enqueues an event without blocking. The read lock keeps Close
// from closing the channel under a publisher mid-send.
func (q *Queue) TryPublish(e TickEvent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		q.metrics.AddQueueDrop()
		return ErrQueueFull
	}
}

// Close stops the queue from accepting new events.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Run consumes events until the context is done or the queue is closed.
func (q *Queue) Run(ctx context.Context, handler func(TickEvent)) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-q.ch:
			if !ok {
				return
			}
			handler(e)
		}
	}
}
