package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/zulandar/signalbox/internal/metrics"
)

var (
	// ErrQueueFull is returned by Enqueue when the backlog is at capacity.
	ErrQueueFull = errors.New("notify: queue full")
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("notify: queue closed")
)

// QueueOpts holds parameters for creating a Queue.
type QueueOpts struct {
	Notifier Notifier
	Workers  int           // concurrent deliveries (default 4)
	Size     int           // pending notifications before Enqueue fails (default 256)
	Timeout  time.Duration // per-attempt bound (default 10s)
	Logger   zerolog.Logger
}

// Queue runs notifications on a fixed pool of workers. Enqueue never blocks;
// a full backlog is reported to the caller instead of spawning more work.
type Queue struct {
	notifier Notifier
	jobs     chan Notification
	workers  int
	timeout  time.Duration
	log      zerolog.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewQueue creates a Queue. Call Start to begin delivering.
func NewQueue(opts QueueOpts) (*Queue, error) {
	if opts.Notifier == nil {
		return nil, fmt.Errorf("notify: notifier is required")
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Size <= 0 {
		opts.Size = 256
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Queue{
		notifier: opts.Notifier,
		jobs:     make(chan Notification, opts.Size),
		workers:  opts.Workers,
		timeout:  opts.Timeout,
		log:      opts.Logger,
	}, nil
}

// Start launches the workers. Calling it more than once has no effect.
func (q *Queue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.closed {
		return
	}
	q.started = true
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
}

// Enqueue schedules n for delivery.
func (q *Queue) Enqueue(n Notification) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- n:
		return nil
	default:
		metrics.Notifications.WithLabelValues("dropped").Inc()
		return ErrQueueFull
	}
}

// Close stops accepting notifications and waits for the backlog to drain.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}

// Pending returns the number of queued notifications.
func (q *Queue) Pending() int {
	return len(q.jobs)
}

func (q *Queue) work() {
	defer q.wg.Done()
	for n := range q.jobs {
		q.deliver(n)
	}
}

func (q *Queue) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	start := time.Now()
	err := q.notifier.Notify(ctx, n)
	metrics.NotifyDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		q.log.Warn().Err(err).
			Uint("message_id", n.MessageID).
			Uint("recipient_id", n.Recipient.ID).
			Msg("offline notification failed")
		return
	}
	metrics.Notifications.WithLabelValues("sent").Inc()
}
