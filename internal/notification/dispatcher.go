// Package notification moves room events off the request path.  A
// Dispatcher queues events in a bounded channel and a fixed pool of workers
// hands them to the underlying sender (RabbitMQ in production).
package notification

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/restaurant-table-reservation/internal/metrics"
	"github.com/iliyamo/restaurant-table-reservation/internal/queue"
)

// Sender delivers a single event.
type Sender interface {
	Publish(ctx context.Context, ev queue.Event) error
}

const sendTimeout = 5 * time.Second

// Dispatcher is a worker pool in front of a Sender.  Publish never blocks:
// when the buffer is full the event is dropped and counted.
type Dispatcher struct {
	size    int
	jobs    chan queue.Event
	sender  Sender
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewDispatcher creates a dispatcher with size workers and a queue of buffer
// events.  Workers start with Run.
func NewDispatcher(size, buffer int, sender Sender, m *metrics.Metrics, log *zap.Logger) *Dispatcher {
	if size < 1 {
		size = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		size:    size,
		jobs:    make(chan queue.Event, buffer),
		sender:  sender,
		metrics: m,
		log:     log,
	}
}

// Publish enqueues ev.  It always returns nil; dropped events are logged.
func (d *Dispatcher) Publish(_ context.Context, ev queue.Event) error {
	select {
	case d.jobs <- ev:
	default:
		d.metrics.ObserveNotification(ev.Name, metrics.OutcomeDropped)
		d.log.Warn("notification queue full, dropping event",
			zap.String("event", ev.Name), zap.String("room", ev.Room))
	}
	return nil
}

// Run starts the workers and blocks until ctx is cancelled and every worker
// has drained what was already queued.
func (d *Dispatcher) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < d.size; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.worker(ctx, id)
		}(i)
	}
	wg.Wait()
	return nil
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	d.log.Debug("notification worker started", zap.Int("worker", id))
	for {
		select {
		case ev := <-d.jobs:
			d.send(ev)
		case <-ctx.Done():
			d.drain()
			d.log.Debug("notification worker stopped", zap.Int("worker", id))
			return
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.jobs:
			d.send(ev)
		default:
			return
		}
	}
}

// send runs on a fresh context: the request that produced ev is long gone.
func (d *Dispatcher) send(ev queue.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := d.sender.Publish(ctx, ev); err != nil {
		d.metrics.ObserveNotification(ev.Name, metrics.OutcomeFailed)
		d.log.Warn("notification delivery failed",
			zap.String("event", ev.Name), zap.String("room", ev.Room), zap.Error(err))
		return
	}
	d.metrics.ObserveNotification(ev.Name, metrics.OutcomeSuccess)
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int { return len(d.jobs) }
