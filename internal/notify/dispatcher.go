package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/program-registrations/internal/metrics"
)

// publishTimeout bounds a single backend call.
const publishTimeout = 2 * time.Second

// Dispatcher decouples request handling from the publisher backend. Events
// go into a bounded buffer drained by one goroutine; Enqueue never blocks.
type Dispatcher struct {
	pub Publisher
	log *zap.Logger
	ch  chan Event

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewDispatcher starts the drain goroutine.
func NewDispatcher(pub Publisher, size int, log *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	d := &Dispatcher{
		pub:  pub,
		log:  log,
		ch:   make(chan Event, size),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

// Enqueue schedules ev for publishing. When the buffer is full the event is
// dropped and counted.
func (d *Dispatcher) Enqueue(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.NotifyDropped.Inc()
		return
	}
	select {
	case d.ch <- ev:
	default:
		metrics.NotifyDropped.Inc()
		d.log.Warn("notify buffer full, dropping event",
			zap.String("type", ev.Type),
			zap.String("registration_id", ev.RegistrationID),
		)
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for ev := range d.ch {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := d.pub.Publish(ctx, ev); err != nil {
			metrics.NotifyFailed.Inc()
			d.log.Error("publish event", zap.String("type", ev.Type), zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting events and waits for the buffer to drain or ctx to
// expire. Events enqueued after Close are dropped.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.ch)
	}
	d.mu.Unlock()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
