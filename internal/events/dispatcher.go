package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Publisher delivers a single event to its destination
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// Dispatcher is a Reporter that queues events and hands them to a Publisher
// from a single worker goroutine. A full queue drops the event.
type Dispatcher struct {
	publisher Publisher
	queue     chan Event
	logger    *zap.Logger

	mu      sync.RWMutex
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewDispatcher creates a dispatcher and starts its worker
func NewDispatcher(publisher Publisher, bufferSize int, logger *zap.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		publisher: publisher,
		queue:     make(chan Event, bufferSize),
		logger:    logger,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	go d.run(ctx)
	return d
}

// Report queues event for delivery
func (d *Dispatcher) Report(event Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		return
	}

	select {
	case d.queue <- stamp(event):
	default:
		d.logger.Warn("Event queue full, dropping event",
			zap.String("type", string(event.Type)),
			zap.String("sessionID", event.SessionID))
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)

	for event := range d.queue {
		if err := d.publisher.Publish(ctx, event); err != nil {
			d.logger.Error("Failed to publish event",
				zap.String("id", event.ID),
				zap.String("type", string(event.Type)),
				zap.Error(err))
		}
	}
}

// Close drains queued events, then closes the publisher.
// ctx bounds how long pending deliveries may take.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-ctx.Done():
		d.cancel()
		<-d.done
	}
	d.cancel()

	return d.publisher.Close()
}
