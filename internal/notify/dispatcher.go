package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/adamara/apiserver/internal/metrics"
)

// DefaultTimeout bounds a single delivery attempt.
const DefaultTimeout = 10 * time.Second

// Dispatcher hands each event to a Sender on its own goroutine. Failures
// are logged and counted, never returned.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(sender Sender, timeout time.Duration, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		sender:  sender,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

// Notify schedules delivery and returns immediately. The delivery
// outlives ctx's cancellation but keeps its values.
func (d *Dispatcher) Notify(ctx context.Context, event Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.WarnContext(ctx, "notification dropped after shutdown",
			"kind", event.Kind, "requestId", event.RequestID)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.deliver(context.WithoutCancel(ctx), event)
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, event Event) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "notification sender panicked",
				"kind", event.Kind, "requestId", event.RequestID, "panic", r)
			d.metrics.Notification(string(event.Kind), "failed")
		}
	}()

	if err := d.sender.Send(ctx, event); err != nil {
		d.logger.ErrorContext(ctx, "notification failed",
			"kind", event.Kind, "requestId", event.RequestID, "error", err)
		d.metrics.Notification(string(event.Kind), "failed")
		return
	}
	d.logger.InfoContext(ctx, "notification sent",
		"kind", event.Kind, "requestId", event.RequestID)
	d.metrics.Notification(string(event.Kind), "sent")
}

// Close stops accepting events and waits for in-flight deliveries or
// ctx, whichever ends first.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
