package notification

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const sendTimeout = 30 * time.Second

// Notifier queues an email. It never reports delivery failures to the
// caller; a state change is never rolled back because an email failed.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

// Dispatcher sends queued messages from a single background goroutine.
// When the queue is full new messages are dropped and logged.
type Dispatcher struct {
	sender Sender
	queue  chan Message
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// Make sure we conform to Notifier interface
var _ Notifier = (*Dispatcher)(nil)

func NewDispatcher(sender Sender, size int) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	d := &Dispatcher{
		sender: sender,
		queue:  make(chan Message, size),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) Notify(_ context.Context, msg Message) {
	if msg.To == "" {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		zap.S().Named("email").Warnw("email dispatcher closed, dropping message", "to", msg.To, "subject", msg.Subject)
		return
	}
	select {
	case d.queue <- msg:
	default:
		zap.S().Named("email").Warnw("email queue full, dropping message", "to", msg.To, "subject", msg.Subject)
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := d.sender.Send(ctx, msg); err != nil {
			zap.S().Named("email").Errorw("failed to send email", "to", msg.To, "subject", msg.Subject, "error", err)
		}
		cancel()
	}
}

// Close drains the queue and waits for in-flight sends. Messages queued
// after Close are dropped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
