package events

import (
	"context"
	"encoding/json"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	eventSource         string = "shovel.api"
	defaultTopic        string = "shovel.events"
	defaultDrainTimeout        = 5 * time.Second
)

// Writer is the interface to be implemented by the underlying writer.
type Writer interface {
	Write(ctx context.Context, topic string, e cloudevents.Event) error
	Close(ctx context.Context) error
}

// Publisher is what the services depend on. Publishing never blocks on the
// writer and never fails the calling transition.
type Publisher interface {
	Publish(ctx context.Context, kind Kind, subject string, payload any)
}

// EventProducer queues lifecycle events and writes them from a single
// goroutine, so a slow broker never holds up a job transition. Events keep
// the id and time of the transition that published them.
type EventProducer struct {
	buffer       *buffer
	wakeCh       chan struct{}
	doneCh       chan struct{}
	stoppedCh    chan struct{}
	writer       Writer
	topic        string
	drainTimeout time.Duration
	log          *zap.SugaredLogger
}

// Make sure we conform to Publisher interface
var _ Publisher = (*EventProducer)(nil)

func NewEventProducer(w Writer, opts ...ProducerOptions) *EventProducer {
	ep := &EventProducer{
		buffer:       newBuffer(defaultBufferCapacity),
		wakeCh:       make(chan struct{}, 1),
		doneCh:       make(chan struct{}),
		stoppedCh:    make(chan struct{}),
		writer:       w,
		topic:        defaultTopic,
		drainTimeout: defaultDrainTimeout,
		log:          zap.S().Named("event_producer"),
	}

	for _, o := range opts {
		o(ep)
	}

	go ep.run()
	return ep
}

func (ep *EventProducer) Publish(_ context.Context, kind Kind, subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		ep.log.Errorw("failed to marshal event", "kind", kind, "error", err)
		return
	}

	if dropped := ep.buffer.PushBack(&message{
		ID:      uuid.NewString(),
		Kind:    kind,
		Subject: subject,
		Time:    time.Now(),
		Data:    data,
	}); dropped {
		ep.log.Warnw("event buffer full, dropped the oldest event", "kind", kind, "dropped_total", ep.buffer.Dropped())
	}

	select {
	case ep.wakeCh <- struct{}{}:
	default:
	}
}

// Close writes what is still buffered, within the drain timeout, then closes
// the writer.
func (ep *EventProducer) Close() error {
	closeCtx, cancel := context.WithTimeout(context.Background(), ep.drainTimeout)
	defer cancel()

	g, ctx := errgroup.WithContext(closeCtx)
	g.Go(func() error {
		close(ep.doneCh)
		select {
		case <-ep.stoppedCh:
		case <-ctx.Done():
			return ctx.Err()
		}
		return ep.writer.Close(ctx)
	})
	if err := g.Wait(); err != nil {
		ep.log.Errorw("event producer closed with error", "error", err, "unsent", ep.buffer.Size())
		return err
	}

	ep.log.Info("event producer closed")
	return nil
}

func (ep *EventProducer) run() {
	defer close(ep.stoppedCh)

	for {
		if msg := ep.buffer.Pop(); msg != nil {
			ep.send(msg)
			continue
		}

		select {
		case <-ep.wakeCh:
		case <-ep.doneCh:
			ep.drain()
			return
		}
	}
}

func (ep *EventProducer) drain() {
	deadline := time.Now().Add(ep.drainTimeout)
	for time.Now().Before(deadline) {
		msg := ep.buffer.Pop()
		if msg == nil {
			return
		}
		ep.send(msg)
	}
}

func (ep *EventProducer) send(msg *message) {
	e := cloudevents.NewEvent()
	e.SetID(msg.ID)
	e.SetSource(eventSource)
	e.SetType(string(msg.Kind))
	e.SetSubject(msg.Subject)
	e.SetTime(msg.Time)
	_ = e.SetData(*cloudevents.StringOfApplicationJSON(), msg.Data)

	if err := ep.writer.Write(context.Background(), ep.topic, e); err != nil {
		ep.log.Errorw("failed to send event", "error", err, "id", msg.ID, "kind", msg.Kind, "subject", msg.Subject)
	}
}
