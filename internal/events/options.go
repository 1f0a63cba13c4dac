package events

import "time"

type ProducerOptions func(e *EventProducer)

func WithOutputTopic(topic string) ProducerOptions {
	return func(e *EventProducer) {
		if topic != "" {
			e.topic = topic
		}
	}
}

// WithBufferCapacity bounds how many unsent events are kept while the writer
// is slow or down.
func WithBufferCapacity(n int) ProducerOptions {
	return func(e *EventProducer) {
		e.buffer = newBuffer(n)
	}
}

// WithDrainTimeout bounds how long Close keeps writing buffered events.
func WithDrainTimeout(d time.Duration) ProducerOptions {
	return func(e *EventProducer) {
		if d > 0 {
			e.drainTimeout = d
		}
	}
}
