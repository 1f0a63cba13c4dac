package notification

import (
	"context"
	"sync"
)

// Recorder keeps notified messages in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Make sure we conform to Notifier interface
var _ Notifier = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Notify(_ context.Context, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message{}, r.messages...)
}

func (r *Recorder) Subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	subjects := make([]string, 0, len(r.messages))
	for _, m := range r.messages {
		subjects = append(subjects, m.Subject)
	}
	return subjects
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = nil
}
