package events

import (
	"sync"
	"time"
)

const defaultBufferCapacity = 10_000

type message struct {
	ID      string
	Kind    Kind
	Subject string
	Time    time.Time
	Data    []byte
}

// buffer is a bounded FIFO ring shared by publishers and the consumer loop.
// When full, the oldest message is overwritten and counted as dropped.
type buffer struct {
	lock    sync.Mutex
	ring    []*message
	head    int
	size    int
	dropped int
}

func newBuffer(capacity int) *buffer {
	if capacity <= 0 {
		capacity = defaultBufferCapacity
	}
	return &buffer{ring: make([]*message, capacity)}
}

// PushBack reports whether an older message had to be dropped.
func (b *buffer) PushBack(msg *message) bool {
	b.lock.Lock()
	defer b.lock.Unlock()

	tail := (b.head + b.size) % len(b.ring)
	if b.size == len(b.ring) {
		b.ring[b.head] = msg
		b.head = (b.head + 1) % len(b.ring)
		b.dropped++
		return true
	}
	b.ring[tail] = msg
	b.size++
	return false
}

func (b *buffer) Pop() *message {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.size == 0 {
		return nil
	}
	msg := b.ring[b.head]
	b.ring[b.head] = nil
	b.head = (b.head + 1) % len(b.ring)
	b.size--
	return msg
}

func (b *buffer) Size() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.size
}

func (b *buffer) Dropped() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.dropped
}
