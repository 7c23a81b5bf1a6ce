package subscription

import (
	"sync"

	"google.golang.org/protobuf/proto"

	"github.com/spineio/spineweb.go/internal/queue"
)

// Broadcast delivers every published message to each of its consumers.
// Consumers never block each other or the publisher.
//
// Messages published before the first consumer arrives are kept and handed to
// that consumer, so changes reported right after subscribing are not lost.
type Broadcast struct {
	mu        sync.Mutex
	consumers map[uint64]*queue.Queue[proto.Message]
	backlog   []proto.Message
	next      uint64
	closed    bool
}

func newBroadcast() *Broadcast {
	return &Broadcast{consumers: make(map[uint64]*queue.Queue[proto.Message])}
}

// Subscribe adds a consumer receiving messages published from now on.
// The channel is closed by cancel or, once drained, when the broadcast ends.
// Consumers call cancel when they are done; it may be called more than once.
func (b *Broadcast) Subscribe() (<-chan proto.Message, func()) {
	q := queue.New[proto.Message]()

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, msg := range b.backlog {
		q.Push(msg)
	}
	b.backlog = nil

	if b.closed {
		q.Close()
		return q.Out(), q.Stop
	}

	id := b.next
	b.next++
	b.consumers[id] = q

	var once sync.Once
	return q.Out(), func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.consumers, id)
			b.mu.Unlock()
			q.Stop()
		})
	}
}

func (b *Broadcast) publish(msg proto.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	if len(b.consumers) == 0 {
		b.backlog = append(b.backlog, msg)
		return
	}
	for _, q := range b.consumers {
		q.Push(msg)
	}
}

// close ends the broadcast. Consumers receive what was already published.
func (b *Broadcast) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, q := range b.consumers {
		q.Close()
		delete(b.consumers, id)
	}
}
