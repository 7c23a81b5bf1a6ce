// Package queue hands values pushed from callbacks to a channel consumer
// without ever blocking the pushing side.
package queue

import "sync"

// Queue is an unbounded FIFO drained into the channel returned by Out.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	out      chan T
	notify   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func New[T any]() *Queue[T] {
	q := &Queue[T]{
		out:    make(chan T),
		notify: make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go q.pump()
	return q
}

// Push appends v. It reports false when the queue no longer accepts values.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	q.wake()
	return true
}

func (q *Queue[T]) Out() <-chan T {
	return q.out
}

// Close stops accepting values. Queued values are still delivered, then Out
// is closed.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.wake()
}

// Stop drops queued values, closes Out and waits for delivery to end.
func (q *Queue[T]) Stop() {
	q.Close()
	q.stopOnce.Do(func() { close(q.stop) })
	<-q.done
}

func (q *Queue[T]) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue[T]) pump() {
	defer close(q.done)
	defer close(q.out)

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()

			select {
			case q.out <- v:
			case <-q.stop:
				return
			}
			continue
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return
		}

		select {
		case <-q.notify:
		case <-q.stop:
			return
		}
	}
}
