package asyncserial

import "sync"

type recvState int

const (
	recvOK recvState = iota
	recvEmpty
	recvClosed
)

// queue is an unbounded FIFO with any number of senders and a single
// receiver. Send never blocks. Once closed, Send fails and the receiver
// drains whatever was already queued before observing the close.
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	head   int
	closed bool
	ready  chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{ready: make(chan struct{}, 1)}
}

func (q *queue[T]) Send(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrDisconnected
	}
	q.items = append(q.items, v)
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// TryRecv pops the next item without blocking.
func (q *queue[T]) TryRecv() (T, recvState) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if q.head < len(q.items) {
		v := q.items[q.head]
		q.items[q.head] = zero
		q.head++
		if q.head == len(q.items) {
			q.items = q.items[:0]
			q.head = 0
		}
		return v, recvOK
	}
	if q.closed {
		return zero, recvClosed
	}
	return zero, recvEmpty
}

// Recv blocks until an item is available or the queue is closed and empty.
func (q *queue[T]) Recv() (T, bool) {
	for {
		v, st := q.TryRecv()
		switch st {
		case recvOK:
			return v, true
		case recvClosed:
			return v, false
		}
		<-q.ready
	}
}

// Ready fires after a Send and is closed by Close. Only the receiver may
// wait on it.
func (q *queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Close is idempotent.
func (q *queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ready)
}
