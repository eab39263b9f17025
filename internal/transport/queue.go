package transport

import (
	"sync"

	"gitnext/internal/protocol"
)

// queue is an unbounded mailbox. Push never blocks; a goroutine moves
// queued messages onto out in order.
type queue struct {
	mu     sync.Mutex
	items  []protocol.Message
	closed bool
	wake   chan struct{}
	done   chan struct{}
	out    chan protocol.Message
}

func newQueue() *queue {
	q := &queue{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		out:  make(chan protocol.Message),
	}
	go q.deliver()
	return q
}

func (q *queue) push(m protocol.Message) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, m)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// close stops delivery. Messages not yet received are dropped.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

func (q *queue) deliver() {
	defer close(q.out)
	for {
		q.mu.Lock()
		pending := q.items
		q.items = nil
		q.mu.Unlock()

		for _, m := range pending {
			select {
			case q.out <- m:
			case <-q.done:
				return
			}
		}

		select {
		case <-q.wake:
		case <-q.done:
			return
		}
	}
}
