package pool

import (
	"errors"
	"sync"

	"github.com/eapache/queue"
)

var ErrQueueClosed = errors.New("blocking queue is closed")

// Action is an opaque, zero-argument unit of work. The pool observes no
// return value; whatever an action does with its own failures is the
// action's business.
type Action func()

// BlockingQueue is an unbounded FIFO of actions with a blocking Dequeue.
// The backing ring buffer is only ever touched under mu; consumers that
// find it empty wait on notEmpty instead of spinning.
type BlockingQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    *queue.Queue
	closed   bool
}

func NewBlockingQueue() *BlockingQueue {
	q := &BlockingQueue{items: queue.New()}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends action to the tail and returns the queue size right
// after the append. The size is the pool's scaling signal. There is no
// capacity bound; Enqueue fails only once the queue has been closed.
func (q *BlockingQueue) Enqueue(action Action) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, ErrQueueClosed
	}

	q.items.Add(action)
	size := q.items.Length()
	if size == 1 {
		// Only the empty -> non-empty transition needs a wakeup; every
		// later Enqueue finds consumers already draining. Waking all
		// waiters lets any number of idle workers race for the head,
		// each re-checking the predicate before popping.
		q.notEmpty.Broadcast()
	}

	return size, nil
}

// Dequeue blocks until an action is available and returns it. The second
// return value is false only once the queue has been closed and fully
// drained, which tells a worker to stop.
func (q *BlockingQueue) Dequeue() (Action, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.items.Length() == 0 {
		if q.closed {
			return nil, false
		}
		q.notEmpty.Wait()
	}

	return q.items.Remove().(Action), true
}

// Len reports the number of pending actions.
func (q *BlockingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Close marks the queue closed and wakes every blocked consumer so they
// can drain the remaining actions and exit. Enqueue fails afterwards;
// Dequeue keeps serving until the queue is empty.
func (q *BlockingQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
}
