package pool

import (
	"fmt"
	"log/slog"
	"sync"
)

// Observer receives pool lifecycle notifications. All methods are
// called from worker goroutines, never under the pool's locks, so an
// observer may call back into the pool. They may run concurrently and
// must be safe for that.
type Observer interface {
	// WorkerStarted is called once per worker, on the worker's own
	// goroutine before its loop begins.
	WorkerStarted(workerID uint64)

	// ActionStarted is called on the worker's goroutine right before it
	// runs a dequeued action.
	ActionStarted(workerID uint64)

	// ActionFinished is called after the action returns. recovered is
	// non-nil when the action panicked and the worker recovered.
	ActionFinished(workerID uint64, recovered any)
}

// Worker is a long-lived consumer of the shared queue. Constructing one
// starts its goroutine immediately; there is no separate start step. A
// worker only exits when the queue reports closed-and-drained.
type Worker struct {
	id       uint64
	queue    *BlockingQueue
	wg       *sync.WaitGroup
	log      *slog.Logger
	observer Observer
}

func newWorker(queue *BlockingQueue, wg *sync.WaitGroup, log *slog.Logger, observer Observer) *Worker {
	w := &Worker{
		id:       workerSeq.Next(),
		queue:    queue,
		wg:       wg,
		log:      log,
		observer: observer,
	}

	wg.Add(1)
	go w.run()

	return w
}

func (w *Worker) run() {
	w.log.Info(fmt.Sprintf("starting worker_%d", w.id))

	// notified here rather than in newWorker so the callback never runs
	// under the pool mutex and may call back into the pool
	if w.observer != nil {
		w.observer.WorkerStarted(w.id)
	}

	defer func() {
		w.wg.Done()
		w.log.Info(fmt.Sprintf("worker_%d has been stopped", w.id))
	}()

	for {
		action, ok := w.queue.Dequeue()
		if !ok {
			return
		}
		w.execute(action)
	}
}

// execute runs a single action, recovering from panics so one bad action
// cannot silently retire the worker.
func (w *Worker) execute(action Action) {
	if w.observer != nil {
		w.observer.ActionStarted(w.id)
	}

	defer func() {
		rec := recover()
		if rec != nil {
			w.log.Error(fmt.Sprintf("worker_%d recovered from panic in action: %v", w.id, rec))
		}
		if w.observer != nil {
			w.observer.ActionFinished(w.id, rec)
		}
	}()

	action()
}
