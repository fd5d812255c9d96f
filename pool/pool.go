package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// DefaultHighWaterMark is the queue depth above which Submit grows the
// roster by one worker.
const DefaultHighWaterMark = 5

var (
	ErrPoolClosed = errors.New("elastic pool is not active")
	ErrNilAction  = errors.New("cannot submit a nil action")
)

// Config configures an ElasticPool. MinWorkers and MaxWorkers are fixed
// at construction; the roster starts at MinWorkers and never exceeds
// MaxWorkers.
type Config struct {
	MinWorkers int
	MaxWorkers int

	// HighWaterMark overrides DefaultHighWaterMark when positive.
	HighWaterMark int

	Logger   *slog.Logger
	Observer Observer
}

func (c *Config) validate() error {
	if c.MinWorkers < 1 {
		return fmt.Errorf("min workers must be at least 1, got %d", c.MinWorkers)
	}
	if c.MaxWorkers < c.MinWorkers {
		return fmt.Errorf("max workers (%d) must not be less than min workers (%d)", c.MaxWorkers, c.MinWorkers)
	}
	if c.HighWaterMark < 0 {
		return fmt.Errorf("high-water mark must not be negative, got %d", c.HighWaterMark)
	}
	if c.HighWaterMark == 0 {
		c.HighWaterMark = DefaultHighWaterMark
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	return nil
}

// ElasticPool owns the shared queue and the current roster of workers.
// Every submission re-evaluates the scaling policy: once the backlog
// exceeds the high-water mark, each further Submit adds one worker until
// the roster reaches MaxWorkers. The roster never shrinks.
type ElasticPool struct {
	queue *BlockingQueue

	// mu guards the roster and the closed flag. It is never acquired by
	// the queue and never held while the queue lock is held, so worker
	// construction happens outside any queue critical section.
	mu      sync.Mutex
	workers []*Worker
	closed  bool

	minWorkers int
	maxWorkers int
	highWater  int

	stop sync.Once
	wg   sync.WaitGroup

	log      *slog.Logger
	observer Observer
}

// New validates cfg, creates the queue and starts MinWorkers workers.
// Each worker is running before New returns.
func New(cfg Config) (*ElasticPool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &ElasticPool{
		queue:      NewBlockingQueue(),
		minWorkers: cfg.MinWorkers,
		maxWorkers: cfg.MaxWorkers,
		highWater:  cfg.HighWaterMark,
		log:        cfg.Logger,
		observer:   cfg.Observer,
	}

	p.log.Info(fmt.Sprintf("starting elastic pool with %d workers", p.minWorkers))
	for i := 0; i < p.minWorkers; i++ {
		p.workers = append(p.workers, newWorker(p.queue, &p.wg, p.log, p.observer))
	}

	return p, nil
}

// Submit enqueues action for execution by some worker. Actions begin
// execution in submission order across the whole pool; completion order
// depends on their durations. Submit is fire-and-forget: it fails only
// after Stop has been called.
func (p *ElasticPool) Submit(action Action) error {
	if action == nil {
		return ErrNilAction
	}

	size, err := p.queue.Enqueue(action)
	if err != nil {
		return ErrPoolClosed
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// once Stop has begun, growing would race its WaitGroup wait; the
	// action itself was enqueued before the queue closed and will still
	// be drained by the existing workers
	if !p.closed && size > p.highWater && len(p.workers) < p.maxWorkers {
		p.workers = append(p.workers, newWorker(p.queue, &p.wg, p.log, p.observer))
		p.log.Info(fmt.Sprintf("new worker started, current number of workers is %d", len(p.workers)))
	}

	return nil
}

// Stop closes the queue, lets the workers drain the remaining actions
// and waits for all of them to exit. Safe to call more than once.
func (p *ElasticPool) Stop() error {
	p.stop.Do(func() {
		p.log.Info("stopping elastic pool")

		// the flag must be set before waiting: any Submit that wins the
		// mutex first has finished its wg.Add, any that loses sees
		// closed and skips growth
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.queue.Close()
		p.wg.Wait()
		p.log.Info("elastic pool has been stopped")
	})
	return nil
}

// WorkerCount reports the current roster size.
func (p *ElasticPool) WorkerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// QueueDepth reports the number of actions waiting for a worker.
func (p *ElasticPool) QueueDepth() int {
	return p.queue.Len()
}
