package pool

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)
import "github.com/stretchr/testify/require"

var slogger = slog.New(slog.NewTextHandler(os.Stdout, nil))

type counterTest struct {
	count int
	mu    *sync.Mutex
}

func NewCounterTest() *counterTest {
	return &counterTest{
		count: 0,
		mu:    &sync.Mutex{},
	}
}

func (c *counterTest) Inc() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

func (c *counterTest) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

func TestElasticPool_RejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{MinWorkers: 0, MaxWorkers: 10, Logger: slogger})
	require.Error(t, err)

	_, err = New(Config{MinWorkers: 5, MaxWorkers: 3, Logger: slogger})
	require.Error(t, err)

	_, err = New(Config{MinWorkers: 1, MaxWorkers: 1, HighWaterMark: -1, Logger: slogger})
	require.Error(t, err)
}

func TestElasticPool_Work(t *testing.T) {
	p, err := New(Config{MinWorkers: 3, MaxWorkers: 10, Logger: slogger})
	require.NoError(t, err)

	c := NewCounterTest()
	wg := &sync.WaitGroup{}

	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			c.Inc()
		}))
	}

	// we'll get a timeout failure if the actions weren't processed
	wg.Wait()
	require.NoError(t, p.Stop())

	require.Equal(t, 20, c.Count())
}

func TestElasticPool_SingleWorkerNeverGrows(t *testing.T) {
	p, err := New(Config{MinWorkers: 1, MaxWorkers: 1, Logger: slogger})
	require.NoError(t, err)

	c := NewCounterTest()
	wg := &sync.WaitGroup{}

	for i := 0; i < 5; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			c.Inc()
		}))
		require.Equal(t, 1, p.WorkerCount())
	}

	wg.Wait()
	require.NoError(t, p.Stop())

	require.Equal(t, 5, c.Count())
	require.Equal(t, 1, p.WorkerCount())
}

func TestElasticPool_GrowsUnderBacklog(t *testing.T) {
	p, err := New(Config{MinWorkers: 3, MaxWorkers: 10, Logger: slogger})
	require.NoError(t, err)
	require.Equal(t, 3, p.WorkerCount())

	// gate keeps every worker busy so the backlog builds up across
	// submissions and the scaling policy has to kick in
	gate := make(chan struct{})
	wg := &sync.WaitGroup{}

	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			<-gate
		}))
	}

	grown := p.WorkerCount()
	require.Greater(t, grown, 3)
	require.LessOrEqual(t, grown, 10)

	close(gate)
	wg.Wait()
	require.NoError(t, p.Stop())

	// the roster never shrinks once grown
	require.Equal(t, grown, p.WorkerCount())
}

func TestElasticPool_StartOrderMatchesSubmissionOrder(t *testing.T) {
	// a single worker makes the observed start order deterministic
	p, err := New(Config{MinWorkers: 1, MaxWorkers: 1, Logger: slogger})
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	wg := &sync.WaitGroup{}

	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}

	wg.Wait()
	require.NoError(t, p.Stop())

	require.Len(t, order, 50)
	for i, v := range order {
		require.Equal(t, i, v)
	}
}

func TestElasticPool_ConcurrentSubmittersLoseNothing(t *testing.T) {
	p, err := New(Config{MinWorkers: 2, MaxWorkers: 8, Logger: slogger})
	require.NoError(t, err)

	c := NewCounterTest()
	actionsDone := &sync.WaitGroup{}
	submitters := &sync.WaitGroup{}

	for i := 0; i < 10; i++ {
		submitters.Add(1)
		go func() {
			defer submitters.Done()
			for j := 0; j < 50; j++ {
				actionsDone.Add(1)
				require.NoError(t, p.Submit(func() {
					defer actionsDone.Done()
					c.Inc()
				}))
			}
		}()
	}

	submitters.Wait()
	actionsDone.Wait()
	require.NoError(t, p.Stop())

	require.Equal(t, 500, c.Count())
	require.LessOrEqual(t, p.WorkerCount(), 8)
}

func TestElasticPool_PanickingActionDoesNotKillWorker(t *testing.T) {
	p, err := New(Config{MinWorkers: 1, MaxWorkers: 1, Logger: slogger})
	require.NoError(t, err)

	wg := &sync.WaitGroup{}
	wg.Add(1)
	require.NoError(t, p.Submit(func() {
		defer wg.Done()
		panic("boom")
	}))

	c := NewCounterTest()
	wg.Add(1)
	require.NoError(t, p.Submit(func() {
		defer wg.Done()
		c.Inc()
	}))

	wg.Wait()
	require.NoError(t, p.Stop())

	// the single worker survived the panic and ran the next action
	require.Equal(t, 1, c.Count())
}

func TestElasticPool_SubmitAfterStopFails(t *testing.T) {
	p, err := New(Config{MinWorkers: 1, MaxWorkers: 2, Logger: slogger})
	require.NoError(t, err)

	require.NoError(t, p.Stop())
	require.ErrorIs(t, p.Submit(func() {}), ErrPoolClosed)
	require.ErrorIs(t, p.Submit(nil), ErrNilAction)
}

func TestElasticPool_MultipleStopsDontPanic(t *testing.T) {
	p, err := New(Config{MinWorkers: 2, MaxWorkers: 4, Logger: slogger})
	require.NoError(t, err)

	// We're just checking to make sure multiple
	// calls to stop don't cause a panic
	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())
}

func TestElasticPool_StopDrainsQueuedActions(t *testing.T) {
	p, err := New(Config{MinWorkers: 1, MaxWorkers: 1, Logger: slogger})
	require.NoError(t, err)

	c := NewCounterTest()
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Submit(func() {
			time.Sleep(time.Millisecond)
			c.Inc()
		}))
	}

	// Stop must wait for the backlog to drain before returning
	require.NoError(t, p.Stop())
	require.Equal(t, 20, c.Count())
}

type recordingObserver struct {
	mu       sync.Mutex
	spawned  []uint64
	started  int
	finished int
	panics   int
}

func (o *recordingObserver) WorkerStarted(workerID uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.spawned = append(o.spawned, workerID)
}

func (o *recordingObserver) ActionStarted(uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started++
}

func (o *recordingObserver) ActionFinished(_ uint64, recovered any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished++
	if recovered != nil {
		o.panics++
	}
}

// reentrantObserver calls back into the pool from WorkerStarted, which
// must not deadlock even when the worker was spawned on the growth path.
type reentrantObserver struct {
	mu     sync.Mutex
	pool   *ElasticPool
	counts []int
}

func (o *reentrantObserver) setPool(p *ElasticPool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pool = p
}

func (o *reentrantObserver) WorkerStarted(uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.pool != nil {
		o.counts = append(o.counts, o.pool.WorkerCount())
	}
}

func (o *reentrantObserver) ActionStarted(uint64) {}

func (o *reentrantObserver) ActionFinished(uint64, any) {}

func (o *reentrantObserver) observed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.counts)
}

func TestElasticPool_ObserverMayCallBackIntoPool(t *testing.T) {
	o := &reentrantObserver{}
	p, err := New(Config{MinWorkers: 1, MaxWorkers: 4, Logger: slogger, Observer: o})
	require.NoError(t, err)
	o.setPool(p)

	gate := make(chan struct{})
	wg := &sync.WaitGroup{}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() {
			defer wg.Done()
			<-gate
		}))
	}

	require.Greater(t, p.WorkerCount(), 1)

	close(gate)
	wg.Wait()
	require.NoError(t, p.Stop())

	// every grown worker went through the callback without deadlocking
	require.Greater(t, o.observed(), 0)
}

func TestElasticPool_ConcurrentSubmitAndStop(t *testing.T) {
	p, err := New(Config{MinWorkers: 2, MaxWorkers: 8, Logger: slogger})
	require.NoError(t, err)

	c := NewCounterTest()
	submitters := &sync.WaitGroup{}
	for i := 0; i < 100; i++ {
		submitters.Add(1)
		go func() {
			defer submitters.Done()
			if submitErr := p.Submit(func() { c.Inc() }); submitErr != nil {
				require.ErrorIs(t, submitErr, ErrPoolClosed)
			}
		}()
	}

	// Stop the worker pool concurrently with the submitters
	require.NoError(t, p.Stop())
	submitters.Wait()

	// no growth once stopping: the roster is frozen after Stop returns
	grown := p.WorkerCount()
	require.LessOrEqual(t, grown, 8)
	require.Equal(t, grown, p.WorkerCount())
}

func TestElasticPool_ObserverSeesLifecycle(t *testing.T) {
	o := &recordingObserver{}
	p, err := New(Config{MinWorkers: 2, MaxWorkers: 2, Logger: slogger, Observer: o})
	require.NoError(t, err)

	wg := &sync.WaitGroup{}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func() { defer wg.Done() }))
	}

	wg.Add(1)
	require.NoError(t, p.Submit(func() {
		defer wg.Done()
		panic("boom")
	}))

	wg.Wait()
	require.NoError(t, p.Stop())

	o.mu.Lock()
	defer o.mu.Unlock()
	require.Len(t, o.spawned, 2)
	require.Equal(t, 5, o.started)
	require.Equal(t, 5, o.finished)
	require.Equal(t, 1, o.panics)
}
