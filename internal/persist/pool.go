package persist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/xtxerr/seiscube/internal/errors"
	"github.com/xtxerr/seiscube/internal/logging"
)

// Task is one unit of background work.
type Task struct {
	// Name identifies the task in logs (usually the object key).
	Name string

	Run func(ctx context.Context) error
}

// Pool runs tasks on a fixed set of workers fed by a bounded queue.
// Submission never blocks.
type Pool struct {
	// mu guards closed against concurrent Submit and Stop.
	mu     sync.RWMutex
	closed bool

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	taskCh  chan Task
	workers int

	// pending counts accepted, unfinished tasks. idle is closed whenever
	// pending is zero.
	pendMu  sync.Mutex
	pending int
	idle    chan struct{}

	stats  PoolStats
	logger *slog.Logger
}

// PoolStats holds pool counters.
type PoolStats struct {
	Submitted atomic.Int64
	Completed atomic.Int64
	Failed    atomic.Int64
	Dropped   atomic.Int64
}

// PoolSnapshot is a copy of the pool state.
type PoolSnapshot struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	Capacity  int   `json:"capacity"`
	Pending   int   `json:"pending"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// NewPool creates a pool. Non-positive sizes fall back to 4 workers and a
// queue of 1024.
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 1024
	}

	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	return &Pool{
		ctx:     ctx,
		cancel:  cancel,
		taskCh:  make(chan Task, queueSize),
		workers: workers,
		idle:    idle,
		logger:  logging.Component("persist"),
	}
}

// Start starts the workers.
func (p *Pool) Start() error {
	if p.running.Swap(true) {
		return fmt.Errorf("pool already running")
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return nil
}

// Submit enqueues a task. It returns errors.ErrQueueFull when the queue is
// full and errors.ErrPoolClosed after Stop.
func (p *Pool) Submit(t Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return errors.ErrPoolClosed
	}

	p.addPending()
	select {
	case p.taskCh <- t:
		p.stats.Submitted.Add(1)
		return nil
	default:
		p.donePending()
		p.stats.Dropped.Add(1)
		return errors.ErrQueueFull
	}
}

// Drain waits until every accepted task has finished or ctx is done.
// Tasks submitted while draining are waited for too.
func (p *Pool) Drain(ctx context.Context) error {
	for {
		p.pendMu.Lock()
		idle := p.idle
		n := p.pending
		p.pendMu.Unlock()

		if n == 0 {
			return nil
		}
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop rejects new tasks, waits for queued tasks and stops the workers.
// If ctx ends first, running tasks are cancelled and ctx.Err is returned.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.taskCh)
	p.mu.Unlock()

	if !p.running.Load() {
		// Never started: discard what was queued.
		for range p.taskCh {
			p.donePending()
		}
		p.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

// Stats returns a snapshot of the pool state.
func (p *Pool) Stats() PoolSnapshot {
	p.pendMu.Lock()
	pending := p.pending
	p.pendMu.Unlock()

	return PoolSnapshot{
		Workers:   p.workers,
		Queued:    len(p.taskCh),
		Capacity:  cap(p.taskCh),
		Pending:   pending,
		Submitted: p.stats.Submitted.Load(),
		Completed: p.stats.Completed.Load(),
		Failed:    p.stats.Failed.Load(),
		Dropped:   p.stats.Dropped.Load(),
	}
}

// UsageRatio returns queue fill as a fraction of capacity.
func (p *Pool) UsageRatio() float64 {
	return float64(len(p.taskCh)) / float64(cap(p.taskCh))
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for t := range p.taskCh {
		p.run(id, t)
	}
}

func (p *Pool) run(id int, t Task) {
	defer p.donePending()
	defer func() {
		if r := recover(); r != nil {
			p.stats.Failed.Add(1)
			p.logger.Error("task panicked", "worker", id, "task", t.Name, "panic", r)
		}
	}()

	if err := t.Run(p.ctx); err != nil {
		p.stats.Failed.Add(1)
		p.logger.Warn("task failed", "worker", id, "task", t.Name, "error", err)
		return
	}
	p.stats.Completed.Add(1)
}

func (p *Pool) addPending() {
	p.pendMu.Lock()
	if p.pending == 0 {
		p.idle = make(chan struct{})
	}
	p.pending++
	p.pendMu.Unlock()
}

func (p *Pool) donePending() {
	p.pendMu.Lock()
	p.pending--
	if p.pending == 0 {
		close(p.idle)
	}
	p.pendMu.Unlock()
}
