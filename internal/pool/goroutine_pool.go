// Package pool provides a bounded goroutine pool for running invocations.
package pool

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrPoolClosed is returned by Submit after Close or Shutdown.
	ErrPoolClosed = errors.New("pool is closed")
	// ErrPoolFull is returned by Submit when the queue is full and the
	// worker limit is reached.
	ErrPoolFull = errors.New("pool is full")
)

// Unbounded as MaxWorkers lets the pool add a worker for every task that
// finds no idle one. Callers then bound concurrency themselves.
const Unbounded = math.MaxInt32

// Task represents a unit of work.
type Task func(ctx context.Context)

// GoroutinePool runs tasks on at most MaxWorkers goroutines. Workers are
// spawned lazily and exit after IdleTimeout without work.
type GoroutinePool struct {
	maxWorkers  int
	idleTimeout time.Duration
	tasks       chan queued

	workerCount atomic.Int32
	activeCount atomic.Int32

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
	rejected  atomic.Int64

	panicHandler func(any)
}

type queued struct {
	ctx  context.Context
	task Task
}

// Config configures the pool.
type Config struct {
	MaxWorkers   int           `json:"max_workers"`
	QueueSize    int           `json:"queue_size"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	PanicHandler func(any)     `json:"-"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:  10,
		QueueSize:   10,
		IdleTimeout: 30 * time.Second,
	}
}

// New creates a pool.
func New(cfg Config) *GoroutinePool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Second
	}
	return &GoroutinePool{
		maxWorkers:   cfg.MaxWorkers,
		idleTimeout:  cfg.IdleTimeout,
		tasks:        make(chan queued, cfg.QueueSize),
		panicHandler: cfg.PanicHandler,
	}
}

// Submit queues task without blocking. It fails with ErrPoolFull when the
// queue is full and no worker can be added.
func (p *GoroutinePool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.submitted.Add(1)
	q := queued{ctx: ctx, task: task}

	select {
	case p.tasks <- q:
		p.ensureWorker()
		return nil
	default:
	}

	if p.spawnWorker(&q) {
		return nil
	}
	p.rejected.Add(1)
	return ErrPoolFull
}

// ensureWorker adds a worker while tasks wait in the queue.
func (p *GoroutinePool) ensureWorker() {
	if len(p.tasks) > 0 && int(p.workerCount.Load()) < p.maxWorkers {
		p.spawnWorker(nil)
	}
}

// spawnWorker starts a worker if below the limit. A non-nil first task is
// handed to the new worker directly.
func (p *GoroutinePool) spawnWorker(first *queued) bool {
	for {
		current := p.workerCount.Load()
		if int(current) >= p.maxWorkers {
			return false
		}
		if p.workerCount.CompareAndSwap(current, current+1) {
			p.wg.Add(1)
			go p.worker(first)
			return true
		}
	}
}

func (p *GoroutinePool) worker(first *queued) {
	defer p.wg.Done()

	if first != nil {
		p.activeCount.Add(1)
		p.run(*first)
		p.activeCount.Add(-1)
	}

	idle := time.NewTimer(p.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case q, ok := <-p.tasks:
			if !ok {
				p.workerCount.Add(-1)
				return
			}
			p.activeCount.Add(1)
			p.run(q)
			p.activeCount.Add(-1)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(p.idleTimeout)
		case <-idle.C:
			if p.retire() {
				return
			}
			idle.Reset(p.idleTimeout)
		}
	}
}

// retire releases an idle worker unless it is the last one.
func (p *GoroutinePool) retire() bool {
	for {
		current := p.workerCount.Load()
		if current <= 1 {
			return false
		}
		if p.workerCount.CompareAndSwap(current, current-1) {
			return true
		}
	}
}

func (p *GoroutinePool) run(q queued) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			if p.panicHandler != nil {
				p.panicHandler(fmt.Errorf("task panicked: %v", r))
			}
			return
		}
		p.completed.Add(1)
	}()
	q.task(q.ctx)
}

// Close stops accepting tasks and waits for queued and running tasks to
// finish.
func (p *GoroutinePool) Close() {
	_ = p.Shutdown(context.Background())
}

// Shutdown stops accepting tasks and waits for queued and running tasks to
// finish or ctx to expire. Tasks still running on expiry keep running.
func (p *GoroutinePool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns pool statistics.
func (p *GoroutinePool) Stats() Stats {
	return Stats{
		Workers:   int(p.workerCount.Load()),
		Active:    int(p.activeCount.Load()),
		Queued:    len(p.tasks),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Panicked:  p.panicked.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// Stats contains pool statistics.
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Panicked  int64 `json:"panicked"`
	Rejected  int64 `json:"rejected"`
}
