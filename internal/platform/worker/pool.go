// Package worker provides a bounded worker pool for fan-out request batches.
package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned for work submitted after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// Job is a unit of work producing a value of type T.
type Job[T any] struct {
	// ID is an optional identifier (useful for logging/debugging)
	ID string
	// Execute receives the caller's context.
	Execute func(ctx context.Context) (T, error)
}

// Result is the outcome of one Job.
type Result[T any] struct {
	JobID string
	Value T
	Err   error
}

// PoolConfig configures a Pool.
type PoolConfig struct {
	Workers   int // concurrent goroutines, default 1
	QueueSize int // buffered tasks, default 0
}

// Pool runs tasks on a fixed set of goroutines shared by all callers.
type Pool struct {
	workers int
	tasks   chan func()
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewPool starts cfg.Workers goroutines that live until Close or until ctx is cancelled.
func NewPool(ctx context.Context, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	poolCtx, cancel := context.WithCancel(ctx)

	p := &Pool{
		workers: cfg.Workers,
		tasks:   make(chan func(), cfg.QueueSize),
		ctx:     poolCtx,
		cancel:  cancel,
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task := <-p.tasks:
			task()
		}
	}
}

// submit blocks until the task is queued, ctx is done, or the pool closes.
func (p *Pool) submit(ctx context.Context, task func()) error {
	if p.ctx.Err() != nil {
		return ErrPoolClosed
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	case p.tasks <- task:
		return nil
	}
}

// Run executes jobs on the pool and returns one result per job, in job order.
// Jobs still unfinished when ctx is done report ctx.Err().
func Run[T any](ctx context.Context, p *Pool, jobs []Job[T]) []Result[T] {
	type indexed struct {
		i int
		r Result[T]
	}

	results := make([]Result[T], len(jobs))
	finished := make([]bool, len(jobs))
	done := make(chan indexed, len(jobs))

	pending := 0
	for i, job := range jobs {
		results[i].JobID = job.ID
		err := p.submit(ctx, func() {
			v, err := job.Execute(ctx)
			done <- indexed{i: i, r: Result[T]{JobID: job.ID, Value: v, Err: err}}
		})
		if err != nil {
			results[i].Err = err
			finished[i] = true
			continue
		}
		pending++
	}

	for pending > 0 {
		select {
		case res := <-done:
			results[res.i] = res.r
			finished[res.i] = true
			pending--
		case <-ctx.Done():
			return abandon(results, finished, ctx.Err())
		case <-p.ctx.Done():
			return abandon(results, finished, ErrPoolClosed)
		}
	}

	return results
}

func abandon[T any](results []Result[T], finished []bool, err error) []Result[T] {
	for i := range results {
		if !finished[i] {
			results[i].Err = err
		}
	}
	return results
}

// Close stops the workers and waits for running tasks to return.
// Queued tasks that never started are dropped.
func (p *Pool) Close() {
	p.cancel()
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *Pool) Workers() int {
	return p.workers
}

// QueueLen returns the current number of tasks waiting in the queue.
func (p *Pool) QueueLen() int {
	return len(p.tasks)
}
