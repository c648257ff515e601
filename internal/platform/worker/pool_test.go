package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPool_Defaults(t *testing.T) {
	pool := NewPool(context.Background(), PoolConfig{Workers: 0, QueueSize: -5})
	defer pool.Close()

	if pool.Workers() != 1 {
		t.Errorf("Expected 1 worker (default), got %d", pool.Workers())
	}
	if pool.QueueLen() != 0 {
		t.Errorf("Expected empty queue, got %d", pool.QueueLen())
	}
}

func TestRun_PreservesJobOrder(t *testing.T) {
	pool := NewPool(context.Background(), PoolConfig{Workers: 4, QueueSize: 8})
	defer pool.Close()

	jobs := make([]Job[int], 10)
	for i := range jobs {
		n := i
		jobs[i] = Job[int]{
			ID: fmt.Sprintf("job-%d", n),
			Execute: func(ctx context.Context) (int, error) {
				// Later jobs finish first.
				time.Sleep(time.Duration(10-n) * time.Millisecond)
				return n * n, nil
			},
		}
	}

	results := Run(context.Background(), pool, jobs)
	if len(results) != len(jobs) {
		t.Fatalf("Expected %d results, got %d", len(jobs), len(results))
	}
	for i, r := range results {
		if r.Err != nil {
			t.Errorf("job %d: unexpected error %v", i, r.Err)
		}
		if r.Value != i*i {
			t.Errorf("job %d: expected %d, got %d", i, i*i, r.Value)
		}
		if r.JobID != fmt.Sprintf("job-%d", i) {
			t.Errorf("job %d: unexpected id %s", i, r.JobID)
		}
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	pool := NewPool(context.Background(), PoolConfig{Workers: 2})
	defer pool.Close()

	var running, peak int32
	jobs := make([]Job[struct{}], 8)
	for i := range jobs {
		jobs[i] = Job[struct{}]{Execute: func(ctx context.Context) (struct{}, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return struct{}{}, nil
		}}
	}

	Run(context.Background(), pool, jobs)

	if peak > 2 {
		t.Errorf("Expected at most 2 concurrent jobs, saw %d", peak)
	}
}

func TestRun_ErrorsStayWithTheirJob(t *testing.T) {
	pool := NewPool(context.Background(), PoolConfig{Workers: 3})
	defer pool.Close()

	boom := errors.New("boom")
	jobs := []Job[string]{
		{ID: "a", Execute: func(ctx context.Context) (string, error) { return "a", nil }},
		{ID: "b", Execute: func(ctx context.Context) (string, error) { return "", boom }},
		{ID: "c", Execute: func(ctx context.Context) (string, error) { return "c", nil }},
	}

	results := Run(context.Background(), pool, jobs)

	if results[0].Value != "a" || results[2].Value != "c" {
		t.Errorf("unexpected values: %+v", results)
	}
	if !errors.Is(results[1].Err, boom) {
		t.Errorf("expected boom for job b, got %v", results[1].Err)
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	pool := NewPool(context.Background(), PoolConfig{Workers: 1})
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	block := make(chan struct{})
	defer close(block)

	jobs := []Job[int]{
		{ID: "slow", Execute: func(ctx context.Context) (int, error) {
			<-block
			return 1, nil
		}},
	}

	results := Run(ctx, pool, jobs)
	if !errors.Is(results[0].Err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", results[0].Err)
	}
}

func TestRun_AfterClose(t *testing.T) {
	pool := NewPool(context.Background(), PoolConfig{Workers: 1})
	pool.Close()

	results := Run(context.Background(), pool, []Job[int]{
		{Execute: func(ctx context.Context) (int, error) { return 1, nil }},
	})

	if !errors.Is(results[0].Err, ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed, got %v", results[0].Err)
	}
}
