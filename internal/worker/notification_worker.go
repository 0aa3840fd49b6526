package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one deferred unit of work. The context carries the per-job
// deadline; jobs must respect it.
type Job func(ctx context.Context)

// Pool drains a bounded queue of jobs on a fixed set of goroutines. It
// keeps slow outbound deliveries off the update handling path; when the
// queue is full the job is dropped rather than blocking the caller.
type Pool struct {
	queue   chan Job
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
	stop    sync.Once
}

// NewPool sizes and starts the pool. Workers is the concurrency, buffer
// the queue capacity, timeout the per-job deadline.
func NewPool(workers, buffer int, timeout time.Duration, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 1
	}
	pool := &Pool{
		queue:   make(chan Job, buffer),
		timeout: timeout,
		logger:  logger,
	}
	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.run()
	}
	return pool
}

// Enqueue hands a job to the pool. It reports false when the queue is
// full or the pool is stopped; the job is not run in that case.
func (p *Pool) Enqueue(job Job) (queued bool) {
	defer func() {
		// Enqueue after Stop hits a closed channel.
		if recover() != nil {
			queued = false
		}
	}()
	select {
	case p.queue <- job:
		return true
	default:
		return false
	}
}

// Stop closes the queue and waits for queued jobs to finish.
func (p *Pool) Stop() {
	p.stop.Do(func() { close(p.queue) })
	p.wg.Wait()
}

func (p *Pool) run() {
	defer p.wg.Done()
	for job := range p.queue {
		p.execute(job)
	}
}

func (p *Pool) execute(job Job) {
	ctx := context.Background()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker job panicked", zap.Any("panic", r))
		}
	}()
	job(ctx)
}
