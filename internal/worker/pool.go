package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is returned by Submit once the pool is shut down
var ErrPoolClosed = errors.New("worker pool closed")

// Job is a unit of work run by the pool
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is what a Job produces
type Result interface {
	GetError() error
}

type queued struct {
	seq int
	job Job
}

type finished struct {
	seq    int
	result Result
}

// Pool runs jobs on a fixed number of workers and returns their
// results in submission order.
type Pool struct {
	workers   int
	jobQueue  chan queued
	results   chan finished
	wg        sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu        sync.Mutex
	submitted int
	done      []finished
	collected chan struct{}
}

// NewPool creates a pool whose jobs run under ctx
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:   workers,
		jobQueue:  make(chan queued, workers*2),
		results:   make(chan finished, workers*2),
		ctx:       ctx,
		cancel:    cancel,
		collected: make(chan struct{}),
	}
}

// Start launches the workers and the result collector. It must be
// called before Wait.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	go p.collect()
}

func (p *Pool) collect() {
	defer close(p.collected)
	for f := range p.results {
		p.done = append(p.done, f)
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case q, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := q.job.Execute(p.ctx)
			select {
			case p.results <- finished{seq: q.seq, result: result}:
			case <-p.ctx.Done():
				return
			}
		}
	}
}

// Submit queues a job. It blocks while the queue is full and fails
// once the pool has been shut down.
func (p *Pool) Submit(job Job) error {
	if p.ctx.Err() != nil {
		return ErrPoolClosed
	}

	p.mu.Lock()
	seq := p.submitted
	p.submitted++
	p.mu.Unlock()

	select {
	case <-p.ctx.Done():
		return ErrPoolClosed
	case p.jobQueue <- queued{seq: seq, job: job}:
		return nil
	}
}

// Wait closes the queue, waits for the workers and returns the results
// in submission order. Jobs dropped by a shutdown leave nil slots.
// Submit must not be called after Wait.
func (p *Pool) Wait() []Result {
	close(p.jobQueue)
	p.wg.Wait()
	p.closeResults()
	<-p.collected
	p.cancel()

	p.mu.Lock()
	n := p.submitted
	p.mu.Unlock()

	ordered := make([]Result, n)
	for _, f := range p.done {
		ordered[f.seq] = f.result
	}
	return ordered
}

// Shutdown cancels running jobs and stops the workers
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
