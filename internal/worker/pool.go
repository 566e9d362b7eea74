package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

type indexedJob struct {
	index int
	job   Job
}

type indexedResult struct {
	index  int
	result Result
}

// Pool runs a fixed slice of jobs on a bounded set of workers and
// returns their results in submission order
type Pool struct {
	workers    int
	jobQueue   chan indexedJob
	results    chan indexedResult
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
	stop       chan struct{}
	stopOnce   sync.Once
	queueOnce  sync.Once
	closeOnce  sync.Once
	started    bool
}

// NewPool creates a new worker pool with the specified number of workers
func NewPool(workers int) *Pool {
	return NewPoolWithContext(context.Background(), workers)
}

// NewPoolWithContext creates a pool whose jobs observe ctx
func NewPoolWithContext(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan indexedJob, workers),
		results:    make(chan indexedResult, workers),
		ctx:        ctx,
		cancelFunc: cancel,
		stop:       make(chan struct{}),
	}
}

// Workers returns the pool size
func (p *Pool) Workers() int {
	return p.workers
}

// Process executes all jobs and blocks until every started job has
// reported. The returned slice is index-aligned with jobs; a job that
// never started because the context ended has a nil result.
// A pool processes a single slice of jobs.
func (p *Pool) Process(jobs []Job) []Result {
	defer p.cancelFunc()

	out := make([]Result, len(jobs))
	if len(jobs) == 0 || p.started {
		return out
	}
	p.started = true

	for i := 0; i < p.workers && i < len(jobs); i++ {
		p.wg.Add(1)
		go p.worker()
	}

	go func() {
		defer p.closeQueue()
		for i, job := range jobs {
			select {
			case <-p.ctx.Done():
				return
			case p.jobQueue <- indexedJob{index: i, job: job}:
			}
		}
	}()

	go func() {
		p.wg.Wait()
		p.closeResults()
	}()

	for r := range p.results {
		out[r.index] = r.result
	}
	return out
}

// worker pulls jobs until the queue closes or the context ends. A job
// that started always delivers its result.
func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobQueue:
			if !ok {
				return
			}
			result := job.job.Execute(p.ctx)
			select {
			case p.results <- indexedResult{index: job.index, result: result}:
			case <-p.stop:
				return
			}
		}
	}
}

// Shutdown cancels outstanding jobs and stops the workers
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
	p.closeResults()
}

func (p *Pool) closeQueue() {
	p.queueOnce.Do(func() {
		close(p.jobQueue)
	})
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}
