package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// mockResult implements Result
type mockResult struct {
	id  int
	err error
}

func (r *mockResult) GetError() error {
	return r.err
}

// mockJob implements Job
type mockJob struct {
	id        int
	duration  time.Duration
	shouldErr bool
	executed  *int32 // atomic counter
}

func (j *mockJob) Execute(ctx context.Context) Result {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.duration > 0 {
		select {
		case <-time.After(j.duration):
		case <-ctx.Done():
			return &mockResult{id: j.id, err: ctx.Err()}
		}
	}
	if j.shouldErr {
		return &mockResult{id: j.id, err: errors.New("job error")}
	}
	return &mockResult{id: j.id}
}

func TestNewPool(t *testing.T) {
	p1 := NewPool(5)
	if p1.Workers() != 5 {
		t.Errorf("expected 5 workers, got %d", p1.Workers())
	}

	p2 := NewPool(0)
	if p2.Workers() != 1 {
		t.Errorf("expected default 1 worker for 0 input, got %d", p2.Workers())
	}

	p3 := NewPool(-1)
	if p3.Workers() != 1 {
		t.Errorf("expected default 1 worker for negative input, got %d", p3.Workers())
	}
}

func TestPool_ProcessPreservesOrder(t *testing.T) {
	pool := NewPool(4)

	var executed int32
	count := 50
	jobs := make([]Job, count)
	for i := range jobs {
		// Later jobs finish first
		jobs[i] = &mockJob{id: i, duration: time.Duration(count-i) * 100 * time.Microsecond, executed: &executed}
	}

	results := pool.Process(jobs)

	if len(results) != count {
		t.Fatalf("expected %d results, got %d", count, len(results))
	}
	if atomic.LoadInt32(&executed) != int32(count) {
		t.Errorf("expected %d executed jobs, got %d", count, executed)
	}
	for i, res := range results {
		if res == nil {
			t.Fatalf("missing result at %d", i)
		}
		if got := res.(*mockResult).id; got != i {
			t.Errorf("result %d carries job %d", i, got)
		}
	}
}

func TestPool_ProcessEmpty(t *testing.T) {
	if results := NewPool(2).Process(nil); len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

// concurrencyJob tracks max concurrent executions
type concurrencyJob struct {
	start    func()
	end      func()
	duration time.Duration
}

func (j *concurrencyJob) Execute(ctx context.Context) Result {
	if j.start != nil {
		j.start()
	}
	time.Sleep(j.duration)
	if j.end != nil {
		j.end()
	}
	return &mockResult{}
}

func TestPool_ProcessReleasesContext(t *testing.T) {
	pool := NewPoolWithContext(context.Background(), 2)
	pool.Process([]Job{&mockJob{id: 0}, &mockJob{id: 1}})

	select {
	case <-pool.ctx.Done():
	default:
		t.Error("expected pool context to be cancelled once Process returns")
	}
}

func TestPool_Concurrency(t *testing.T) {
	workers := 10
	pool := NewPool(workers)

	var current int32
	var maxConcurrent int32
	var completed int32
	var mu sync.Mutex

	totalJobs := 50
	jobs := make([]Job, totalJobs)
	for i := range jobs {
		jobs[i] = &concurrencyJob{
			start: func() {
				curr := atomic.AddInt32(&current, 1)
				mu.Lock()
				if curr > maxConcurrent {
					maxConcurrent = curr
				}
				mu.Unlock()
			},
			end: func() {
				atomic.AddInt32(&current, -1)
				atomic.AddInt32(&completed, 1)
			},
			duration: 10 * time.Millisecond,
		}
	}

	pool.Process(jobs)

	if atomic.LoadInt32(&completed) != int32(totalJobs) {
		t.Errorf("expected %d completed jobs, got %d", totalJobs, completed)
	}

	mu.Lock()
	max := maxConcurrent
	mu.Unlock()

	if max > int32(workers) {
		t.Errorf("max concurrency %d exceeded workers %d", max, workers)
	}
}

func TestPool_ErrorHandling(t *testing.T) {
	pool := NewPool(2)

	results := pool.Process([]Job{&mockJob{shouldErr: true}, &mockJob{}})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].GetError() == nil {
		t.Error("expected error for first job")
	}
	if results[1].GetError() != nil {
		t.Errorf("unexpected error for second job: %v", results[1].GetError())
	}
}

func TestPool_ContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	pool := NewPoolWithContext(ctx, 1)
	jobs := []Job{
		&mockJob{id: 0},
		&mockJob{id: 1, duration: time.Second},
		&mockJob{id: 2, duration: time.Second},
		&mockJob{id: 3, duration: time.Second},
	}

	done := make(chan []Result)
	go func() { done <- pool.Process(jobs) }()

	var results []Result
	select {
	case results = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Process did not return after deadline")
	}

	if results[0] == nil || results[0].GetError() != nil {
		t.Errorf("expected first job to complete, got %v", results[0])
	}
	if results[1] == nil || !errors.Is(results[1].GetError(), context.DeadlineExceeded) {
		t.Errorf("expected in-flight job to report the deadline, got %v", results[1])
	}
	for _, r := range results[2:] {
		if r != nil && r.GetError() == nil {
			t.Errorf("expected unstarted or cancelled job, got %v", r)
		}
	}
}

func TestPool_Shutdown(t *testing.T) {
	pool := NewPool(2)

	started := make(chan struct{})
	var once sync.Once
	jobs := []Job{&concurrencyJob{
		start:    func() { once.Do(func() { close(started) }) },
		duration: 200 * time.Millisecond,
	}}

	done := make(chan struct{})
	go func() {
		pool.Process(jobs)
		close(done)
	}()

	<-started
	pool.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown timed out")
	}
}
