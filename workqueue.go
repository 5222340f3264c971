package gamemeta

import (
	"sync"
	"sync/atomic"
)

// Job is one unit of background work. Priority is re-evaluated every time
// a worker picks its next job, so a job's queue position tracks the current
// state of whatever it targets rather than its state at submission.
type Job interface {
	Run()
	Priority() float64
}

// WorkQueue runs jobs on a fixed pool of workers, always dispatching the
// highest-priority pending job. Order among equal priorities is undefined.
type WorkQueue struct {
	workers int

	mu      sync.Mutex
	cond    *sync.Cond
	pending []Job
	active  int
	stopped bool

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewWorkQueue creates a queue with the given worker count (minimum 1).
// The queue is idle until Start.
func NewWorkQueue(workers int) *WorkQueue {
	if workers < 1 {
		workers = 1
	}
	q := &WorkQueue{workers: workers}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the worker pool.
func (q *WorkQueue) Start() {
	if !q.running.CompareAndSwap(false, true) {
		return
	}
	q.mu.Lock()
	q.stopped = false
	q.mu.Unlock()
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker()
	}
}

// Submit enqueues a job. Reports false when the queue is stopped and the
// job was not accepted.
func (q *WorkQueue) Submit(job Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return false
	}
	q.pending = append(q.pending, job)
	q.cond.Signal()
	return true
}

// Flush blocks until no jobs remain pending or running.
func (q *WorkQueue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) > 0 || q.active > 0 {
		q.cond.Wait()
	}
}

// Stop prevents further jobs from starting, waits for in-flight jobs to
// finish, and returns the pending jobs that were cancelled unrun.
func (q *WorkQueue) Stop() []Job {
	if !q.running.CompareAndSwap(true, false) {
		return nil
	}
	q.mu.Lock()
	q.stopped = true
	dropped := q.pending
	q.pending = nil
	q.cond.Broadcast()
	q.mu.Unlock()
	q.wg.Wait()
	return dropped
}

func (q *WorkQueue) worker() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.stopped {
			q.cond.Wait()
		}
		if q.stopped {
			q.mu.Unlock()
			return
		}
		job := q.take()
		q.active++
		q.mu.Unlock()

		job.Run()

		q.mu.Lock()
		q.active--
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

// take removes and returns the highest-priority pending job. Called with
// q.mu held. Priorities float, so this is a scan rather than a heap.
func (q *WorkQueue) take() Job {
	best := 0
	bestPrio := q.pending[0].Priority()
	for i := 1; i < len(q.pending); i++ {
		if p := q.pending[i].Priority(); p > bestPrio {
			best, bestPrio = i, p
		}
	}
	job := q.pending[best]
	last := len(q.pending) - 1
	q.pending[best] = q.pending[last]
	q.pending[last] = nil
	q.pending = q.pending[:last]
	return job
}
