package pipeline

import (
	"sync"
	"time"
)

// Job is one exported utterance waiting to be transcribed.
type Job struct {
	Artifact      string
	Sequence      uint64
	AudioDuration time.Duration
	Enqueued      time.Time
}

// jobQueue is a mutex guarded FIFO with a coalescing wake signal.
type jobQueue struct {
	mu    sync.Mutex
	jobs  []Job
	ready chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		ready: make(chan struct{}, 1),
	}
}

func (q *jobQueue) Push(job Job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	q.Wake()
}

func (q *jobQueue) Pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return Job{}, false
	}

	job := q.jobs[0]
	q.jobs[0] = Job{}
	q.jobs = q.jobs[1:]
	return job, true
}

func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Wake signals the worker. Wakes before the worker gets to run collapse into one.
func (q *jobQueue) Wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *jobQueue) Ready() <-chan struct{} {
	return q.ready
}
