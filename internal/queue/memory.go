package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloo-solutions/kbase/internal/domain"
)

// item is a heap entry. It is stale once its seq no longer matches the
// job's current entry.
type item struct {
	runAt time.Time
	seq   uint64
	id    string
}

type delayHeap []item

func (h delayHeap) Len() int { return len(h) }
func (h delayHeap) Less(i, j int) bool {
	if !h[i].runAt.Equal(h[j].runAt) {
		return h[i].runAt.Before(h[j].runAt)
	}
	return h[i].seq < h[j].seq
}
func (h delayHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *delayHeap) Push(x any)   { *h = append(*h, x.(item)) }
func (h *delayHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

type entry struct {
	job *domain.Job
	seq uint64
}

// MemoryQueue is an in-process Queue ordered by (runAt, enqueue sequence).
// It is safe for concurrent use.
type MemoryQueue struct {
	mu     sync.Mutex
	jobs   map[string]*entry
	queues map[string]*delayHeap
	seq    uint64
	now    func() time.Time
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		jobs:   make(map[string]*entry),
		queues: make(map[string]*delayHeap),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the queue's time source.
func (q *MemoryQueue) WithClock(now func() time.Time) *MemoryQueue {
	q.now = now
	return q
}

func (q *MemoryQueue) schedule(e *entry) {
	q.seq++
	e.seq = q.seq
	h, ok := q.queues[e.job.Queue]
	if !ok {
		h = &delayHeap{}
		q.queues[e.job.Queue] = h
	}
	heap.Push(h, item{runAt: e.job.RunAt, seq: e.seq, id: e.job.ID})
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(_ context.Context, job *domain.Job) (bool, error) {
	if err := domain.ValidateJob(job); err != nil {
		return false, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	if e, ok := q.jobs[job.ID]; ok {
		switch e.job.Status {
		case domain.JobStatusPending, domain.JobStatusActive:
			return false, nil
		}
		e.job.Queue = job.Queue
		e.job.Payload = append([]byte(nil), job.Payload...)
		e.job.Status = domain.JobStatusPending
		e.job.Attempts = 0
		e.job.MaxAttempts = job.MaxAttempts
		e.job.RunAt = now
		e.job.LastError = ""
		e.job.UpdatedAt = now
		q.schedule(e)
		return true, nil
	}

	j := *job
	j.Payload = append([]byte(nil), job.Payload...)
	j.Status = domain.JobStatusPending
	j.Attempts = 0
	if j.RunAt.IsZero() {
		j.RunAt = now
	}
	j.CreatedAt = now
	j.UpdatedAt = now
	e := &entry{job: &j}
	q.jobs[j.ID] = e
	q.schedule(e)
	return true, nil
}

// Claim implements Queue.
func (q *MemoryQueue) Claim(_ context.Context, queue string, limit int) ([]*domain.Job, error) {
	if limit <= 0 {
		limit = 100
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	h, ok := q.queues[queue]
	if !ok {
		return nil, nil
	}

	now := q.now()
	var claimed []*domain.Job
	for h.Len() > 0 && len(claimed) < limit {
		top := (*h)[0]
		e, ok := q.jobs[top.id]
		if !ok || e.seq != top.seq || e.job.Status != domain.JobStatusPending {
			heap.Pop(h)
			continue
		}
		if top.runAt.After(now) {
			break
		}
		heap.Pop(h)
		e.job.Status = domain.JobStatusActive
		e.job.Attempts++
		e.job.UpdatedAt = now
		claimed = append(claimed, cloneJob(e.job))
	}
	return claimed, nil
}

func (q *MemoryQueue) active(id string) (*entry, error) {
	e, ok := q.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	if e.job.Status != domain.JobStatusActive {
		return nil, fmt.Errorf("job %s is %s, not active", id, e.job.Status)
	}
	return e, nil
}

// Complete implements Queue.
func (q *MemoryQueue) Complete(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, err := q.active(id)
	if err != nil {
		return err
	}
	e.job.Status = domain.JobStatusCompleted
	e.job.LastError = ""
	e.job.UpdatedAt = q.now()
	return nil
}

// Retry implements Queue.
func (q *MemoryQueue) Retry(_ context.Context, id string, delay time.Duration, lastErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, err := q.active(id)
	if err != nil {
		return err
	}
	now := q.now()
	e.job.Status = domain.JobStatusPending
	e.job.RunAt = now.Add(delay)
	e.job.LastError = lastErr
	e.job.UpdatedAt = now
	q.schedule(e)
	return nil
}

// Restart implements Queue.
func (q *MemoryQueue) Restart(_ context.Context, id string, lastErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, err := q.active(id)
	if err != nil {
		return err
	}
	now := q.now()
	e.job.Status = domain.JobStatusPending
	e.job.Attempts = 0
	e.job.RunAt = now
	e.job.LastError = lastErr
	e.job.UpdatedAt = now
	q.schedule(e)
	return nil
}

// Fail implements Queue.
func (q *MemoryQueue) Fail(_ context.Context, id string, lastErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, err := q.active(id)
	if err != nil {
		return err
	}
	e.job.Status = domain.JobStatusFailed
	e.job.LastError = lastErr
	e.job.UpdatedAt = q.now()
	return nil
}

// Get implements Queue.
func (q *MemoryQueue) Get(_ context.Context, id string) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return cloneJob(e.job), nil
}

// RequeueStale implements Queue.
func (q *MemoryQueue) RequeueStale(_ context.Context, queue string, olderThan time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	cutoff := now.Add(-olderThan)
	n := 0
	for _, e := range q.jobs {
		if e.job.Queue != queue || e.job.Status != domain.JobStatusActive || e.job.UpdatedAt.After(cutoff) {
			continue
		}
		e.job.Status = domain.JobStatusPending
		e.job.RunAt = now
		e.job.UpdatedAt = now
		q.schedule(e)
		n++
	}
	return n, nil
}

// Len returns the number of pending jobs in a queue, due or not.
func (q *MemoryQueue) Len(queue string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, e := range q.jobs {
		if e.job.Queue == queue && e.job.Status == domain.JobStatusPending {
			n++
		}
	}
	return n
}

func cloneJob(j *domain.Job) *domain.Job {
	c := *j
	c.Payload = append([]byte(nil), j.Payload...)
	return &c
}
