package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestQueue() (*MemoryQueue, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return NewMemoryQueue().WithClock(clock.Now), clock
}

func newJob(t *testing.T, id string) *domain.Job {
	t.Helper()
	job, err := domain.NewJob(id, domain.QueueEmbedding, domain.EmbeddingJobPayload{ChunkID: id}, 3, time.Time{})
	require.NoError(t, err)
	return job
}

func TestMemoryQueue_EnqueueDeduplicates(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	inserted, err := q.Enqueue(ctx, newJob(t, "a"))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = q.Enqueue(ctx, newJob(t, "a"))
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, 1, q.Len(domain.QueueEmbedding))

	claimed, err := q.Claim(ctx, domain.QueueEmbedding, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	inserted, err = q.Enqueue(ctx, newJob(t, "a"))
	require.NoError(t, err)
	assert.False(t, inserted, "active job is not replaced")
}

func TestMemoryQueue_EnqueueResetsFinishedJob(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, newJob(t, "a"))
	require.NoError(t, err)
	_, err = q.Claim(ctx, domain.QueueEmbedding, 1)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, "a", "boom"))

	inserted, err := q.Enqueue(ctx, newJob(t, "a"))
	require.NoError(t, err)
	assert.True(t, inserted)

	job, err := q.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Zero(t, job.Attempts)
	assert.Empty(t, job.LastError)
}

func TestMemoryQueue_ClaimOrderAndAttempts(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := q.Enqueue(ctx, newJob(t, id))
		require.NoError(t, err)
	}

	claimed, err := q.Claim(ctx, domain.QueueEmbedding, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, "a", claimed[0].ID)
	assert.Equal(t, "b", claimed[1].ID)
	assert.Equal(t, domain.JobStatusActive, claimed[0].Status)
	assert.Equal(t, 1, claimed[0].Attempts)

	claimed, err = q.Claim(ctx, domain.QueueEmbedding, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "c", claimed[0].ID)

	claimed, err = q.Claim(ctx, "other", 2)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestMemoryQueue_RetryDelaysRedelivery(t *testing.T) {
	q, clock := newTestQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, newJob(t, "a"))
	require.NoError(t, err)
	_, err = q.Claim(ctx, domain.QueueEmbedding, 1)
	require.NoError(t, err)

	require.NoError(t, q.Retry(ctx, "a", 4*time.Second, "rate limited"))

	claimed, err := q.Claim(ctx, domain.QueueEmbedding, 1)
	require.NoError(t, err)
	assert.Empty(t, claimed, "job is not due yet")

	clock.Advance(4 * time.Second)
	claimed, err = q.Claim(ctx, domain.QueueEmbedding, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 2, claimed[0].Attempts)
	assert.Equal(t, "rate limited", claimed[0].LastError)
}

func TestMemoryQueue_DelayedJobsDoNotBlockDueOnes(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, newJob(t, "slow"))
	require.NoError(t, err)
	_, err = q.Claim(ctx, domain.QueueEmbedding, 1)
	require.NoError(t, err)
	require.NoError(t, q.Retry(ctx, "slow", time.Minute, "later"))

	_, err = q.Enqueue(ctx, newJob(t, "fast"))
	require.NoError(t, err)

	claimed, err := q.Claim(ctx, domain.QueueEmbedding, 5)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "fast", claimed[0].ID)
}

func TestMemoryQueue_CompleteAndFail(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	for _, id := range []string{"ok", "bad"} {
		_, err := q.Enqueue(ctx, newJob(t, id))
		require.NoError(t, err)
	}
	_, err := q.Claim(ctx, domain.QueueEmbedding, 2)
	require.NoError(t, err)

	require.NoError(t, q.Complete(ctx, "ok"))
	require.NoError(t, q.Fail(ctx, "bad", "permanent"))

	job, err := q.Get(ctx, "ok")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)

	job, err = q.Get(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, "permanent", job.LastError)

	assert.Error(t, q.Complete(ctx, "ok"), "completed job is not active")
	assert.ErrorIs(t, q.Complete(ctx, "missing"), domain.ErrJobNotFound)

	_, err = q.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestMemoryQueue_RequeueStale(t *testing.T) {
	q, clock := newTestQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, newJob(t, "a"))
	require.NoError(t, err)
	_, err = q.Claim(ctx, domain.QueueEmbedding, 1)
	require.NoError(t, err)

	n, err := q.RequeueStale(ctx, domain.QueueEmbedding, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)

	clock.Advance(2 * time.Minute)
	n, err = q.RequeueStale(ctx, domain.QueueEmbedding, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	claimed, err := q.Claim(ctx, domain.QueueEmbedding, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 2, claimed[0].Attempts)
}

func TestMemoryQueue_ClaimedJobsAreCopies(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, newJob(t, "a"))
	require.NoError(t, err)
	claimed, err := q.Claim(ctx, domain.QueueEmbedding, 1)
	require.NoError(t, err)
	claimed[0].Status = domain.JobStatusCompleted

	job, err := q.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusActive, job.Status)
}

func TestMemoryQueue_ConcurrentClaimsAreExclusive(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	const total = 200
	for i := 0; i < total; i++ {
		_, err := q.Enqueue(ctx, newJob(t, fmt.Sprintf("job-%d", i)))
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := q.Claim(ctx, domain.QueueEmbedding, 7)
				if err != nil || len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, j := range claimed {
					seen[j.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}

func TestMemoryQueue_RejectsInvalidJob(t *testing.T) {
	q, _ := newTestQueue()
	_, err := q.Enqueue(context.Background(), &domain.Job{ID: "x"})
	assert.Error(t, err)
}

func TestMemoryQueue_RestartResetsAttempts(t *testing.T) {
	q, _ := newTestQueue()
	ctx := context.Background()

	_, err := q.Enqueue(ctx, newJob(t, "a"))
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		_, err = q.Claim(ctx, domain.QueueEmbedding, 1)
		require.NoError(t, err)
		require.NoError(t, q.Retry(ctx, "a", 0, "busy"))
	}
	_, err = q.Claim(ctx, domain.QueueEmbedding, 1)
	require.NoError(t, err)

	require.NoError(t, q.Restart(ctx, "a", "chunk reset"))

	claimed, err := q.Claim(ctx, domain.QueueEmbedding, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 1, claimed[0].Attempts)
	assert.Equal(t, "chunk reset", claimed[0].LastError)

	require.NoError(t, q.Complete(ctx, "a"))
	assert.Error(t, q.Restart(ctx, "a", ""), "only active jobs restart")
}
