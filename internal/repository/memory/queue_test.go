package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/Flatwatch/internal/domain/job"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *testClock {
	return &testClock{now: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func TestEnqueueIsIdempotentPerPair(t *testing.T) {
	q := NewJobQueue(QueueConfig{})
	ctx := context.Background()

	ok, err := q.Enqueue(ctx, &job.Job{UserID: 1, ListingID: 10})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = q.Enqueue(ctx, &job.Job{UserID: 1, ListingID: 10})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = q.Enqueue(ctx, &job.Job{UserID: 2, ListingID: 10})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, q.Len())
}

func TestDequeueWaitsForEnqueue(t *testing.T) {
	q := NewJobQueue(QueueConfig{PollInterval: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan *job.Job, 1)
	go func() {
		j, err := q.Dequeue(ctx)
		if err == nil {
			got <- j
		}
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := q.Enqueue(ctx, &job.Job{UserID: 1, ListingID: 2})
	require.NoError(t, err)

	select {
	case j := <-got:
		assert.Equal(t, job.InFlight, j.State)
		assert.Equal(t, 1, j.Attempts)
		assert.NotEmpty(t, j.LeaseToken)
	case <-ctx.Done():
		t.Fatal("dequeue was not woken by enqueue")
	}
}

func TestDequeueReturnsOnCancel(t *testing.T) {
	q := NewJobQueue(QueueConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestExpiredLeaseIsHandedOutAgain(t *testing.T) {
	clock := newClock()
	q := NewJobQueue(QueueConfig{
		LeaseTTL: time.Minute,
		Policy:   job.RetryPolicy{MaxAttempts: 3},
		Now:      clock.Now,
	})
	ctx := context.Background()
	_, err := q.Enqueue(ctx, &job.Job{UserID: 1, ListingID: 1})
	require.NoError(t, err)

	first, err := q.Dequeue(ctx)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	second, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Attempts)
	assert.NotEqual(t, first.LeaseToken, second.LeaseToken)

	require.ErrorIs(t, q.Ack(ctx, first), job.ErrLeaseLost)
	require.NoError(t, q.Ack(ctx, second))

	stored, ok := q.Get(second.ID)
	require.True(t, ok)
	assert.Equal(t, job.Delivered, stored.State)
}

func TestExpiredLeaseOnLastAttemptFails(t *testing.T) {
	clock := newClock()
	q := NewJobQueue(QueueConfig{
		LeaseTTL:     time.Minute,
		PollInterval: time.Millisecond,
		Policy:       job.RetryPolicy{MaxAttempts: 1},
		Now:          clock.Now,
	})
	ctx := context.Background()
	_, err := q.Enqueue(ctx, &job.Job{UserID: 1, ListingID: 1})
	require.NoError(t, err)

	j, err := q.Dequeue(ctx)
	require.NoError(t, err)
	clock.Advance(2 * time.Minute)

	dctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(dctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	stored, _ := q.Get(j.ID)
	assert.Equal(t, job.Failed, stored.State)
}

func TestExhaustedLeaseFailsWhileOthersAreLeasable(t *testing.T) {
	clock := newClock()
	q := NewJobQueue(QueueConfig{
		LeaseTTL: time.Minute,
		Policy:   job.RetryPolicy{MaxAttempts: 1},
		Now:      clock.Now,
	})
	ctx := context.Background()
	_, err := q.Enqueue(ctx, &job.Job{UserID: 1, ListingID: 1})
	require.NoError(t, err)
	stuck, err := q.Dequeue(ctx)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	_, err = q.Enqueue(ctx, &job.Job{UserID: 2, ListingID: 1})
	require.NoError(t, err)

	next, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.UserID)

	stored, _ := q.Get(stuck.ID)
	assert.Equal(t, job.Failed, stored.State)
}

func TestDeferReturnsTheAttempt(t *testing.T) {
	clock := newClock()
	q := NewJobQueue(QueueConfig{
		PollInterval: time.Millisecond,
		Policy:       job.RetryPolicy{MaxAttempts: 1},
		Now:          clock.Now,
	})
	ctx := context.Background()
	_, err := q.Enqueue(ctx, &job.Job{UserID: 1, ListingID: 1})
	require.NoError(t, err)

	for range 3 {
		j, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, j.Attempts)

		until := clock.Now().Add(30 * time.Second)
		require.NoError(t, q.Defer(ctx, j, until, "held elsewhere"))
		assert.Equal(t, job.Retrying, j.State)
		assert.Zero(t, j.Attempts)
		assert.Equal(t, until, j.NextAttemptAt)
		assert.Nil(t, q.tryLease())

		clock.Advance(30 * time.Second)
	}

	j, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Ack(ctx, j))
	assert.ErrorIs(t, q.Defer(ctx, j, clock.Now(), "late"), job.ErrLeaseLost)
}

func TestNackRetriesThenFails(t *testing.T) {
	clock := newClock()
	q := NewJobQueue(QueueConfig{
		Policy: job.RetryPolicy{MaxAttempts: 2, Backoff: constBackoff(time.Minute)},
		Now:    clock.Now,
	})
	ctx := context.Background()
	_, err := q.Enqueue(ctx, &job.Job{UserID: 1, ListingID: 1})
	require.NoError(t, err)

	j, err := q.Dequeue(ctx)
	require.NoError(t, err)
	s, err := q.Nack(ctx, j, errors.New("timeout"), false)
	require.NoError(t, err)
	assert.Equal(t, job.Retrying, s)
	assert.Equal(t, clock.Now().Add(time.Minute), j.NextAttemptAt)

	// not due yet
	assert.Nil(t, q.tryLease())

	clock.Advance(time.Minute)
	j, err = q.Dequeue(ctx)
	require.NoError(t, err)
	s, err = q.Nack(ctx, j, errors.New("timeout"), false)
	require.NoError(t, err)
	assert.Equal(t, job.Failed, s)

	failed, err := q.ListByState(ctx, job.Failed, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "timeout", failed[0].LastError)
}

func TestCancelAndPurge(t *testing.T) {
	clock := newClock()
	q := NewJobQueue(QueueConfig{Now: clock.Now})
	ctx := context.Background()
	_, err := q.Enqueue(ctx, &job.Job{UserID: 1, ListingID: 1})
	require.NoError(t, err)

	j, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Cancel(ctx, j, "filter paused"))
	require.ErrorIs(t, q.Cancel(ctx, j, "again"), job.ErrLeaseLost)

	n, err := q.PurgeTerminal(ctx, clock.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	clock.Advance(time.Hour)
	n, err = q.PurgeTerminal(ctx, clock.Now(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, q.Len())
}

type constBackoff time.Duration

func (b constBackoff) Next(int) time.Duration { return time.Duration(b) }
