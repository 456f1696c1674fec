package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/Flatwatch/internal/domain/filter"
	"github.com/NordCoder/Flatwatch/internal/domain/job"
	"github.com/NordCoder/Flatwatch/internal/domain/listing"
	"github.com/NordCoder/Flatwatch/internal/domain/notification"
	"github.com/NordCoder/Flatwatch/internal/domain/user"
	"github.com/NordCoder/Flatwatch/internal/obs/retry"
	"github.com/NordCoder/Flatwatch/internal/repository/memory"
)

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeSender struct {
	mu    sync.Mutex
	calls int
	delay time.Duration
	err   error
}

func (s *fakeSender) Send(ctx context.Context, _, _ int64, p notification.Payload) error {
	if p.Listing == nil {
		return errors.New("no listing")
	}
	s.mu.Lock()
	s.calls++
	err := s.err
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return err
}

func (s *fakeSender) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fixture struct {
	queue    *memory.JobQueue
	ledger   *memory.Ledger
	users    *memory.UserRepo
	filters  *memory.FilterRepo
	listings *memory.ListingRepo
	sender   *fakeSender
	pool     *Pool
	listing  *listing.Listing
}

const testUser = int64(100)

type fixtureOpts struct {
	maxAttempts int
	dupes       bool
	clock       notification.Clock
	backoff     job.Backoff
	leaseTTL    time.Duration
	staleAfter  time.Duration
	recheck     time.Duration
}

func newFixture(t *testing.T, maxAttempts int, dupes bool) *fixture {
	return newFixtureWith(t, fixtureOpts{
		maxAttempts: maxAttempts,
		dupes:       dupes,
		staleAfter:  time.Hour,
		recheck:     time.Millisecond,
	})
}

func newFixtureWith(t *testing.T, o fixtureOpts) *fixture {
	t.Helper()
	ctx := context.Background()
	if o.clock == nil {
		o.clock = wallClock{}
	}
	if o.leaseTTL == 0 {
		o.leaseTTL = time.Minute
	}
	fx := &fixture{
		queue: memory.NewJobQueue(memory.QueueConfig{
			LeaseTTL:        o.leaseTTL,
			Policy:          job.RetryPolicy{MaxAttempts: o.maxAttempts, Backoff: o.backoff},
			Now:             o.clock.Now,
			AllowDuplicates: o.dupes,
		}),
		ledger:   memory.NewLedger(o.clock.Now),
		users:    memory.NewUserRepo(nil),
		filters:  memory.NewFilterRepo(nil),
		listings: memory.NewListingRepo(nil),
		sender:   &fakeSender{},
	}

	until := o.clock.Now().Add(24 * time.Hour)
	require.NoError(t, fx.users.Upsert(ctx, &user.User{ID: testUser, SubscriptionUntil: &until}))
	require.NoError(t, fx.filters.Put(ctx, &filter.Filter{
		UserID: testUser, PropertyType: listing.Apartment, Rooms: []int{2},
	}))
	l, _, err := fx.listings.Upsert(ctx, &listing.Record{
		ExternalID: "ext", PropertyType: listing.Apartment, City: 1, RoomsCount: 2, Price: 10,
	})
	require.NoError(t, err)
	fx.listing = l

	fx.pool = NewPool(zap.NewNop(), Deps{
		Queue:    fx.queue,
		Ledger:   fx.ledger,
		Users:    fx.users,
		Filters:  fx.filters,
		Listings: fx.listings,
		Sender:   fx.sender,
		Clock:    o.clock,
	}, PoolConfig{
		Workers:         2,
		ClaimStaleAfter: o.staleAfter,
		ClaimRecheck:    o.recheck,
	}, prometheus.NewRegistry())
	return fx
}

func (fx *fixture) enqueue(t *testing.T) *job.Job {
	t.Helper()
	j := &job.Job{UserID: testUser, ListingID: fx.listing.ID}
	ok, err := fx.queue.Enqueue(context.Background(), j)
	require.NoError(t, err)
	require.True(t, ok)
	return j
}

func (fx *fixture) dequeue(t *testing.T) *job.Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	j, err := fx.queue.Dequeue(ctx)
	require.NoError(t, err)
	return j
}

// drain processes until nothing is leasable.
func (fx *fixture) drain(t *testing.T) []Outcome {
	t.Helper()
	var outs []Outcome
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		j, err := fx.queue.Dequeue(ctx)
		cancel()
		if err != nil {
			return outs
		}
		outs = append(outs, fx.pool.Process(context.Background(), j))
	}
}

func TestDeliversOnce(t *testing.T) {
	fx := newFixture(t, 3, false)
	j := fx.enqueue(t)

	assert.Equal(t, []Outcome{OutcomeDelivered}, fx.drain(t))
	assert.Equal(t, 1, fx.sender.Calls())

	got, ok := fx.queue.Get(j.ID)
	require.True(t, ok)
	assert.Equal(t, job.Delivered, got.State)
	assert.Equal(t, string(job.OutcomeDelivered), fx.ledger.Status(j.Key()))
}

func TestConcurrentDuplicatesSendOnce(t *testing.T) {
	fx := newFixture(t, 5, true)
	fx.sender.delay = 30 * time.Millisecond
	fx.enqueue(t)
	fx.enqueue(t)

	j1, j2 := fx.dequeue(t), fx.dequeue(t)
	require.NotEqual(t, j1.ID, j2.ID)

	var wg sync.WaitGroup
	outs := make([]Outcome, 2)
	for i, j := range []*job.Job{j1, j2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outs[i] = fx.pool.Process(context.Background(), j)
		}()
	}
	wg.Wait()
	assert.Contains(t, outs, OutcomeDelivered)
	assert.NotContains(t, outs, OutcomeRetrying)

	// whichever copy lost the race is settled without a second send
	for _, o := range fx.drain(t) {
		assert.Equal(t, OutcomeDuplicate, o)
	}
	assert.Equal(t, 1, fx.sender.Calls())

	delivered, err := fx.queue.ListByState(context.Background(), job.Delivered, 0)
	require.NoError(t, err)
	assert.Len(t, delivered, 2)
}

func TestRetryExhaustion(t *testing.T) {
	fx := newFixture(t, 3, false)
	fx.sender.err = &notification.TransientError{Err: errors.New("503")}
	j := fx.enqueue(t)

	outs := fx.drain(t)
	assert.Equal(t, []Outcome{OutcomeRetrying, OutcomeRetrying, OutcomeFailed}, outs)
	assert.Equal(t, 3, fx.sender.Calls())

	got, _ := fx.queue.Get(j.ID)
	assert.Equal(t, job.Failed, got.State)
	assert.Equal(t, 3, got.Attempts)
	assert.Empty(t, fx.ledger.Status(j.Key()))

	assert.Empty(t, fx.drain(t))
	assert.Equal(t, 3, fx.sender.Calls())
}

func TestCrashedClaimHolderDoesNotExhaustAttempts(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)}
	fx := newFixtureWith(t, fixtureOpts{
		maxAttempts: 5,
		clock:       clock,
		backoff:     retry.ExpoJitter{Base: 2 * time.Second, Max: 10 * time.Minute, Jitter: 0.2},
		leaseTTL:    60 * time.Second,
		staleAfter:  5 * time.Minute,
		recheck:     30 * time.Second,
	})
	j := fx.enqueue(t)

	// a worker leases and claims the pair, then dies before sending
	crashed := fx.dequeue(t)
	claim, err := fx.ledger.Claim(context.Background(), crashed.Key(), crashed.LeaseToken, 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, job.Claimed, claim)

	var outs []Outcome
	for i := 0; i < 20 && fx.sender.Calls() == 0; i++ {
		clock.Advance(31 * time.Second)
		outs = append(outs, fx.drain(t)...)
	}

	require.NotEmpty(t, outs)
	assert.Contains(t, outs, OutcomeDeferred)
	assert.NotContains(t, outs, OutcomeFailed)
	assert.Equal(t, OutcomeDelivered, outs[len(outs)-1])
	assert.Equal(t, 1, fx.sender.Calls())

	got, ok := fx.queue.Get(j.ID)
	require.True(t, ok)
	assert.Equal(t, job.Delivered, got.State)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, string(job.OutcomeDelivered), fx.ledger.Status(j.Key()))
}

func TestPermanentFailureShortCircuits(t *testing.T) {
	fx := newFixture(t, 5, false)
	fx.sender.err = &notification.PermanentError{Err: errors.New("bot was blocked by the user")}
	j := fx.enqueue(t)

	assert.Equal(t, []Outcome{OutcomeFailed}, fx.drain(t))
	assert.Equal(t, 1, fx.sender.Calls())
	got, _ := fx.queue.Get(j.ID)
	assert.Equal(t, job.Failed, got.State)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, string(job.OutcomeFailed), fx.ledger.Status(j.Key()))
}

func TestRecheckCancels(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T, fx *fixture)
	}{
		{"paused filter", func(t *testing.T, fx *fixture) {
			require.NoError(t, fx.filters.SetPaused(context.Background(), testUser, true))
		}},
		{"deleted filter", func(t *testing.T, fx *fixture) {
			require.NoError(t, fx.filters.Delete(context.Background(), testUser))
		}},
		{"expired subscription", func(t *testing.T, fx *fixture) {
			past := time.Now().Add(-time.Second)
			require.NoError(t, fx.users.Upsert(context.Background(), &user.User{ID: testUser, SubscriptionUntil: &past}))
		}},
		{"deleted user", func(t *testing.T, fx *fixture) {
			require.NoError(t, fx.users.Delete(context.Background(), testUser))
		}},
		{"filter changed", func(t *testing.T, fx *fixture) {
			require.NoError(t, fx.filters.Put(context.Background(), &filter.Filter{
				UserID: testUser, PropertyType: listing.House, Rooms: []int{2},
			}))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, 3, false)
			j := fx.enqueue(t)
			tt.mutate(t, fx)

			assert.Equal(t, []Outcome{OutcomeCancelled}, fx.drain(t))
			assert.Zero(t, fx.sender.Calls())
			got, _ := fx.queue.Get(j.ID)
			assert.Equal(t, job.Cancelled, got.State)
			assert.NotEmpty(t, got.LastError)
		})
	}
}

func TestPoolRunStopsOnCancel(t *testing.T) {
	fx := newFixture(t, 3, false)
	fx.enqueue(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fx.pool.Run(ctx) }()

	require.Eventually(t, func() bool { return fx.sender.Calls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("pool did not stop")
	}
}
