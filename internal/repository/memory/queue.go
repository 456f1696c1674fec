package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NordCoder/Flatwatch/internal/domain/job"
)

var (
	_ job.Queue = (*JobQueue)(nil)
	_ job.Store = (*JobQueue)(nil)
)

type QueueConfig struct {
	LeaseTTL     time.Duration
	PollInterval time.Duration
	Policy       job.RetryPolicy
	Now          func() time.Time
	// AllowDuplicates accepts several jobs for one pair, the way an
	// at-least-once transport may hand them out.
	AllowDuplicates bool
}

type JobQueue struct {
	mu    sync.Mutex
	cfg   QueueConfig
	seq   int64
	jobs  map[int64]*job.Job
	order []int64
	pairs map[job.Key]int64
	wake  chan struct{}
}

func NewJobQueue(cfg QueueConfig) *JobQueue {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy.MaxAttempts = 1
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &JobQueue{
		cfg:   cfg,
		jobs:  map[int64]*job.Job{},
		pairs: map[job.Key]int64{},
		wake:  make(chan struct{}, 1),
	}
}

func (q *JobQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *JobQueue) Enqueue(_ context.Context, j *job.Job) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.cfg.AllowDuplicates {
		if _, ok := q.pairs[j.Key()]; ok {
			return false, nil
		}
	}
	now := q.cfg.Now()
	q.seq++
	stored := &job.Job{
		ID:            q.seq,
		UserID:        j.UserID,
		ListingID:     j.ListingID,
		State:         job.Pending,
		EnqueuedAt:    now,
		NextAttemptAt: now,
		UpdatedAt:     now,
	}
	q.jobs[stored.ID] = stored
	q.order = append(q.order, stored.ID)
	q.pairs[j.Key()] = stored.ID
	*j = *stored
	q.signal()
	return true, nil
}

func (q *JobQueue) Dequeue(ctx context.Context) (*job.Job, error) {
	for {
		if j := q.tryLease(); j != nil {
			return j, nil
		}
		t := time.NewTimer(q.cfg.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-q.wake:
			t.Stop()
		case <-t.C:
		}
	}
}

func (q *JobQueue) tryLease() *job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.cfg.Now()
	for _, id := range q.order {
		j := q.jobs[id]
		if j.State == job.InFlight && j.LeasedUntil.Before(now) && j.Attempts >= q.cfg.Policy.MaxAttempts {
			j.State = job.Failed
			j.LastError = "lease expired on final attempt"
			j.LeaseToken = ""
			j.UpdatedAt = now
		}
	}
	for _, id := range q.order {
		j := q.jobs[id]
		ready := (j.State == job.Pending || j.State == job.Retrying) && !j.NextAttemptAt.After(now)
		expired := j.State == job.InFlight && j.LeasedUntil.Before(now)
		if !ready && !expired {
			continue
		}
		j.State = job.InFlight
		j.Attempts++
		j.LeaseToken = uuid.NewString()
		j.LeasedUntil = now.Add(q.cfg.LeaseTTL)
		j.UpdatedAt = now
		cp := *j
		return &cp
	}
	return nil
}

func (q *JobQueue) held(j *job.Job) (*job.Job, error) {
	stored, ok := q.jobs[j.ID]
	if !ok || stored.State != job.InFlight || stored.LeaseToken != j.LeaseToken {
		return nil, job.ErrLeaseLost
	}
	return stored, nil
}

func (q *JobQueue) Ack(_ context.Context, j *job.Job) error {
	return q.finish(j, job.Delivered, time.Time{}, "")
}

func (q *JobQueue) Nack(_ context.Context, j *job.Job, cause error, permanent bool) (job.State, error) {
	next, at := q.cfg.Policy.Decide(j, permanent, q.cfg.Now())
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := q.finish(j, next, at, msg); err != nil {
		return "", err
	}
	return next, nil
}

func (q *JobQueue) Cancel(_ context.Context, j *job.Job, reason string) error {
	return q.finish(j, job.Cancelled, time.Time{}, reason)
}

func (q *JobQueue) Defer(_ context.Context, j *job.Job, until time.Time, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, err := q.held(j)
	if err != nil {
		return err
	}
	stored.State = job.Retrying
	stored.Attempts = max(stored.Attempts-1, 0)
	stored.NextAttemptAt = until
	stored.LeaseToken = ""
	stored.LeasedUntil = time.Time{}
	stored.LastError = reason
	stored.UpdatedAt = q.cfg.Now()
	*j = *stored
	return nil
}

func (q *JobQueue) finish(j *job.Job, to job.State, nextAt time.Time, lastErr string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stored, err := q.held(j)
	if err != nil {
		return err
	}
	if !job.CanTransition(stored.State, to) {
		return fmt.Errorf("%w: %s -> %s", job.ErrInvalidTransition, stored.State, to)
	}
	stored.State = to
	stored.LeaseToken = ""
	stored.LeasedUntil = time.Time{}
	stored.LastError = lastErr
	stored.UpdatedAt = q.cfg.Now()
	if !nextAt.IsZero() {
		stored.NextAttemptAt = nextAt
	}
	*j = *stored
	if to == job.Retrying {
		q.signal()
	}
	return nil
}

func (q *JobQueue) ListByState(_ context.Context, s job.State, limit int) ([]*job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*job.Job, 0)
	for _, id := range q.order {
		if j := q.jobs[id]; j.State == s {
			cp := *j
			out = append(out, &cp)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (q *JobQueue) PurgeTerminal(_ context.Context, olderThan time.Time, limit int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.order[:0]
	n := 0
	for _, id := range q.order {
		j := q.jobs[id]
		purge := (j.State == job.Delivered || j.State == job.Cancelled) && j.UpdatedAt.Before(olderThan)
		if purge && (limit <= 0 || n < limit) {
			delete(q.jobs, id)
			if q.pairs[j.Key()] == id {
				delete(q.pairs, j.Key())
			}
			n++
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
	return n, nil
}

// Get returns a copy of the stored job.
func (q *JobQueue) Get(id int64) (*job.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return nil, false
	}
	cp := *j
	return &cp, true
}

// Len counts stored jobs.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
