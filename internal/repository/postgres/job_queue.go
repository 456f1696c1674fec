package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

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
}

// JobQueue keeps notification jobs in the notification_jobs table. Workers
// lease rows with SKIP LOCKED; an expired lease returns the row to the pool.
type JobQueue struct {
	db  *DB
	cfg QueueConfig
}

func NewJobQueue(db *DB, cfg QueueConfig) *JobQueue {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy.MaxAttempts = 1
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &JobQueue{db: db, cfg: cfg}
}

const jobColumns = `id, user_id, listing_id, state, attempts, enqueued_at, next_attempt_at,
COALESCE(lease_token, ''), COALESCE(leased_until, 'epoch'::timestamptz), last_error, updated_at`

const (
	qJobEnqueue = `
INSERT INTO notification_jobs (user_id, listing_id)
VALUES ($1, $2)
ON CONFLICT (user_id, listing_id) DO NOTHING
RETURNING ` + jobColumns + `;`

	qJobLease = `
WITH cand AS (
    SELECT id
    FROM notification_jobs
    WHERE (state IN ('pending', 'retrying') AND next_attempt_at <= now())
       OR (state = 'in_flight' AND leased_until < now() AND attempts < $3)
    ORDER BY next_attempt_at, id
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
UPDATE notification_jobs j
SET state        = 'in_flight',
    attempts     = j.attempts + 1,
    lease_token  = $1,
    leased_until = now() + $2::interval,
    updated_at   = now()
FROM cand
WHERE j.id = cand.id
RETURNING j.id, j.user_id, j.listing_id, j.state, j.attempts, j.enqueued_at, j.next_attempt_at,
          j.lease_token, j.leased_until, j.last_error, j.updated_at;`

	// an attempt that held the lease on the last try and never reported back
	qJobReapExhausted = `
UPDATE notification_jobs
SET state        = 'failed',
    last_error   = 'lease expired on final attempt',
    lease_token  = NULL,
    leased_until = NULL,
    updated_at   = now()
WHERE state = 'in_flight' AND leased_until < now() AND attempts >= $1
RETURNING id;`

	qJobAck = `
UPDATE notification_jobs
SET state = 'delivered', lease_token = NULL, leased_until = NULL, last_error = '', updated_at = now()
WHERE id = $1 AND lease_token = $2 AND state = 'in_flight';`

	qJobNack = `
UPDATE notification_jobs
SET state           = $3,
    next_attempt_at = COALESCE($4, next_attempt_at),
    last_error      = $5,
    lease_token     = NULL,
    leased_until    = NULL,
    updated_at      = now()
WHERE id = $1 AND lease_token = $2 AND state = 'in_flight';`

	qJobDefer = `
UPDATE notification_jobs
SET state           = 'retrying',
    attempts        = GREATEST(attempts - 1, 0),
    next_attempt_at = $3,
    last_error      = $4,
    lease_token     = NULL,
    leased_until    = NULL,
    updated_at      = now()
WHERE id = $1 AND lease_token = $2 AND state = 'in_flight'
RETURNING attempts;`

	qJobListByState = `
SELECT ` + jobColumns + `
FROM notification_jobs
WHERE state = $1
ORDER BY updated_at DESC
LIMIT $2;`

	qJobPurgeTerminal = `
DELETE FROM notification_jobs
WHERE id IN (
    SELECT id FROM notification_jobs
    WHERE state IN ('delivered', 'cancelled') AND updated_at < $1
    LIMIT $2
);`
)

func (q *JobQueue) Enqueue(ctx context.Context, j *job.Job) (bool, error) {
	ctx, cancel := q.db.withTimeout(ctx)
	defer cancel()

	rows, err := q.db.execQueryer(ctx).Query(ctx, qJobEnqueue, j.UserID, j.ListingID)
	if err != nil {
		return false, fmt.Errorf("job enqueue: %w", mapPgError(err))
	}
	got, err := pgx.CollectRows(rows, scanJob)
	if err != nil {
		return false, fmt.Errorf("job enqueue: %w", mapPgError(err))
	}
	if len(got) == 0 {
		return false, nil
	}
	*j = *got[0]
	return true, nil
}

func (q *JobQueue) Dequeue(ctx context.Context) (*job.Job, error) {
	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// Exhausted expired leases are failed on every pass so a busy queue
		// never leaves them stuck in flight.
		if err := q.reapExhausted(ctx); err != nil {
			return nil, err
		}
		j, err := q.lease(ctx)
		if err != nil {
			return nil, err
		}
		if j != nil {
			return j, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q *JobQueue) lease(ctx context.Context) (*job.Job, error) {
	qctx, cancel := q.db.withTimeout(ctx)
	defer cancel()

	rows, err := q.db.Pool.Query(qctx, qJobLease, uuid.NewString(), interval(q.cfg.LeaseTTL), q.cfg.Policy.MaxAttempts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("job lease: %w", err)
	}
	got, err := pgx.CollectRows(rows, scanJob)
	if err != nil {
		return nil, fmt.Errorf("job lease: %w", err)
	}
	if len(got) == 0 {
		return nil, nil
	}
	return got[0], nil
}

func (q *JobQueue) reapExhausted(ctx context.Context) error {
	qctx, cancel := q.db.withTimeout(ctx)
	defer cancel()

	if _, err := q.db.Pool.Exec(qctx, qJobReapExhausted, q.cfg.Policy.MaxAttempts); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("job reap: %w", err)
	}
	return nil
}

func (q *JobQueue) Ack(ctx context.Context, j *job.Job) error {
	ctx, cancel := q.db.withTimeout(ctx)
	defer cancel()

	tag, err := q.db.Pool.Exec(ctx, qJobAck, j.ID, j.LeaseToken)
	if err != nil {
		return fmt.Errorf("job ack: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return job.ErrLeaseLost
	}
	j.State = job.Delivered
	return nil
}

func (q *JobQueue) Nack(ctx context.Context, j *job.Job, cause error, permanent bool) (job.State, error) {
	next, at := q.cfg.Policy.Decide(j, permanent, q.cfg.Now())
	var nextAt *time.Time
	if !at.IsZero() {
		nextAt = &at
	}
	if err := q.finish(ctx, j, next, nextAt, errString(cause)); err != nil {
		return "", err
	}
	if nextAt != nil {
		j.NextAttemptAt = at
	}
	return next, nil
}

func (q *JobQueue) Cancel(ctx context.Context, j *job.Job, reason string) error {
	return q.finish(ctx, j, job.Cancelled, nil, reason)
}

func (q *JobQueue) Defer(ctx context.Context, j *job.Job, until time.Time, reason string) error {
	ctx, cancel := q.db.withTimeout(ctx)
	defer cancel()

	var attempts int
	err := q.db.Pool.QueryRow(ctx, qJobDefer, j.ID, j.LeaseToken, until, clip(reason)).Scan(&attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return job.ErrLeaseLost
	}
	if err != nil {
		return fmt.Errorf("job defer: %w", err)
	}
	j.State = job.Retrying
	j.Attempts = attempts
	j.NextAttemptAt = until
	j.LastError = reason
	return nil
}

func (q *JobQueue) finish(ctx context.Context, j *job.Job, to job.State, nextAt *time.Time, lastErr string) error {
	if !job.CanTransition(j.State, to) {
		return fmt.Errorf("%w: %s -> %s", job.ErrInvalidTransition, j.State, to)
	}
	ctx, cancel := q.db.withTimeout(ctx)
	defer cancel()

	tag, err := q.db.Pool.Exec(ctx, qJobNack, j.ID, j.LeaseToken, string(to), nextAt, lastErr)
	if err != nil {
		return fmt.Errorf("job %s: %w", to, err)
	}
	if tag.RowsAffected() == 0 {
		return job.ErrLeaseLost
	}
	j.State = to
	j.LastError = lastErr
	return nil
}

func (q *JobQueue) ListByState(ctx context.Context, s job.State, limit int) ([]*job.Job, error) {
	ctx, cancel := q.db.withTimeout(ctx)
	defer cancel()

	rows, err := q.db.Pool.Query(ctx, qJobListByState, string(s), limit)
	if err != nil {
		return nil, fmt.Errorf("job list: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanJob)
	if err != nil {
		return nil, fmt.Errorf("job list: %w", err)
	}
	return out, nil
}

// PurgeTerminal deletes delivered and cancelled jobs. Failed jobs stay for operators.
func (q *JobQueue) PurgeTerminal(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	ctx, cancel := q.db.withTimeout(ctx)
	defer cancel()

	tag, err := q.db.Pool.Exec(ctx, qJobPurgeTerminal, olderThan, limit)
	if err != nil {
		return 0, fmt.Errorf("job purge: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanJob(row pgx.CollectableRow) (*job.Job, error) {
	var (
		j     job.Job
		state string
	)
	if err := row.Scan(&j.ID, &j.UserID, &j.ListingID, &state, &j.Attempts, &j.EnqueuedAt, &j.NextAttemptAt,
		&j.LeaseToken, &j.LeasedUntil, &j.LastError, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.State = job.State(state)
	return &j, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return clip(err.Error())
}

func clip(msg string) string {
	if len(msg) > maxLastError {
		msg = msg[:maxLastError]
	}
	return msg
}

const maxLastError = 1024
