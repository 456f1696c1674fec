package job

import (
	"context"
	"time"
)

// Queue delivers jobs at least once: a job whose lease expires before it is
// acknowledged becomes deliverable again.
type Queue interface {
	// Enqueue reports false when a job for the same pair already exists.
	Enqueue(ctx context.Context, j *Job) (bool, error)
	// Dequeue blocks until a job is leased or ctx is done.
	Dequeue(ctx context.Context) (*Job, error)
	Ack(ctx context.Context, j *Job) error
	// Nack records a failed attempt and returns the state the job moved to.
	Nack(ctx context.Context, j *Job, cause error, permanent bool) (State, error)
	Cancel(ctx context.Context, j *Job, reason string) error
	// Defer hands the job back until the given time without counting the
	// current attempt.
	Defer(ctx context.Context, j *Job, until time.Time, reason string) error
}

type Store interface {
	ListByState(ctx context.Context, s State, limit int) ([]*Job, error)
	PurgeTerminal(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

type ClaimResult int

const (
	Claimed ClaimResult = iota + 1
	AlreadyDelivered
	AlreadyFailed
	HeldByOther
)

func (c ClaimResult) String() string {
	switch c {
	case Claimed:
		return "claimed"
	case AlreadyDelivered:
		return "already_delivered"
	case AlreadyFailed:
		return "already_failed"
	case HeldByOther:
		return "held_by_other"
	}
	return "unknown"
}

type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeFailed    Outcome = "failed"
)

// Ledger records which (user, listing) pairs have had their side effect
// performed. Only the owner of a claim may send.
type Ledger interface {
	// Claim takes the pair for owner. A claim held by another owner for
	// longer than staleAfter is taken over.
	Claim(ctx context.Context, k Key, owner string, staleAfter time.Duration) (ClaimResult, error)
	Complete(ctx context.Context, k Key, owner string, o Outcome) error
	// Release drops an unfinished claim so a later attempt can take it.
	Release(ctx context.Context, k Key, owner string) error
}
