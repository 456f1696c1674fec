package job

import (
	"errors"
	"fmt"
	"time"
)

type State string

const (
	Pending   State = "pending"
	InFlight  State = "in_flight"
	Retrying  State = "retrying"
	Delivered State = "delivered"
	Failed    State = "failed"
	Cancelled State = "cancelled"
)

func (s State) Terminal() bool {
	return s == Delivered || s == Failed || s == Cancelled
}

var transitions = map[State][]State{
	Pending:  {InFlight},
	Retrying: {InFlight},
	// a lease that runs out hands the job to the next worker
	InFlight: {InFlight, Delivered, Retrying, Failed, Cancelled},
}

// CanTransition reports whether a job may move from one state to another.
// Nothing moves back to Pending and terminal states have no way out.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

var (
	ErrLeaseLost         = errors.New("job lease lost")
	ErrClaimLost         = errors.New("delivery claim lost")
	ErrInvalidTransition = errors.New("invalid job state transition")
)

type Key struct {
	UserID    int64
	ListingID int64
}

func (k Key) String() string { return fmt.Sprintf("%d:%d", k.UserID, k.ListingID) }

// Job is one pending notification for a (user, listing) pair. LeaseToken is
// set by Dequeue and identifies the attempt that currently owns the job.
type Job struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	ListingID     int64     `json:"listing_id"`
	State         State     `json:"state"`
	Attempts      int       `json:"attempts"`
	EnqueuedAt    time.Time `json:"enqueued_at"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	LeaseToken    string    `json:"-"`
	LeasedUntil   time.Time `json:"-"`
	LastError     string    `json:"last_error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (j *Job) Key() Key { return Key{UserID: j.UserID, ListingID: j.ListingID} }

type Backoff interface {
	Next(attempt int) time.Duration
}

// RetryPolicy decides what a failed attempt turns into.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     Backoff
}

// Decide returns the next state for a job whose latest attempt failed, and
// when it may run again if it is retried. Attempts counts the attempt that
// just failed.
func (p RetryPolicy) Decide(j *Job, permanent bool, now time.Time) (State, time.Time) {
	if permanent || j.Attempts >= p.MaxAttempts {
		return Failed, time.Time{}
	}
	var delay time.Duration
	if p.Backoff != nil {
		delay = p.Backoff.Next(j.Attempts - 1)
	}
	return Retrying, now.Add(delay)
}
