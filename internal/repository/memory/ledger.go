package memory

import (
	"context"
	"sync"
	"time"

	"github.com/NordCoder/Flatwatch/internal/domain/job"
)

var _ job.Ledger = (*Ledger)(nil)

type ledgerEntry struct {
	status    string
	owner     string
	claimedAt time.Time
}

const statusSending = "sending"

type Ledger struct {
	mu      sync.Mutex
	entries map[job.Key]*ledgerEntry
	now     func() time.Time
}

func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{entries: map[job.Key]*ledgerEntry{}, now: now}
}

func (l *Ledger) Claim(_ context.Context, k job.Key, owner string, staleAfter time.Duration) (job.ClaimResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[k]
	if !ok {
		l.entries[k] = &ledgerEntry{status: statusSending, owner: owner, claimedAt: now}
		return job.Claimed, nil
	}
	switch e.status {
	case string(job.OutcomeDelivered):
		return job.AlreadyDelivered, nil
	case string(job.OutcomeFailed):
		return job.AlreadyFailed, nil
	}
	if e.owner == owner || now.Sub(e.claimedAt) > staleAfter {
		e.owner = owner
		e.claimedAt = now
		return job.Claimed, nil
	}
	return job.HeldByOther, nil
}

func (l *Ledger) Complete(_ context.Context, k job.Key, owner string, o job.Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[k]
	if !ok || e.owner != owner || e.status != statusSending {
		return job.ErrClaimLost
	}
	e.status = string(o)
	return nil
}

func (l *Ledger) Release(_ context.Context, k job.Key, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[k]; ok && e.owner == owner && e.status == statusSending {
		delete(l.entries, k)
	}
	return nil
}

// Status reports the recorded status of a pair, or "" when absent.
func (l *Ledger) Status(k job.Key) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[k]; ok {
		return e.status
	}
	return ""
}
