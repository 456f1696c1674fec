package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/Flatwatch/internal/domain/job"
)

var _ job.Ledger = (*DeliveryLedger)(nil)

// DeliveryLedger is the deliveries table: one row per (user, listing) pair
// whose notification has been attempted.
type DeliveryLedger struct{ db *DB }

func NewDeliveryLedger(db *DB) *DeliveryLedger { return &DeliveryLedger{db: db} }

const (
	qLedgerClaim = `
INSERT INTO deliveries (user_id, listing_id, status, owner)
VALUES ($1, $2, 'sending', $3)
ON CONFLICT (user_id, listing_id) DO UPDATE
SET owner = EXCLUDED.owner, claimed_at = now(), updated_at = now()
WHERE deliveries.status = 'sending'
  AND (deliveries.owner = EXCLUDED.owner OR deliveries.claimed_at < now() - $4::interval)
RETURNING status;`

	qLedgerStatus = `
SELECT status FROM deliveries
WHERE user_id = $1 AND listing_id = $2;`

	qLedgerComplete = `
UPDATE deliveries
SET status = $4, updated_at = now()
WHERE user_id = $1 AND listing_id = $2 AND owner = $3 AND status = 'sending';`

	qLedgerRelease = `
DELETE FROM deliveries
WHERE user_id = $1 AND listing_id = $2 AND owner = $3 AND status = 'sending';`
)

var errEmptyOwner = errors.New("claim owner is empty")

func (l *DeliveryLedger) Claim(ctx context.Context, k job.Key, owner string, staleAfter time.Duration) (job.ClaimResult, error) {
	if owner == "" {
		return 0, errEmptyOwner
	}
	ctx, cancel := l.db.withTimeout(ctx)
	defer cancel()

	var status string
	err := l.db.Pool.QueryRow(ctx, qLedgerClaim, k.UserID, k.ListingID, owner, interval(staleAfter)).Scan(&status)
	if err == nil {
		return job.Claimed, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("ledger claim: %w", mapPgError(err))
	}

	// the row exists and belongs to someone else or is settled
	err = l.db.Pool.QueryRow(ctx, qLedgerStatus, k.UserID, k.ListingID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return job.HeldByOther, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ledger status: %w", err)
	}
	switch status {
	case string(job.OutcomeDelivered):
		return job.AlreadyDelivered, nil
	case string(job.OutcomeFailed):
		return job.AlreadyFailed, nil
	default:
		return job.HeldByOther, nil
	}
}

func (l *DeliveryLedger) Complete(ctx context.Context, k job.Key, owner string, o job.Outcome) error {
	ctx, cancel := l.db.withTimeout(ctx)
	defer cancel()

	tag, err := l.db.Pool.Exec(ctx, qLedgerComplete, k.UserID, k.ListingID, owner, string(o))
	if err != nil {
		return fmt.Errorf("ledger complete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return job.ErrClaimLost
	}
	return nil
}

func (l *DeliveryLedger) Release(ctx context.Context, k job.Key, owner string) error {
	ctx, cancel := l.db.withTimeout(ctx)
	defer cancel()

	if _, err := l.db.Pool.Exec(ctx, qLedgerRelease, k.UserID, k.ListingID, owner); err != nil {
		return fmt.Errorf("ledger release: %w", err)
	}
	return nil
}
