package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NordCoder/Flatwatch/internal/domain/job"
)

func TestLedgerClaimLifecycle(t *testing.T) {
	clock := newClock()
	l := NewLedger(clock.Now)
	ctx := context.Background()
	k := job.Key{UserID: 1, ListingID: 2}

	res, err := l.Claim(ctx, k, "a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, job.Claimed, res)

	res, err = l.Claim(ctx, k, "b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, job.HeldByOther, res)

	// the same owner may claim again
	res, err = l.Claim(ctx, k, "a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, job.Claimed, res)

	require.ErrorIs(t, l.Complete(ctx, k, "b", job.OutcomeDelivered), job.ErrClaimLost)
	require.NoError(t, l.Complete(ctx, k, "a", job.OutcomeDelivered))

	res, err = l.Claim(ctx, k, "c", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, job.AlreadyDelivered, res)
}

func TestLedgerStaleClaimIsTakenOver(t *testing.T) {
	clock := newClock()
	l := NewLedger(clock.Now)
	ctx := context.Background()
	k := job.Key{UserID: 1, ListingID: 2}

	_, err := l.Claim(ctx, k, "crashed", time.Minute)
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	res, err := l.Claim(ctx, k, "next", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, job.Claimed, res)

	require.ErrorIs(t, l.Complete(ctx, k, "crashed", job.OutcomeDelivered), job.ErrClaimLost)
	require.NoError(t, l.Complete(ctx, k, "next", job.OutcomeFailed))

	res, err = l.Claim(ctx, k, "later", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, job.AlreadyFailed, res)
}

func TestLedgerRelease(t *testing.T) {
	l := NewLedger(nil)
	ctx := context.Background()
	k := job.Key{UserID: 3, ListingID: 4}

	_, err := l.Claim(ctx, k, "a", time.Minute)
	require.NoError(t, err)

	// a non-owner release is ignored
	require.NoError(t, l.Release(ctx, k, "b"))
	assert.Equal(t, statusSending, l.Status(k))

	require.NoError(t, l.Release(ctx, k, "a"))
	assert.Equal(t, "", l.Status(k))

	res, err := l.Claim(ctx, k, "b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, job.Claimed, res)
}
