package ingestor

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/Flatwatch/internal/domain/listing"
	"github.com/NordCoder/Flatwatch/internal/domain/outbox"
	"github.com/NordCoder/Flatwatch/internal/obs/retry"
	"github.com/NordCoder/Flatwatch/internal/repository/memory"
)

func newCoordinator(t *testing.T) (*Coordinator, *memory.ListingRepo, *memory.OutboxRepo) {
	t.Helper()
	listings := memory.NewListingRepo(nil)
	ob := memory.NewOutboxRepo(nil)
	return NewCoordinator(zap.NewNop(), memory.Transactor{}, listings, ob, prometheus.NewRegistry()), listings, ob
}

func record(ext string) *listing.Record {
	return &listing.Record{
		ExternalID:   ext,
		PropertyType: listing.Apartment,
		City:         1,
		Price:        50000,
		RoomsCount:   2,
		Images:       []string{"https://img.example/1.jpg"},
	}
}

func TestIngestIsIdempotent(t *testing.T) {
	uc, listings, ob := newCoordinator(t)
	ctx := context.Background()

	res, err := uc.Ingest(ctx, record("ext-1"))
	require.NoError(t, err)
	assert.Equal(t, listing.Created, res)

	for i := 0; i < 5; i++ {
		res, err = uc.Ingest(ctx, record("ext-1"))
		require.NoError(t, err)
		assert.Equal(t, listing.Updated, res)
	}

	assert.Equal(t, 1, listings.Len())
	msgs := ob.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, outbox.Key(outbox.KindListingCreated, "ext-1"), msgs[0].IdempotencyKey)

	var ev listing.CreatedEvent
	require.NoError(t, json.Unmarshal(msgs[0].Data, &ev))
	assert.Equal(t, "ext-1", ev.ExternalID)
	assert.NotZero(t, ev.ListingID)
}

func TestIngestUpdateKeepsIdentity(t *testing.T) {
	uc, listings, _ := newCoordinator(t)
	ctx := context.Background()

	_, err := uc.Ingest(ctx, record("ext-1"))
	require.NoError(t, err)
	first, err := listings.GetByExternalID(ctx, "ext-1")
	require.NoError(t, err)

	upd := record("ext-1")
	upd.Price = 42000
	upd.City = 9
	_, err = uc.Ingest(ctx, upd)
	require.NoError(t, err)

	got, err := listings.GetByExternalID(ctx, "ext-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, first.InsertTime, got.InsertTime)
	assert.Equal(t, int64(1), got.City)
	assert.Equal(t, 42000.0, got.Price)
}

func TestConcurrentIngestCreatesOnce(t *testing.T) {
	uc, listings, ob := newCoordinator(t)

	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := uc.Ingest(context.Background(), record("race"))
			if err == nil && res == listing.Created {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, 1, listings.Len())
	assert.Len(t, ob.Messages(), 1)
}

func TestIngestRejectsInvalidRecord(t *testing.T) {
	uc, listings, ob := newCoordinator(t)

	rec := record("  ")
	_, err := uc.Ingest(context.Background(), rec)
	var verr *listing.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "external_id", verr.Field)
	assert.Zero(t, listings.Len())
	assert.Empty(t, ob.Messages())
}

func TestHandleMarksValidationErrorsPermanent(t *testing.T) {
	uc, _, _ := newCoordinator(t)
	c := &Controller{Log: zap.NewNop(), UC: uc}

	bad := record("x")
	bad.RoomsCount = 0
	err := c.Handle(context.Background(), nil, bad)
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))

	require.NoError(t, c.Handle(context.Background(), nil, record("x")))
}

type failingOutbox struct{ *memory.OutboxRepo }

func (failingOutbox) Enqueue(context.Context, string, outbox.Kind, []byte) error {
	return errors.New("outbox down")
}

func TestIngestSurfacesStoreErrors(t *testing.T) {
	uc := NewCoordinator(zap.NewNop(), memory.Transactor{}, memory.NewListingRepo(nil), failingOutbox{memory.NewOutboxRepo(nil)}, prometheus.NewRegistry())
	c := &Controller{Log: zap.NewNop(), UC: uc}

	err := c.Handle(context.Background(), nil, record("y"))
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err))
}
