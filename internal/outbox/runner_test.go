package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/NordCoder/Flatwatch/internal/domain/listing"
	"github.com/NordCoder/Flatwatch/internal/domain/outbox"
	"github.com/NordCoder/Flatwatch/internal/obs/retry"
	"github.com/NordCoder/Flatwatch/internal/repository/memory"
)

type fakeEvents struct {
	mu   sync.Mutex
	fail error
	got  []listing.CreatedEvent
}

func (f *fakeEvents) PublishListingCreated(_ context.Context, ev listing.CreatedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.got = append(f.got, ev)
	return nil
}

func newRunner(repo outbox.Repository, pub *fakeEvents) *Runner {
	pol := retry.Policy{Name: "test_outbox", Attempts: 1, Backoff: retry.ExpoJitter{}}
	return NewOutboxRunner(zap.NewNop(), repo, MakeGlobalOutboxHandler(pub, pol), 1, 10, time.Millisecond, time.Minute, nil)
}

func enqueueCreated(t *testing.T, repo outbox.Repository, id int64, ext string) {
	t.Helper()
	data, err := json.Marshal(listing.CreatedEvent{ListingID: id, ExternalID: ext})
	require.NoError(t, err)
	require.NoError(t, repo.Enqueue(context.Background(), outbox.Key(outbox.KindListingCreated, ext), outbox.KindListingCreated, data))
}

func TestTickPublishesAndMarksSuccess(t *testing.T) {
	repo := memory.NewOutboxRepo(nil)
	pub := &fakeEvents{}
	enqueueCreated(t, repo, 1, "a")
	enqueueCreated(t, repo, 2, "b")
	enqueueCreated(t, repo, 2, "b")

	r := newRunner(repo, pub)
	assert.Equal(t, 2, r.Tick(context.Background()))
	assert.Equal(t, 0, r.Tick(context.Background()))

	require.Len(t, pub.got, 2)
	assert.Equal(t, "a", pub.got[0].ExternalID)
	for _, m := range repo.Messages() {
		assert.Equal(t, outbox.StatusSuccess, m.Status)
	}
}

func TestTickLeavesFailedMessagesInProgress(t *testing.T) {
	repo := memory.NewOutboxRepo(nil)
	pub := &fakeEvents{fail: errors.New("broker down")}
	enqueueCreated(t, repo, 1, "a")

	r := newRunner(repo, pub)
	assert.Equal(t, 0, r.Tick(context.Background()))
	msgs := repo.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, outbox.StatusInProgress, msgs[0].Status)
}

func TestTickSettlesUndecodablePayload(t *testing.T) {
	repo := memory.NewOutboxRepo(nil)
	pub := &fakeEvents{}
	require.NoError(t, repo.Enqueue(context.Background(), "listing_created:bad", outbox.KindListingCreated, []byte("{")))

	r := newRunner(repo, pub)
	assert.Equal(t, 1, r.Tick(context.Background()))
	assert.Empty(t, pub.got)
	assert.Equal(t, outbox.StatusSuccess, repo.Messages()[0].Status)
}

func TestUnknownKindHasNoHandler(t *testing.T) {
	h := MakeGlobalOutboxHandler(&fakeEvents{}, retry.Policy{})
	_, err := h(outbox.Kind(99))
	require.Error(t, err)
}
