package outbox

import (
	"context"
	"time"
)

type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
)

type Kind int

const (
	KindListingCreated Kind = 1
)

func (k Kind) String() string {
	switch k {
	case KindListingCreated:
		return "listing_created"
	}
	return "unknown"
}

// Key builds the idempotency key for a kind and its natural identifier.
func Key(kind Kind, id string) string { return kind.String() + ":" + id }

type Message struct {
	IdempotencyKey string
	Kind           Kind
	Data           []byte
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Tracestate     string
	Traceparent    string
	Baggage        string
}

type Repository interface {
	// Enqueue ignores a key that is already present. Inside a transaction
	// carried by ctx it joins that transaction.
	Enqueue(ctx context.Context, key string, kind Kind, data []byte) error

	PickBatch(ctx context.Context, batch int, inProgressTTL time.Duration) ([]Message, error)

	MarkSuccess(ctx context.Context, keys []string) error
}

// Purger drops published messages once they are no longer needed for dedup.
type Purger interface {
	Purge(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

type KindHandler func(ctx context.Context, data []byte) error

type GlobalHandler func(kind Kind) (KindHandler, error)
