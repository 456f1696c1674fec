package listing

import (
	"context"
	"time"
)

type Repo interface {
	// Upsert inserts the record or updates the mutable fields of an existing
	// listing with the same external id, reporting which one happened.
	Upsert(ctx context.Context, r *Record) (*Listing, Result, error)
	GetByID(ctx context.Context, id int64) (*Listing, error)
	GetByExternalID(ctx context.Context, externalID string) (*Listing, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int, error)
}
