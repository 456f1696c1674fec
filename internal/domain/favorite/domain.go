package favorite

import (
	"context"
	"time"
)

type Favorite struct {
	UserID    int64     `json:"user_id"`
	ListingID int64     `json:"listing_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Repo interface {
	// Add is idempotent on the (user, listing) pair.
	Add(ctx context.Context, userID, listingID int64) error
	Remove(ctx context.Context, userID, listingID int64) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]*Favorite, error)
}
