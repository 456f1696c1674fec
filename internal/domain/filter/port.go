package filter

import (
	"context"

	"github.com/NordCoder/Flatwatch/internal/domain/listing"
)

type Repo interface {
	// Put replaces the user's filter.
	Put(ctx context.Context, f *Filter) error
	Get(ctx context.Context, userID int64) (*Filter, error)
	Delete(ctx context.Context, userID int64) error
	SetPaused(ctx context.Context, userID int64, paused bool) error
	// Candidates returns active filters that can structurally match a listing
	// of the given property type in the given city.
	Candidates(ctx context.Context, pt listing.PropertyType, city int64) ([]*Filter, error)
}
