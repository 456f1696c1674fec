package kafka

import (
	"context"

	"github.com/NordCoder/Flatwatch/internal/domain/listing"
)

type ListingEvents interface {
	PublishListingCreated(ctx context.Context, ev listing.CreatedEvent) error
}
