package kafka

import (
	"context"

	domainkafka "github.com/NordCoder/Flatwatch/internal/domain/kafka"
	"github.com/NordCoder/Flatwatch/internal/domain/listing"
)

type ListingEventsKafka struct {
	p *Producer
}

func NewListingEventsKafka(p *Producer) *ListingEventsKafka { return &ListingEventsKafka{p: p} }

var _ domainkafka.ListingEvents = (*ListingEventsKafka)(nil)

// PublishListingCreated keys by external id so events for one listing keep their order.
func (e *ListingEventsKafka) PublishListingCreated(ctx context.Context, ev listing.CreatedEvent) error {
	return e.p.PublishJSON(ctx, []byte(ev.ExternalID), ev)
}
