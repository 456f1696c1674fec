package ingestor

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/NordCoder/Flatwatch/internal/domain/listing"
	"github.com/NordCoder/Flatwatch/internal/obs"
	"github.com/NordCoder/Flatwatch/internal/obs/retry"
	kafkax "github.com/NordCoder/Flatwatch/internal/repository/kafka"
)

type Controller struct {
	Log *zap.Logger
	Sub *kafkax.Consumer
	UC  *Coordinator
}

func (c *Controller) Run(ctx context.Context) error {
	return c.Sub.Consume(ctx, kafkax.JSONHandler(c.Handle))
}

// Handle ingests one scraped record. Invalid records are dropped, store
// failures are retried by the consumer.
func (c *Controller) Handle(ctx context.Context, _ []byte, rec *listing.Record) error {
	_, err := c.UC.Ingest(ctx, rec)
	var verr *listing.ValidationError
	if errors.As(err, &verr) {
		obs.WithTrace(ctx, c.Log).Warn("record rejected",
			zap.String("external_id", rec.ExternalID), zap.Error(err))
		return retry.Permanent(err)
	}
	return err
}
