package ingestor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/NordCoder/Flatwatch/internal/domain/listing"
	"github.com/NordCoder/Flatwatch/internal/domain/outbox"
	"github.com/NordCoder/Flatwatch/internal/obs"
)

type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Coordinator persists scraped records. A record seen for the first time is
// scheduled for matching through the outbox in the same transaction, so a
// listing is handed to matching exactly once.
type Coordinator struct {
	log      *zap.Logger
	tx       Transactor
	listings listing.Repo
	outbox   outbox.Repository

	mResult   *prometheus.CounterVec
	mRejected prometheus.Counter
}

func NewCoordinator(log *zap.Logger, tx Transactor, listings listing.Repo, ob outbox.Repository, reg prometheus.Registerer) *Coordinator {
	f := promauto.With(reg)
	return &Coordinator{
		log:      log.With(zap.String("component", "ingestor.coordinator")),
		tx:       tx,
		listings: listings,
		outbox:   ob,
		mResult: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_records_total", Help: "Ingested records by result (created/updated).",
		}, []string{"result"}),
		mRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "ingest_records_rejected_total", Help: "Records rejected by validation.",
		}),
	}
}

func (c *Coordinator) Ingest(ctx context.Context, rec *listing.Record) (listing.Result, error) {
	ctx, span := otel.Tracer("ingestor").Start(ctx, "ingest")
	defer span.End()

	rec.Normalize()
	if err := rec.Validate(); err != nil {
		c.mRejected.Inc()
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.String("listing.external_id", rec.ExternalID))

	var res listing.Result
	err := c.tx.WithTx(ctx, func(ctx context.Context) error {
		l, r, err := c.listings.Upsert(ctx, rec)
		if err != nil {
			return err
		}
		res = r
		if r != listing.Created {
			return nil
		}
		data, err := json.Marshal(listing.CreatedEvent{
			ListingID:  l.ID,
			ExternalID: l.ExternalID,
			InsertTime: l.InsertTime,
		})
		if err != nil {
			return fmt.Errorf("marshal created event: %w", err)
		}
		return c.outbox.Enqueue(ctx, outbox.Key(outbox.KindListingCreated, l.ExternalID), outbox.KindListingCreated, data)
	})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("ingest %s: %w", rec.ExternalID, err)
	}

	c.mResult.WithLabelValues(res.String()).Inc()
	span.SetAttributes(attribute.String("ingest.result", res.String()))
	obs.WithTrace(ctx, c.log).Debug("record ingested",
		zap.String("external_id", rec.ExternalID), zap.Stringer("result", res))
	return res, nil
}
