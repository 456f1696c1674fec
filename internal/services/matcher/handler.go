package matcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/NordCoder/Flatwatch/internal/domain"
	"github.com/NordCoder/Flatwatch/internal/domain/job"
	"github.com/NordCoder/Flatwatch/internal/domain/listing"
	"github.com/NordCoder/Flatwatch/internal/domain/notification"
	"github.com/NordCoder/Flatwatch/internal/obs"
	"github.com/NordCoder/Flatwatch/internal/obs/retry"
)

// Handler fans a newly created listing out into notification jobs.
type Handler struct {
	log      *zap.Logger
	listings listing.Repo
	engine   *Engine
	gate     *Gate
	queue    job.Queue
	clock    notification.Clock

	mMatched    prometheus.Histogram
	mEnqueued   prometheus.Counter
	mDuplicate  prometheus.Counter
	mSuppressed prometheus.Counter
}

func NewHandler(log *zap.Logger, listings listing.Repo, engine *Engine, gate *Gate, queue job.Queue, clock notification.Clock, reg prometheus.Registerer) *Handler {
	f := promauto.With(reg)
	return &Handler{
		log:      log.With(zap.String("component", "matcher")),
		listings: listings,
		engine:   engine,
		gate:     gate,
		queue:    queue,
		clock:    clock,
		mMatched: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "matcher_matched_users",
			Help:    "Users whose filter matched a new listing.",
			Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000, 5000},
		}),
		mEnqueued: f.NewCounter(prometheus.CounterOpts{
			Name: "matcher_jobs_enqueued_total", Help: "Notification jobs enqueued.",
		}),
		mDuplicate: f.NewCounter(prometheus.CounterOpts{
			Name: "matcher_jobs_duplicate_total", Help: "Jobs skipped because the pair was already queued.",
		}),
		mSuppressed: f.NewCounter(prometheus.CounterOpts{
			Name: "matcher_users_unentitled_total", Help: "Matched users dropped by the entitlement gate.",
		}),
	}
}

// Handle matches the listing behind ev and enqueues one job per admitted
// user. Replays are harmless: the queue keeps a single job per pair.
func (h *Handler) Handle(ctx context.Context, ev listing.CreatedEvent) (int, error) {
	ctx, span := otel.Tracer("matcher").Start(ctx, "match")
	defer span.End()
	span.SetAttributes(attribute.Int64("listing.id", ev.ListingID))
	log := obs.WithTrace(ctx, h.log, zap.Int64("listing_id", ev.ListingID))

	l, err := h.listings.GetByID(ctx, ev.ListingID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Info("listing gone before matching")
		return 0, retry.Permanent(err)
	}
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("load listing: %w", err)
	}

	matched, err := h.engine.Match(ctx, l)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	h.mMatched.Observe(float64(len(matched)))

	admitted, err := h.gate.Admit(ctx, matched, h.clock.Now())
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	h.mSuppressed.Add(float64(len(matched) - len(admitted)))

	enqueued := 0
	for _, uid := range admitted {
		ok, err := h.queue.Enqueue(ctx, &job.Job{UserID: uid, ListingID: l.ID})
		if err != nil {
			span.RecordError(err)
			return enqueued, fmt.Errorf("enqueue job for user %d: %w", uid, err)
		}
		if !ok {
			h.mDuplicate.Inc()
			continue
		}
		enqueued++
		h.mEnqueued.Inc()
	}

	span.SetAttributes(
		attribute.Int("match.matched", len(matched)),
		attribute.Int("match.admitted", len(admitted)),
		attribute.Int("match.enqueued", enqueued),
	)
	log.Debug("listing matched",
		zap.Int("matched", len(matched)), zap.Int("admitted", len(admitted)), zap.Int("enqueued", enqueued))
	return enqueued, nil
}
