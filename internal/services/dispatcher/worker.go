package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/NordCoder/Flatwatch/internal/domain"
	"github.com/NordCoder/Flatwatch/internal/domain/filter"
	"github.com/NordCoder/Flatwatch/internal/domain/job"
	"github.com/NordCoder/Flatwatch/internal/domain/listing"
	"github.com/NordCoder/Flatwatch/internal/domain/notification"
	"github.com/NordCoder/Flatwatch/internal/domain/user"
	"github.com/NordCoder/Flatwatch/internal/obs"
	"github.com/NordCoder/Flatwatch/internal/obs/retry"
)

type Deps struct {
	Queue    job.Queue
	Ledger   job.Ledger
	Users    user.Repo
	Filters  filter.Repo
	Listings listing.Repo
	Sender   notification.Sender
	Clock    notification.Clock
}

type PoolConfig struct {
	Workers         int
	ClaimStaleAfter time.Duration
	// ClaimRecheck is how soon a job whose pair is claimed elsewhere comes
	// back. It is capped at ClaimStaleAfter.
	ClaimRecheck time.Duration
	// ProcessTimeout bounds one job once it is leased. Shutdown does not cut
	// a job short; it only stops new dequeues.
	ProcessTimeout time.Duration
	ErrorBackoff   time.Duration
}

// Outcome labels what processing did with a leased job.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRetrying  Outcome = "retrying"
	OutcomeDeferred  Outcome = "deferred"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeLost      Outcome = "lease_lost"
)

var errHeldByOther = errors.New("delivery claimed by another attempt")

type Pool struct {
	log *zap.Logger
	d   Deps
	cfg PoolConfig

	mProcessed *prometheus.CounterVec
	mFailed    prometheus.Counter
	mSend      prometheus.Histogram
	mBusy      prometheus.Gauge
}

func NewPool(log *zap.Logger, d Deps, cfg PoolConfig, reg prometheus.Registerer) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = time.Minute
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	if cfg.ClaimRecheck <= 0 || cfg.ClaimRecheck > cfg.ClaimStaleAfter {
		cfg.ClaimRecheck = cfg.ClaimStaleAfter
	}
	f := promauto.With(reg)
	return &Pool{
		log: log.With(zap.String("component", "dispatcher")),
		d:   d,
		cfg: cfg,
		mProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dispatch_jobs_processed_total", Help: "Leased jobs by outcome.",
		}, []string{"outcome"}),
		mFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "dispatch_jobs_failed_total", Help: "Jobs that reached the failed state.",
		}),
		mSend: f.NewHistogram(prometheus.HistogramOpts{
			Name: "dispatch_send_duration_seconds", Help: "Notification send latency.",
			Buckets: prometheus.DefBuckets,
		}),
		mBusy: f.NewGauge(prometheus.GaugeOpts{
			Name: "dispatch_workers_busy", Help: "Workers currently processing a job.",
		}),
	}
}

// Run blocks until ctx is done and every worker has finished its current job.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go p.worker(ctx, &wg, uuid.NewString())
	}
	wg.Wait()
	return ctx.Err()
}

func (p *Pool) worker(ctx context.Context, wg *sync.WaitGroup, id string) {
	defer wg.Done()
	log := p.log.With(zap.String("worker", id))
	for {
		j, err := p.d.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("dequeue failed", zap.Error(err))
			if !sleep(ctx, p.cfg.ErrorBackoff) {
				return
			}
			continue
		}
		p.mBusy.Inc()
		jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.ProcessTimeout)
		p.Process(jctx, j)
		cancel()
		p.mBusy.Dec()
	}
}

// Process runs one leased job to a settled state. The delivery ledger, not
// the queue, decides whether the notification may be sent, so a job handed
// out twice produces at most one send.
func (p *Pool) Process(ctx context.Context, j *job.Job) Outcome {
	ctx, span := otel.Tracer("dispatcher").Start(ctx, "dispatch", trace.WithAttributes(
		attribute.Int64("job.id", j.ID),
		attribute.Int64("user.id", j.UserID),
		attribute.Int64("listing.id", j.ListingID),
		attribute.Int("job.attempt", j.Attempts),
	))
	defer span.End()

	log := obs.WithTrace(ctx, p.log,
		zap.Int64("job_id", j.ID), zap.Int64("user_id", j.UserID),
		zap.Int64("listing_id", j.ListingID), zap.Int("attempt", j.Attempts))

	out := p.process(ctx, log, j)
	span.SetAttributes(attribute.String("dispatch.outcome", string(out)))
	p.mProcessed.WithLabelValues(string(out)).Inc()
	return out
}

func (p *Pool) process(ctx context.Context, log *zap.Logger, j *job.Job) Outcome {
	l, reason, err := p.recheck(ctx, j)
	if err != nil {
		return p.retry(ctx, log, j, fmt.Errorf("recheck: %w", err), false)
	}
	if reason != "" {
		if err := p.settle(ctx, func() error { return p.d.Queue.Cancel(ctx, j, reason) }); err != nil {
			return p.lost(log, "cancel", err)
		}
		log.Info("job cancelled", zap.String("reason", reason))
		return OutcomeCancelled
	}

	key := j.Key()
	claim, err := p.d.Ledger.Claim(ctx, key, j.LeaseToken, p.cfg.ClaimStaleAfter)
	if err != nil {
		return p.retry(ctx, log, j, fmt.Errorf("claim: %w", err), false)
	}
	switch claim {
	case job.AlreadyDelivered:
		if err := p.settle(ctx, func() error { return p.d.Queue.Ack(ctx, j) }); err != nil {
			return p.lost(log, "ack", err)
		}
		log.Info("already delivered; acked without sending")
		return OutcomeDuplicate
	case job.AlreadyFailed:
		return p.retry(ctx, log, j, errors.New("delivery already failed permanently"), true)
	case job.HeldByOther:
		return p.deferHeld(ctx, log, j)
	}

	start := time.Now()
	sendErr := p.d.Sender.Send(ctx, j.UserID, j.ListingID, notification.Payload{Listing: l})
	p.mSend.Observe(time.Since(start).Seconds())

	switch {
	case sendErr == nil:
		if err := p.settle(ctx, func() error { return p.d.Ledger.Complete(ctx, key, j.LeaseToken, job.OutcomeDelivered) }); err != nil {
			log.Warn("sent but could not record delivery", zap.Error(err))
		}
		if err := p.settle(ctx, func() error { return p.d.Queue.Ack(ctx, j) }); err != nil {
			return p.lost(log, "ack", err)
		}
		log.Debug("notification delivered")
		return OutcomeDelivered

	case notification.IsPermanent(sendErr):
		if err := p.settle(ctx, func() error { return p.d.Ledger.Complete(ctx, key, j.LeaseToken, job.OutcomeFailed) }); err != nil {
			log.Warn("could not record failed delivery", zap.Error(err))
		}
		return p.retry(ctx, log, j, sendErr, true)

	default:
		if err := p.settle(ctx, func() error { return p.d.Ledger.Release(ctx, key, j.LeaseToken) }); err != nil {
			log.Warn("could not release delivery claim", zap.Error(err))
		}
		return p.retry(ctx, log, j, sendErr, false)
	}
}

// recheck reloads the state the job was enqueued against. A non-empty reason
// means the job must be cancelled instead of sent.
func (p *Pool) recheck(ctx context.Context, j *job.Job) (*listing.Listing, string, error) {
	u, err := p.d.Users.GetByID(ctx, j.UserID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, "user deleted", nil
	case err != nil:
		return nil, "", err
	case !u.Entitled(p.d.Clock.Now()):
		return nil, "entitlement expired", nil
	}

	f, err := p.d.Filters.Get(ctx, j.UserID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, "filter deleted", nil
	case err != nil:
		return nil, "", err
	case f.Paused:
		return nil, "filter paused", nil
	}

	l, err := p.d.Listings.GetByID(ctx, j.ListingID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return nil, "listing removed", nil
	case err != nil:
		return nil, "", err
	case !f.Matches(l):
		return nil, "filter no longer matches", nil
	}
	return l, "", nil
}

// retry records a failed attempt. The queue's retry policy decides whether
// the job comes back or fails for good.
func (p *Pool) retry(ctx context.Context, log *zap.Logger, j *job.Job, cause error, permanent bool) Outcome {
	var state job.State
	err := p.settle(ctx, func() error {
		var err error
		state, err = p.d.Queue.Nack(ctx, j, cause, permanent)
		return err
	})
	if err != nil {
		return p.lost(log, "nack", err)
	}
	if state == job.Failed {
		p.mFailed.Inc()
		log.Error("notification job failed",
			zap.Bool("permanent", permanent), zap.Int("attempts", j.Attempts), zap.Error(cause))
		return OutcomeFailed
	}
	log.Warn("delivery attempt failed; retrying",
		zap.Time("next_attempt_at", j.NextAttemptAt), zap.Error(cause))
	return OutcomeRetrying
}

// deferHeld parks a job whose pair another attempt is sending. The attempt
// is handed back: a crashed holder must not drain the retry budget before
// its claim goes stale.
func (p *Pool) deferHeld(ctx context.Context, log *zap.Logger, j *job.Job) Outcome {
	until := p.d.Clock.Now().Add(p.cfg.ClaimRecheck)
	err := p.settle(ctx, func() error {
		return p.d.Queue.Defer(ctx, j, until, errHeldByOther.Error())
	})
	if err != nil {
		return p.lost(log, "defer", err)
	}
	log.Info("delivery held by another attempt; deferred", zap.Time("next_attempt_at", until))
	return OutcomeDeferred
}

func (p *Pool) lost(log *zap.Logger, op string, err error) Outcome {
	if errors.Is(err, job.ErrLeaseLost) {
		log.Warn("lease lost before "+op, zap.Error(err))
	} else {
		log.Error(op+" failed", zap.Error(err))
	}
	return OutcomeLost
}

// settle retries short store writes. Lost leases and claims are final.
func (p *Pool) settle(ctx context.Context, fn func() error) error {
	return retry.Do(ctx, func() error {
		err := fn()
		if errors.Is(err, job.ErrLeaseLost) || errors.Is(err, job.ErrClaimLost) {
			return retry.Permanent(err)
		}
		return err
	}, retry.StorePolicy("dispatch_settle"))
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
