package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	config "github.com/NordCoder/Flatwatch/internal/config/janitor"
)

type Runner struct {
	Log *zap.Logger
	UC  *Usecase
	Cfg config.Janitor
	Now func() time.Time
	// Remind runs on Cfg.Reminders.Schedule when set and enabled.
	Remind *Reminders

	mPurged    *prometheus.CounterVec
	mReminders *prometheus.CounterVec
	mErr     prometheus.Counter
	mLoopDur prometheus.Histogram
}

func New(log *zap.Logger, uc *Usecase, cfg config.Janitor, reg prometheus.Registerer) *Runner {
	f := promauto.With(reg)
	return &Runner{
		Log: log.With(zap.String("component", "janitor")),
		UC:  uc,
		Cfg: cfg,
		Now: func() time.Time { return time.Now().UTC() },
		mPurged: f.NewCounterVec(prometheus.CounterOpts{
			Name: "janitor_rows_purged_total", Help: "Rows removed by retention sweeps.",
		}, []string{"table"}),
		mReminders: f.NewCounterVec(prometheus.CounterOpts{
			Name: "janitor_reminders_total", Help: "Subscription reminders by result.",
		}, []string{"result"}),
		mErr: f.NewCounter(prometheus.CounterOpts{
			Name: "janitor_errors_total", Help: "Failed janitor runs.",
		}),
		mLoopDur: f.NewHistogram(prometheus.HistogramOpts{
			Name: "janitor_sweep_duration_seconds", Help: "Retention sweep duration.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (r *Runner) Sweep(ctx context.Context) {
	start := time.Now()
	rep, err := r.UC.Sweep(ctx, r.Now(), Retention{
		Listings:  r.Cfg.ListingRetention,
		Jobs:      r.Cfg.JobRetention,
		Reminders: r.Cfg.ReminderRetention,
	}, r.Cfg.BatchLimit)
	r.mPurged.WithLabelValues("listings").Add(float64(rep.Listings))
	r.mPurged.WithLabelValues("notification_jobs").Add(float64(rep.Jobs))
	r.mPurged.WithLabelValues("outbox").Add(float64(rep.Outbox))
	r.mPurged.WithLabelValues("subscription_reminders").Add(float64(rep.Reminders))
	r.mLoopDur.Observe(time.Since(start).Seconds())
	if err != nil {
		r.mErr.Inc()
		r.Log.Warn("sweep error", zap.Error(err))
		return
	}
	r.Log.Info("sweep done",
		zap.Int("listings", rep.Listings), zap.Int("jobs", rep.Jobs), zap.Int("outbox", rep.Outbox),
		zap.Int("reminders", rep.Reminders))
}

func (r *Runner) RemindExpiring(ctx context.Context) {
	rep, err := r.Remind.Run(ctx, r.Now())
	r.mReminders.WithLabelValues("sent").Add(float64(rep.Sent))
	r.mReminders.WithLabelValues("skipped").Add(float64(rep.Skipped))
	r.mReminders.WithLabelValues("failed").Add(float64(rep.Failed))
	if err != nil {
		r.mErr.Inc()
		r.Log.Warn("reminder run error", zap.Error(err))
		return
	}
	if rep.Sent+rep.Failed > 0 {
		r.Log.Info("reminders done",
			zap.Int("sent", rep.Sent), zap.Int("skipped", rep.Skipped), zap.Int("failed", rep.Failed))
	}
}

// Run sweeps, and sends reminders when enabled, on their cron schedules
// until ctx is done. A run in progress is allowed to finish.
func (r *Runner) Run(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(r.Cfg.Schedule, func() { r.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", r.Cfg.Schedule, err)
	}
	remind := r.Remind != nil && r.Cfg.Reminders.Enabled
	if remind {
		if _, err := c.AddFunc(r.Cfg.Reminders.Schedule, func() { r.RemindExpiring(ctx) }); err != nil {
			return fmt.Errorf("reminder schedule %q: %w", r.Cfg.Reminders.Schedule, err)
		}
	}
	if r.Cfg.RunOnStart {
		r.Sweep(ctx)
		if remind {
			r.RemindExpiring(ctx)
		}
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}
