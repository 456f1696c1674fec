package janitor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/NordCoder/Flatwatch/internal/domain/job"
	"github.com/NordCoder/Flatwatch/internal/domain/listing"
	"github.com/NordCoder/Flatwatch/internal/domain/outbox"
	"github.com/NordCoder/Flatwatch/internal/domain/reminder"
)

type Retention struct {
	Listings  time.Duration
	Jobs      time.Duration
	Reminders time.Duration
}

type Usecase struct {
	Listings listing.Repo
	Jobs     job.Store
	Outbox   outbox.Purger
	// Reminders is optional; without it reminder marks are not purged.
	Reminders reminder.Store
}

type Report struct {
	Listings  int
	Jobs      int
	Outbox    int
	Reminders int
}

// Sweep deletes old listings, settled jobs, published outbox rows and sent
// reminder marks in batches of at most limit until each table is clean.
// Failed jobs are kept for operators.
func (u *Usecase) Sweep(ctx context.Context, now time.Time, ret Retention, limit int) (Report, error) {
	if limit <= 0 {
		limit = 1000
	}
	ctx, span := otel.Tracer("janitor.uc").Start(ctx, "janitor.sweep",
		trace.WithAttributes(attribute.Int("batch.limit", limit)))
	defer span.End()

	var rep Report
	var err error
	if ret.Listings > 0 {
		rep.Listings, err = drain(ctx, limit, func(ctx context.Context) (int, error) {
			return u.Listings.DeleteOlderThan(ctx, now.Add(-ret.Listings), limit)
		})
		if err != nil {
			span.RecordError(err)
			return rep, fmt.Errorf("purge listings: %w", err)
		}
	}
	if ret.Jobs > 0 {
		cutoff := now.Add(-ret.Jobs)
		rep.Jobs, err = drain(ctx, limit, func(ctx context.Context) (int, error) {
			return u.Jobs.PurgeTerminal(ctx, cutoff, limit)
		})
		if err != nil {
			span.RecordError(err)
			return rep, fmt.Errorf("purge jobs: %w", err)
		}
		rep.Outbox, err = drain(ctx, limit, func(ctx context.Context) (int, error) {
			return u.Outbox.Purge(ctx, cutoff, limit)
		})
		if err != nil {
			span.RecordError(err)
			return rep, fmt.Errorf("purge outbox: %w", err)
		}
	}

	if ret.Reminders > 0 && u.Reminders != nil {
		rep.Reminders, err = drain(ctx, limit, func(ctx context.Context) (int, error) {
			return u.Reminders.Purge(ctx, now.Add(-ret.Reminders), limit)
		})
		if err != nil {
			span.RecordError(err)
			return rep, fmt.Errorf("purge reminders: %w", err)
		}
	}

	span.SetAttributes(
		attribute.Int("purged.reminders", rep.Reminders),
		attribute.Int("purged.listings", rep.Listings),
		attribute.Int("purged.jobs", rep.Jobs),
		attribute.Int("purged.outbox", rep.Outbox),
	)
	return rep, nil
}

func drain(ctx context.Context, limit int, step func(context.Context) (int, error)) (int, error) {
	total := 0
	for {
		n, err := step(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < limit {
			return total, nil
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
}
