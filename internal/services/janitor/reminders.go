package janitor

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/NordCoder/Flatwatch/internal/domain/notification"
	"github.com/NordCoder/Flatwatch/internal/domain/reminder"
	"github.com/NordCoder/Flatwatch/internal/domain/user"
	"github.com/NordCoder/Flatwatch/internal/obs"
)

// Reminders tells users that their subscription is about to end. Each stage
// of each subscription period is sent at most once; a transient send failure
// un-marks the stage so the next run tries again.
type Reminders struct {
	Log    *zap.Logger
	Users  user.Repo
	Store  reminder.Store
	Sender reminder.Sender
	Loc    *time.Location
	Batch  int
}

type RemindReport struct {
	Sent    int
	Skipped int
	Failed  int
}

func (r *Reminders) Run(ctx context.Context, now time.Time) (RemindReport, error) {
	batch := r.Batch
	if batch <= 0 {
		batch = 500
	}
	ctx, span := otel.Tracer("janitor.uc").Start(ctx, "janitor.reminders")
	defer span.End()

	var rep RemindReport
	from, to := reminder.Window(now, r.Loc)
	after := int64(0)
	for {
		users, err := r.Users.ExpiringBetween(ctx, from, to, after, batch)
		if err != nil {
			span.RecordError(err)
			return rep, fmt.Errorf("list expiring users: %w", err)
		}
		for _, u := range users {
			after = u.ID
			rem, ok := reminder.Due(u.ID, *u.SubscriptionUntil, now, r.Loc)
			if !ok {
				continue
			}
			if err := r.remind(ctx, rem, &rep); err != nil {
				span.RecordError(err)
				return rep, err
			}
		}
		if len(users) < batch {
			break
		}
		if err := ctx.Err(); err != nil {
			return rep, err
		}
	}

	span.SetAttributes(
		attribute.Int("reminders.sent", rep.Sent),
		attribute.Int("reminders.skipped", rep.Skipped),
		attribute.Int("reminders.failed", rep.Failed),
	)
	return rep, nil
}

// remind returns an error only when the store fails; send failures are
// counted and logged.
func (r *Reminders) remind(ctx context.Context, rem reminder.Reminder, rep *RemindReport) error {
	first, err := r.Store.Mark(ctx, rem)
	if err != nil {
		return fmt.Errorf("mark reminder: %w", err)
	}
	if !first {
		rep.Skipped++
		return nil
	}

	log := obs.WithTrace(ctx, r.Log, zap.Int64("user_id", rem.UserID), zap.Int("days_left", rem.DaysLeft))
	err = r.Sender.SendText(ctx, rem.UserID, rem.Text())
	switch {
	case err == nil:
		rep.Sent++
		log.Debug("reminder sent")
	case notification.IsPermanent(err):
		rep.Failed++
		log.Warn("reminder undeliverable", zap.Error(err))
	default:
		rep.Failed++
		log.Warn("reminder send failed; will retry next run", zap.Error(err))
		if err := r.Store.Unmark(ctx, rem); err != nil {
			return fmt.Errorf("unmark reminder: %w", err)
		}
	}
	return nil
}
