package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/NordCoder/Flatwatch/internal/domain/reminder"
)

var _ reminder.Store = (*ReminderStore)(nil)

type ReminderStore struct {
	db *DB
}

func NewReminderStore(db *DB) *ReminderStore { return &ReminderStore{db: db} }

const (
	qReminderMark = `
INSERT INTO subscription_reminders (user_id, expires_on, days_left)
VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING;`

	qReminderUnmark = `
DELETE FROM subscription_reminders
WHERE user_id = $1 AND expires_on = $2 AND days_left = $3;`

	qReminderPurge = `
DELETE FROM subscription_reminders
WHERE (user_id, expires_on, days_left) IN (
    SELECT user_id, expires_on, days_left FROM subscription_reminders
    WHERE sent_at < $1
    LIMIT $2
);`
)

func (s *ReminderStore) Mark(ctx context.Context, r reminder.Reminder) (bool, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	tag, err := s.db.execQueryer(ctx).Exec(ctx, qReminderMark, r.UserID, r.Day, r.DaysLeft)
	if err != nil {
		return false, fmt.Errorf("reminder mark: %w", mapPgError(err))
	}
	return tag.RowsAffected() == 1, nil
}

func (s *ReminderStore) Unmark(ctx context.Context, r reminder.Reminder) error {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.execQueryer(ctx).Exec(ctx, qReminderUnmark, r.UserID, r.Day, r.DaysLeft); err != nil {
		return fmt.Errorf("reminder unmark: %w", err)
	}
	return nil
}

func (s *ReminderStore) Purge(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	tag, err := s.db.Pool.Exec(ctx, qReminderPurge, olderThan, limit)
	if err != nil {
		return 0, fmt.Errorf("reminder purge: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
