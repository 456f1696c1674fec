package reminder

import (
	"context"
	"time"
)

// Store deduplicates reminders across sweeps and janitor replicas.
type Store interface {
	// Mark records r and reports false when it was already recorded.
	Mark(ctx context.Context, r Reminder) (bool, error)
	// Unmark forgets r so a later sweep tries it again.
	Unmark(ctx context.Context, r Reminder) error
	Purge(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

// Sender delivers a plain text message to a user's chat.
type Sender interface {
	SendText(ctx context.Context, userID int64, text string) error
}
