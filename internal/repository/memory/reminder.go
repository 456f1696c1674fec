package memory

import (
	"context"
	"sync"
	"time"

	"github.com/NordCoder/Flatwatch/internal/domain/reminder"
)

var _ reminder.Store = (*ReminderStore)(nil)

type ReminderStore struct {
	mu   sync.Mutex
	sent map[reminder.Key]time.Time
	now  func() time.Time
}

func NewReminderStore(now func() time.Time) *ReminderStore {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ReminderStore{sent: map[reminder.Key]time.Time{}, now: now}
}

func (s *ReminderStore) Mark(_ context.Context, r reminder.Reminder) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := r.Key()
	if _, ok := s.sent[k]; ok {
		return false, nil
	}
	s.sent[k] = s.now()
	return true, nil
}

func (s *ReminderStore) Unmark(_ context.Context, r reminder.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sent, r.Key())
	return nil
}

func (s *ReminderStore) Purge(_ context.Context, olderThan time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, at := range s.sent {
		if limit > 0 && n >= limit {
			break
		}
		if at.Before(olderThan) {
			delete(s.sent, k)
			n++
		}
	}
	return n, nil
}

// Has reports whether k is recorded.
func (s *ReminderStore) Has(k reminder.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sent[k]
	return ok
}
