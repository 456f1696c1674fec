package memory

import (
	"context"
	"sync"
	"time"

	"github.com/NordCoder/Flatwatch/internal/domain/outbox"
)

var (
	_ outbox.Repository = (*OutboxRepo)(nil)
	_ outbox.Purger     = (*OutboxRepo)(nil)
)

type OutboxRepo struct {
	mu    sync.Mutex
	msgs  map[string]*outbox.Message
	order []string
	now   func() time.Time
}

func NewOutboxRepo(now func() time.Time) *OutboxRepo {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &OutboxRepo{msgs: map[string]*outbox.Message{}, now: now}
}

func (r *OutboxRepo) Enqueue(_ context.Context, key string, kind outbox.Kind, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.msgs[key]; ok {
		return nil
	}
	now := r.now()
	r.msgs[key] = &outbox.Message{
		IdempotencyKey: key,
		Kind:           kind,
		Data:           append([]byte(nil), data...),
		Status:         outbox.StatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.order = append(r.order, key)
	return nil
}

func (r *OutboxRepo) PickBatch(_ context.Context, batch int, inProgressTTL time.Duration) ([]outbox.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var out []outbox.Message
	for _, k := range r.order {
		if len(out) == batch {
			break
		}
		m := r.msgs[k]
		stale := m.Status == outbox.StatusInProgress && m.UpdatedAt.Before(now.Add(-inProgressTTL))
		if m.Status != outbox.StatusCreated && !stale {
			continue
		}
		m.Status = outbox.StatusInProgress
		m.UpdatedAt = now
		out = append(out, *m)
	}
	return out, nil
}

func (r *OutboxRepo) MarkSuccess(_ context.Context, keys []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range keys {
		if m, ok := r.msgs[k]; ok {
			m.Status = outbox.StatusSuccess
			m.UpdatedAt = r.now()
		}
	}
	return nil
}

func (r *OutboxRepo) Purge(_ context.Context, olderThan time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.order[:0]
	n := 0
	for _, k := range r.order {
		m := r.msgs[k]
		if m.Status == outbox.StatusSuccess && m.UpdatedAt.Before(olderThan) && (limit <= 0 || n < limit) {
			delete(r.msgs, k)
			n++
			continue
		}
		kept = append(kept, k)
	}
	r.order = kept
	return n, nil
}

// Messages returns copies of every stored message in insertion order.
func (r *OutboxRepo) Messages() []outbox.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]outbox.Message, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, *r.msgs[k])
	}
	return out
}
