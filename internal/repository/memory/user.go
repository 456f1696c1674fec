package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/NordCoder/Flatwatch/internal/domain/user"
)

var _ user.Repo = (*UserRepo)(nil)

type UserRepo struct {
	mu    sync.RWMutex
	users map[int64]*user.User
	now   func() time.Time
}

func NewUserRepo(now func() time.Time) *UserRepo {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &UserRepo{users: map[int64]*user.User{}, now: now}
}

func (r *UserRepo) Upsert(_ context.Context, u *user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if old, ok := r.users[u.ID]; ok {
		u.CreatedAt = old.CreatedAt
	} else {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	r.users[u.ID] = cloneUser(u)
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id int64) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *UserRepo) GetMany(_ context.Context, ids []int64) (map[int64]*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int64]*user.User, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out[id] = cloneUser(u)
		}
	}
	return out, nil
}

func (r *UserRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *UserRepo) ExpiringBetween(_ context.Context, from, to time.Time, afterID int64, limit int) ([]*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*user.User
	for _, u := range r.users {
		if u.ID <= afterID || u.SubscriptionUntil == nil {
			continue
		}
		if u.SubscriptionUntil.Before(from) || !u.SubscriptionUntil.Before(to) {
			continue
		}
		out = append(out, cloneUser(u))
	}
	slices.SortFunc(out, func(a, b *user.User) int { return cmp.Compare(a.ID, b.ID) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneUser(u *user.User) *user.User {
	cp := *u
	if u.FreeUntil != nil {
		v := *u.FreeUntil
		cp.FreeUntil = &v
	}
	if u.SubscriptionUntil != nil {
		v := *u.SubscriptionUntil
		cp.SubscriptionUntil = &v
	}
	return &cp
}
