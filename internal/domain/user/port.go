package user

import (
	"context"
	"time"
)

type Repo interface {
	Upsert(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetMany(ctx context.Context, ids []int64) (map[int64]*User, error)
	Delete(ctx context.Context, id int64) error
	// ExpiringBetween pages through users whose paid subscription ends in
	// [from, to), ordered by id and starting after afterID.
	ExpiringBetween(ctx context.Context, from, to time.Time, afterID int64, limit int) ([]*User, error)
}
