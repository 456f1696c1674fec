package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/Flatwatch/internal/domain/user"
)

var _ user.Repo = (*UserRepo)(nil)

type UserRepo struct {
	db *DB
}

func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

const (
	qUserUpsert = `
INSERT INTO users (id, free_until, subscription_until)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE
SET free_until         = EXCLUDED.free_until,
    subscription_until = EXCLUDED.subscription_until,
    updated_at         = now()
RETURNING created_at, updated_at;`

	qUserByID = `
SELECT id, free_until, subscription_until, created_at, updated_at
FROM users
WHERE id = $1;`

	qUserMany = `
SELECT id, free_until, subscription_until, created_at, updated_at
FROM users
WHERE id = ANY($1);`

	qUserDelete = `DELETE FROM users WHERE id = $1;`

	qUserExpiring = `
SELECT id, free_until, subscription_until, created_at, updated_at
FROM users
WHERE subscription_until >= $1 AND subscription_until < $2 AND id > $3
ORDER BY id
LIMIT $4;`
)

func (r *UserRepo) Upsert(ctx context.Context, u *user.User) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.execQueryer(ctx).QueryRow(ctx, qUserUpsert, u.ID, u.FreeUntil, u.SubscriptionUntil).
		Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return fmt.Errorf("user upsert: %w", mapPgError(err))
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qUserByID, id)
	if err != nil {
		return nil, fmt.Errorf("user get: %w", err)
	}
	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("user get: %w", err)
	}
	return u, nil
}

func (r *UserRepo) GetMany(ctx context.Context, ids []int64) (map[int64]*user.User, error) {
	out := make(map[int64]*user.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qUserMany, ids)
	if err != nil {
		return nil, fmt.Errorf("user get many: %w", err)
	}
	list, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, fmt.Errorf("user get many: %w", err)
	}
	for _, u := range list {
		out[u.ID] = u
	}
	return out, nil
}

func (r *UserRepo) Delete(ctx context.Context, id int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qUserDelete, id)
	if err != nil {
		return fmt.Errorf("user delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepo) ExpiringBetween(ctx context.Context, from, to time.Time, afterID int64, limit int) ([]*user.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qUserExpiring, from, to, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("user expiring: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, fmt.Errorf("user expiring: %w", err)
	}
	return out, nil
}

func scanUser(row pgx.CollectableRow) (*user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.FreeUntil, &u.SubscriptionUntil, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
