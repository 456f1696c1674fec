package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/Flatwatch/internal/domain/favorite"
)

var _ favorite.Repo = (*FavoriteRepo)(nil)

type FavoriteRepo struct{ db *DB }

func NewFavoriteRepo(db *DB) *FavoriteRepo { return &FavoriteRepo{db: db} }

const (
	qFavoriteAdd = `
INSERT INTO favorite_ads (user_id, listing_id)
VALUES ($1, $2)
ON CONFLICT (user_id, listing_id) DO NOTHING;`

	qFavoriteRemove = `DELETE FROM favorite_ads WHERE user_id = $1 AND listing_id = $2;`

	qFavoriteList = `
SELECT user_id, listing_id, created_at
FROM favorite_ads
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2;`
)

func (r *FavoriteRepo) Add(ctx context.Context, userID, listingID int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qFavoriteAdd, userID, listingID); err != nil {
		return fmt.Errorf("favorite add: %w", mapPgError(err))
	}
	return nil
}

func (r *FavoriteRepo) Remove(ctx context.Context, userID, listingID int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qFavoriteRemove, userID, listingID)
	if err != nil {
		return fmt.Errorf("favorite remove: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *FavoriteRepo) ListByUser(ctx context.Context, userID int64, limit int) ([]*favorite.Favorite, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qFavoriteList, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("favorite list: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByPos[favorite.Favorite])
	if err != nil {
		return nil, fmt.Errorf("favorite list: %w", err)
	}
	return out, nil
}
