package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/NordCoder/Flatwatch/internal/domain/filter"
	"github.com/NordCoder/Flatwatch/internal/domain/listing"
)

var _ filter.Repo = (*FilterRepo)(nil)

type FilterRepo struct{ db *DB }

func NewFilterRepo(db *DB) *FilterRepo { return &FilterRepo{db: db} }

const filterColumns = `
user_id, property_type, city, rooms_count, price_min::float8, price_max::float8,
floor_max, not_first_floor, not_last_floor, last_floor_only, is_paused, updated_at`

const (
	qFilterPut = `
INSERT INTO user_filters (user_id, property_type, city, rooms_count, price_min, price_max,
                          floor_max, not_first_floor, not_last_floor, last_floor_only, is_paused)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (user_id) DO UPDATE
SET property_type   = EXCLUDED.property_type,
    city            = EXCLUDED.city,
    rooms_count     = EXCLUDED.rooms_count,
    price_min       = EXCLUDED.price_min,
    price_max       = EXCLUDED.price_max,
    floor_max       = EXCLUDED.floor_max,
    not_first_floor = EXCLUDED.not_first_floor,
    not_last_floor  = EXCLUDED.not_last_floor,
    last_floor_only = EXCLUDED.last_floor_only,
    is_paused       = EXCLUDED.is_paused,
    updated_at      = now()
RETURNING updated_at;`

	qFilterGet = `SELECT` + filterColumns + `
FROM user_filters
WHERE user_id = $1;`

	qFilterDelete = `DELETE FROM user_filters WHERE user_id = $1;`

	qFilterPause = `
UPDATE user_filters
SET is_paused = $2, updated_at = now()
WHERE user_id = $1;`

	// Both branches are served by the partial indexes on user_filters.
	qFilterCandidates = `SELECT` + filterColumns + `
FROM user_filters
WHERE NOT is_paused AND property_type = $1 AND city = $2
UNION ALL
SELECT` + filterColumns + `
FROM user_filters
WHERE NOT is_paused AND property_type = $1 AND city IS NULL;`
)

func (r *FilterRepo) Put(ctx context.Context, f *filter.Filter) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rooms := f.Rooms
	if rooms == nil {
		rooms = []int{}
	}
	err := r.db.execQueryer(ctx).QueryRow(ctx, qFilterPut,
		f.UserID, string(f.PropertyType), f.City, rooms, f.PriceMin, f.PriceMax,
		f.FloorMax, f.NotFirstFloor, f.NotLastFloor, f.LastFloorOnly, f.Paused,
	).Scan(&f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("filter put: %w", mapPgError(err))
	}
	return nil
}

func (r *FilterRepo) Get(ctx context.Context, userID int64) (*filter.Filter, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qFilterGet, userID)
	if err != nil {
		return nil, fmt.Errorf("filter get: %w", err)
	}
	f, err := pgx.CollectExactlyOneRow(rows, scanFilter)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("filter get: %w", err)
	}
	return f, nil
}

func (r *FilterRepo) Delete(ctx context.Context, userID int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qFilterDelete, userID)
	if err != nil {
		return fmt.Errorf("filter delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *FilterRepo) SetPaused(ctx context.Context, userID int64, paused bool) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qFilterPause, userID, paused)
	if err != nil {
		return fmt.Errorf("filter pause: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *FilterRepo) Candidates(ctx context.Context, pt listing.PropertyType, city int64) ([]*filter.Filter, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qFilterCandidates, string(pt), city)
	if err != nil {
		return nil, fmt.Errorf("filter candidates: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanFilter)
	if err != nil {
		return nil, fmt.Errorf("filter candidates: %w", err)
	}
	return out, nil
}

func scanFilter(row pgx.CollectableRow) (*filter.Filter, error) {
	var (
		f  filter.Filter
		pt string
	)
	if err := row.Scan(
		&f.UserID, &pt, &f.City, &f.Rooms, &f.PriceMin, &f.PriceMax,
		&f.FloorMax, &f.NotFirstFloor, &f.NotLastFloor, &f.LastFloorOnly, &f.Paused, &f.UpdatedAt,
	); err != nil {
		return nil, err
	}
	f.PropertyType = listing.PropertyType(pt)
	return &f, nil
}
