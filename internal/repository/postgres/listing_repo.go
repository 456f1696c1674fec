package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/NordCoder/Flatwatch/internal/domain/listing"
)

var _ listing.Repo = (*ListingRepo)(nil)

type ListingRepo struct {
	db *DB
	tx Transactor
}

func NewListingRepo(db *DB) *ListingRepo {
	return &ListingRepo{db: db, tx: NewTransactor(db, zap.L())}
}

const listingColumns = `
l.id, l.external_id, l.property_type, l.city, l.price::float8, l.rooms_count,
l.address, l.area::float8, l.floor, l.total_floors, l.description, l.source_url,
COALESCE((SELECT array_agg(i.url ORDER BY i.position) FROM listing_images i WHERE i.listing_id = l.id), '{}'),
l.insert_time, l.updated_at`

const (
	// xmax is zero only for a row version created by this statement's insert.
	qListingUpsert = `
INSERT INTO listings AS l (external_id, property_type, city, price, rooms_count,
                           address, area, floor, total_floors, description, source_url)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (external_id) DO UPDATE
SET price        = EXCLUDED.price,
    address      = EXCLUDED.address,
    area         = EXCLUDED.area,
    floor        = EXCLUDED.floor,
    total_floors = EXCLUDED.total_floors,
    description  = EXCLUDED.description,
    source_url   = EXCLUDED.source_url,
    updated_at   = now()
RETURNING l.id, l.external_id, l.property_type, l.city, l.price::float8, l.rooms_count,
          l.address, l.area::float8, l.floor, l.total_floors, l.description, l.source_url,
          l.insert_time, l.updated_at, (l.xmax = 0) AS inserted;`

	qListingImagesDelete = `DELETE FROM listing_images WHERE listing_id = $1;`

	qListingImagesInsert = `
INSERT INTO listing_images (listing_id, position, url)
SELECT $1, t.ord, t.url
FROM unnest($2::text[]) WITH ORDINALITY AS t(url, ord);`

	qListingByID = `SELECT` + listingColumns + `
FROM listings l
WHERE l.id = $1;`

	qListingByExternalID = `SELECT` + listingColumns + `
FROM listings l
WHERE l.external_id = $1;`

	qListingDeleteOld = `
DELETE FROM listings
WHERE id IN (
    SELECT id FROM listings
    WHERE insert_time < $1
    ORDER BY id
    LIMIT $2
);`
)

func (r *ListingRepo) Upsert(ctx context.Context, rec *listing.Record) (*listing.Listing, listing.Result, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		l        listing.Listing
		inserted bool
	)
	err := r.tx.WithTx(ctx, func(ctx context.Context) error {
		eq := r.db.execQueryer(ctx)
		if err := eq.QueryRow(ctx, qListingUpsert,
			rec.ExternalID, string(rec.PropertyType), rec.City, rec.Price, rec.RoomsCount,
			rec.Address, rec.Area, rec.Floor, rec.TotalFloors, rec.Description, rec.SourceURL,
		).Scan(
			&l.ID, &l.ExternalID, &l.PropertyType, &l.City, &l.Price, &l.RoomsCount,
			&l.Address, &l.Area, &l.Floor, &l.TotalFloors, &l.Description, &l.SourceURL,
			&l.InsertTime, &l.UpdatedAt, &inserted,
		); err != nil {
			return fmt.Errorf("listing upsert: %w", mapPgError(err))
		}

		if !inserted {
			if _, err := eq.Exec(ctx, qListingImagesDelete, l.ID); err != nil {
				return fmt.Errorf("listing images delete: %w", err)
			}
		}
		if len(rec.Images) > 0 {
			if _, err := eq.Exec(ctx, qListingImagesInsert, l.ID, rec.Images); err != nil {
				return fmt.Errorf("listing images insert: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	l.Images = append([]string(nil), rec.Images...)
	if inserted {
		return &l, listing.Created, nil
	}
	return &l, listing.Updated, nil
}

func (r *ListingRepo) GetByID(ctx context.Context, id int64) (*listing.Listing, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()
	return scanListing(r.db.execQueryer(ctx).QueryRow(ctx, qListingByID, id))
}

func (r *ListingRepo) GetByExternalID(ctx context.Context, externalID string) (*listing.Listing, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()
	return scanListing(r.db.execQueryer(ctx).QueryRow(ctx, qListingByExternalID, externalID))
}

func (r *ListingRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tag, err := r.db.execQueryer(ctx).Exec(ctx, qListingDeleteOld, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("listing delete old: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanListing(row pgx.Row) (*listing.Listing, error) {
	var l listing.Listing
	if err := row.Scan(
		&l.ID, &l.ExternalID, &l.PropertyType, &l.City, &l.Price, &l.RoomsCount,
		&l.Address, &l.Area, &l.Floor, &l.TotalFloors, &l.Description, &l.SourceURL,
		&l.Images, &l.InsertTime, &l.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan listing: %w", err)
	}
	if len(l.Images) == 0 {
		l.Images = nil
	}
	return &l, nil
}
