package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/NordCoder/Flatwatch/internal/domain/listing"
)

var _ listing.Repo = (*ListingRepo)(nil)

type ListingRepo struct {
	mu    sync.Mutex
	seq   int64
	byExt map[string]*listing.Listing
	byID  map[int64]*listing.Listing
	now   func() time.Time
}

func NewListingRepo(now func() time.Time) *ListingRepo {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ListingRepo{
		byExt: map[string]*listing.Listing{},
		byID:  map[int64]*listing.Listing{},
		now:   now,
	}
}

func (r *ListingRepo) Upsert(_ context.Context, rec *listing.Record) (*listing.Listing, listing.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if l, ok := r.byExt[rec.ExternalID]; ok {
		l.ApplyUpdate(rec, now)
		return cloneListing(l), listing.Updated, nil
	}
	r.seq++
	l := rec.ToListing(now)
	l.ID = r.seq
	r.byExt[l.ExternalID] = l
	r.byID[l.ID] = l
	return cloneListing(l), listing.Created, nil
}

func (r *ListingRepo) GetByID(_ context.Context, id int64) (*listing.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneListing(l), nil
}

func (r *ListingRepo) GetByExternalID(_ context.Context, externalID string) (*listing.Listing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.byExt[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneListing(l), nil
}

func (r *ListingRepo) DeleteOlderThan(_ context.Context, cutoff time.Time, limit int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]int64, 0)
	for id, l := range r.byID {
		if l.InsertTime.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	for _, id := range ids {
		delete(r.byExt, r.byID[id].ExternalID)
		delete(r.byID, id)
	}
	return len(ids), nil
}

func (r *ListingRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func cloneListing(l *listing.Listing) *listing.Listing {
	cp := *l
	cp.Images = append([]string(nil), l.Images...)
	return &cp
}
