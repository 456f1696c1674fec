package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/NordCoder/Flatwatch/internal/domain/favorite"
)

var _ favorite.Repo = (*FavoriteRepo)(nil)

type FavoriteRepo struct {
	mu   sync.Mutex
	favs map[int64]map[int64]time.Time
	now  func() time.Time
}

func NewFavoriteRepo(now func() time.Time) *FavoriteRepo {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &FavoriteRepo{favs: map[int64]map[int64]time.Time{}, now: now}
}

func (r *FavoriteRepo) Add(_ context.Context, userID, listingID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.favs[userID]
	if !ok {
		set = map[int64]time.Time{}
		r.favs[userID] = set
	}
	if _, ok := set[listingID]; !ok {
		set[listingID] = r.now()
	}
	return nil
}

func (r *FavoriteRepo) Remove(_ context.Context, userID, listingID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.favs[userID][listingID]; !ok {
		return ErrNotFound
	}
	delete(r.favs[userID], listingID)
	return nil
}

func (r *FavoriteRepo) ListByUser(_ context.Context, userID int64, limit int) ([]*favorite.Favorite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*favorite.Favorite, 0, len(r.favs[userID]))
	for lid, at := range r.favs[userID] {
		out = append(out, &favorite.Favorite{UserID: userID, ListingID: lid, CreatedAt: at})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ListingID > out[j].ListingID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
