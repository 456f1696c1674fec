package memory

import (
	"context"
	"sync"
	"time"

	"github.com/NordCoder/Flatwatch/internal/domain/filter"
	"github.com/NordCoder/Flatwatch/internal/domain/listing"
)

var _ filter.Repo = (*FilterRepo)(nil)

// anyCity is the bucket for filters without a city constraint.
const anyCity int64 = 0

type bucket struct {
	pt   listing.PropertyType
	city int64
}

// FilterRepo indexes active filters by (property type, city) so candidate
// lookup only touches filters that can structurally match.
type FilterRepo struct {
	mu     sync.RWMutex
	byUser map[int64]*filter.Filter
	index  map[bucket]map[int64]struct{}
	now    func() time.Time
}

func NewFilterRepo(now func() time.Time) *FilterRepo {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &FilterRepo{
		byUser: map[int64]*filter.Filter{},
		index:  map[bucket]map[int64]struct{}{},
		now:    now,
	}
}

func bucketOf(f *filter.Filter) bucket {
	b := bucket{pt: f.PropertyType, city: anyCity}
	if f.City != nil {
		b.city = *f.City
	}
	return b
}

func (r *FilterRepo) unindex(f *filter.Filter) {
	b := bucketOf(f)
	if set, ok := r.index[b]; ok {
		delete(set, f.UserID)
		if len(set) == 0 {
			delete(r.index, b)
		}
	}
}

func (r *FilterRepo) reindex(f *filter.Filter) {
	if f.Paused {
		return
	}
	b := bucketOf(f)
	set, ok := r.index[b]
	if !ok {
		set = map[int64]struct{}{}
		r.index[b] = set
	}
	set[f.UserID] = struct{}{}
}

func (r *FilterRepo) Put(_ context.Context, f *filter.Filter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byUser[f.UserID]; ok {
		r.unindex(old)
	}
	f.UpdatedAt = r.now()
	cp := cloneFilter(f)
	r.byUser[f.UserID] = cp
	r.reindex(cp)
	return nil
}

func (r *FilterRepo) Get(_ context.Context, userID int64) (*filter.Filter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneFilter(f), nil
}

func (r *FilterRepo) Delete(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.byUser[userID]
	if !ok {
		return ErrNotFound
	}
	r.unindex(f)
	delete(r.byUser, userID)
	return nil
}

func (r *FilterRepo) SetPaused(_ context.Context, userID int64, paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.byUser[userID]
	if !ok {
		return ErrNotFound
	}
	r.unindex(f)
	f.Paused = paused
	f.UpdatedAt = r.now()
	r.reindex(f)
	return nil
}

func (r *FilterRepo) Candidates(_ context.Context, pt listing.PropertyType, city int64) ([]*filter.Filter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exact := r.index[bucket{pt: pt, city: city}]
	wild := r.index[bucket{pt: pt, city: anyCity}]
	out := make([]*filter.Filter, 0, len(exact)+len(wild))
	for uid := range exact {
		out = append(out, cloneFilter(r.byUser[uid]))
	}
	if city != anyCity {
		for uid := range wild {
			out = append(out, cloneFilter(r.byUser[uid]))
		}
	}
	return out, nil
}

func cloneFilter(f *filter.Filter) *filter.Filter {
	cp := *f
	cp.Rooms = append([]int(nil), f.Rooms...)
	if f.City != nil {
		v := *f.City
		cp.City = &v
	}
	if f.PriceMin != nil {
		v := *f.PriceMin
		cp.PriceMin = &v
	}
	if f.PriceMax != nil {
		v := *f.PriceMax
		cp.PriceMax = &v
	}
	if f.FloorMax != nil {
		v := *f.FloorMax
		cp.FloorMax = &v
	}
	return &cp
}
