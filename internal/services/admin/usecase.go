package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Flatwatch/internal/domain"
	"github.com/NordCoder/Flatwatch/internal/domain/favorite"
	"github.com/NordCoder/Flatwatch/internal/domain/filter"
	"github.com/NordCoder/Flatwatch/internal/domain/job"
	"github.com/NordCoder/Flatwatch/internal/domain/listing"
	"github.com/NordCoder/Flatwatch/internal/domain/user"
)

var ErrTrialUsed = errors.New("trial already granted")

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// Usecase is the CRUD surface the preference UI and operators use.
type Usecase struct {
	Users     user.Repo
	Filters   filter.Repo
	Favorites favorite.Repo
	Listings  listing.Repo
	Jobs      job.Store
	Now       func() time.Time
}

func (u *Usecase) now() time.Time {
	if u.Now != nil {
		return u.Now()
	}
	return time.Now().UTC()
}

// RegisterUser creates the user if it does not exist yet and returns it.
func (u *Usecase) RegisterUser(ctx context.Context, id int64) (*user.User, bool, error) {
	existing, err := u.Users.GetByID(ctx, id)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}
	usr := &user.User{ID: id}
	if err := u.Users.Upsert(ctx, usr); err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	return usr, true, nil
}

func (u *Usecase) GetUser(ctx context.Context, id int64) (*user.User, error) {
	return u.Users.GetByID(ctx, id)
}

// DeleteUser removes the user together with the filter it owns.
func (u *Usecase) DeleteUser(ctx context.Context, id int64) error {
	if err := u.Filters.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("delete filter: %w", err)
	}
	return u.Users.Delete(ctx, id)
}

func (u *Usecase) StartTrial(ctx context.Context, id int64) (*user.User, error) {
	usr, err := u.Users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !usr.StartTrial(u.now()) {
		return nil, ErrTrialUsed
	}
	if err := u.Users.Upsert(ctx, usr); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	return usr, nil
}

func (u *Usecase) ExtendSubscription(ctx context.Context, id int64, d time.Duration) (*user.User, error) {
	if d <= 0 {
		d = user.SubscriptionPeriod
	}
	usr, err := u.Users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	usr.ExtendSubscription(u.now(), d)
	if err := u.Users.Upsert(ctx, usr); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	return usr, nil
}

// PutFilter replaces the user's filter.
func (u *Usecase) PutFilter(ctx context.Context, f *filter.Filter) error {
	f.Normalize()
	if err := f.Validate(); err != nil {
		return err
	}
	if _, err := u.Users.GetByID(ctx, f.UserID); err != nil {
		return err
	}
	return u.Filters.Put(ctx, f)
}

func (u *Usecase) GetFilter(ctx context.Context, userID int64) (*filter.Filter, error) {
	return u.Filters.Get(ctx, userID)
}

func (u *Usecase) DeleteFilter(ctx context.Context, userID int64) error {
	return u.Filters.Delete(ctx, userID)
}

func (u *Usecase) SetPaused(ctx context.Context, userID int64, paused bool) error {
	return u.Filters.SetPaused(ctx, userID, paused)
}

func (u *Usecase) ListFavorites(ctx context.Context, userID int64, limit int) ([]*favorite.Favorite, error) {
	return u.Favorites.ListByUser(ctx, userID, clampLimit(limit))
}

func (u *Usecase) AddFavorite(ctx context.Context, userID, listingID int64) error {
	if _, err := u.Users.GetByID(ctx, userID); err != nil {
		return err
	}
	if _, err := u.Listings.GetByID(ctx, listingID); err != nil {
		return err
	}
	return u.Favorites.Add(ctx, userID, listingID)
}

func (u *Usecase) RemoveFavorite(ctx context.Context, userID, listingID int64) error {
	return u.Favorites.Remove(ctx, userID, listingID)
}

func (u *Usecase) Listing(ctx context.Context, externalID string) (*listing.Listing, error) {
	return u.Listings.GetByExternalID(ctx, externalID)
}

// FailedJobs lists jobs that exhausted their attempts or failed permanently.
func (u *Usecase) FailedJobs(ctx context.Context, limit int) ([]*job.Job, error) {
	return u.Jobs.ListByState(ctx, job.Failed, clampLimit(limit))
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultListLimit
	case n > maxListLimit:
		return maxListLimit
	}
	return n
}
