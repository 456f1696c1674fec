package filter

import (
	"fmt"
	"slices"
	"time"

	"github.com/NordCoder/Flatwatch/internal/domain/listing"
)

// Filter is the single search subscription a user holds. A nil City, PriceMin,
// PriceMax or FloorMax means the criterion is unconstrained.
type Filter struct {
	UserID        int64                `json:"user_id"`
	PropertyType  listing.PropertyType `json:"property_type"`
	City          *int64               `json:"city,omitempty"`
	Rooms         []int                `json:"rooms_count"`
	PriceMin      *float64             `json:"price_min,omitempty"`
	PriceMax      *float64             `json:"price_max,omitempty"`
	FloorMax      *int                 `json:"floor_max,omitempty"`
	NotFirstFloor bool                 `json:"not_first_floor"`
	NotLastFloor  bool                 `json:"not_last_floor"`
	LastFloorOnly bool                 `json:"last_floor_only"`
	Paused        bool                 `json:"is_paused"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// Matches is the predicate used both when fanning out a new listing and when a
// dispatcher re-checks a job before sending. A paused filter or an empty room
// set never matches.
func (f *Filter) Matches(l *listing.Listing) bool {
	if f == nil || l == nil || f.Paused {
		return false
	}
	if f.PropertyType != l.PropertyType {
		return false
	}
	if f.City != nil && *f.City != l.City {
		return false
	}
	if !slices.Contains(f.Rooms, l.RoomsCount) {
		return false
	}
	if f.PriceMin != nil && l.Price < *f.PriceMin {
		return false
	}
	if f.PriceMax != nil && l.Price > *f.PriceMax {
		return false
	}
	return f.matchesFloor(l)
}

// floor criteria only apply when the listing reports its floor.
func (f *Filter) matchesFloor(l *listing.Listing) bool {
	if l.Floor <= 0 {
		return true
	}
	if f.FloorMax != nil && l.Floor > *f.FloorMax {
		return false
	}
	if f.NotFirstFloor && l.Floor == 1 {
		return false
	}
	if l.TotalFloors <= 0 {
		return true
	}
	last := l.Floor == l.TotalFloors
	if f.NotLastFloor && last {
		return false
	}
	if f.LastFloorOnly && !last {
		return false
	}
	return true
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid filter: %s %s", e.Field, e.Reason)
}

// Validate rejects filters the preference UI must never store.
func (f *Filter) Validate() error {
	switch {
	case f.UserID == 0:
		return &ValidationError{Field: "user_id", Reason: "is required"}
	case !f.PropertyType.Valid():
		return &ValidationError{Field: "property_type", Reason: fmt.Sprintf("unknown value %q", f.PropertyType)}
	case len(f.Rooms) == 0:
		return &ValidationError{Field: "rooms_count", Reason: "must not be empty"}
	case f.PriceMin != nil && *f.PriceMin < 0:
		return &ValidationError{Field: "price_min", Reason: "must not be negative"}
	case f.PriceMin != nil && f.PriceMax != nil && *f.PriceMin > *f.PriceMax:
		return &ValidationError{Field: "price_max", Reason: "is below price_min"}
	case f.NotLastFloor && f.LastFloorOnly:
		return &ValidationError{Field: "last_floor_only", Reason: "conflicts with not_last_floor"}
	}
	for _, r := range f.Rooms {
		if r <= 0 {
			return &ValidationError{Field: "rooms_count", Reason: "must contain positive values"}
		}
	}
	return nil
}

// Normalize sorts and deduplicates the room set.
func (f *Filter) Normalize() {
	slices.Sort(f.Rooms)
	f.Rooms = slices.Compact(f.Rooms)
}
