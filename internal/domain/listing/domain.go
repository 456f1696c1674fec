package listing

import (
	"fmt"
	"strings"
	"time"
)

type PropertyType string

const (
	Apartment  PropertyType = "apartment"
	House      PropertyType = "house"
	Room       PropertyType = "room"
	Commercial PropertyType = "commercial"
)

func (p PropertyType) Valid() bool {
	switch p {
	case Apartment, House, Room, Commercial:
		return true
	}
	return false
}

// Listing is a persisted property ad. ExternalID, PropertyType, City, RoomsCount
// and InsertTime never change after the first insert.
type Listing struct {
	ID           int64        `json:"id"`
	ExternalID   string       `json:"external_id"`
	PropertyType PropertyType `json:"property_type"`
	City         int64        `json:"city"`
	Price        float64      `json:"price"`
	RoomsCount   int          `json:"rooms_count"`
	Address      string       `json:"address,omitempty"`
	Area         float64      `json:"area,omitempty"`
	Floor        int          `json:"floor,omitempty"`
	TotalFloors  int          `json:"total_floors,omitempty"`
	Description  string       `json:"description,omitempty"`
	SourceURL    string       `json:"source_url,omitempty"`
	Images       []string     `json:"images,omitempty"`
	InsertTime   time.Time    `json:"insert_time"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Record is what a scraping adapter hands over for ingestion.
type Record struct {
	ExternalID   string       `json:"external_id"`
	PropertyType PropertyType `json:"property_type"`
	City         int64        `json:"city"`
	Price        float64      `json:"price"`
	RoomsCount   int          `json:"rooms_count"`
	Address      string       `json:"address,omitempty"`
	Area         float64      `json:"area,omitempty"`
	Floor        int          `json:"floor,omitempty"`
	TotalFloors  int          `json:"total_floors,omitempty"`
	Description  string       `json:"description,omitempty"`
	SourceURL    string       `json:"source_url,omitempty"`
	Images       []string     `json:"images,omitempty"`
}

type Result int

const (
	Created Result = iota + 1
	Updated
)

func (r Result) String() string {
	switch r {
	case Created:
		return "created"
	case Updated:
		return "updated"
	}
	return "unknown"
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid listing record: %s %s", e.Field, e.Reason)
}

func (r *Record) Validate() error {
	switch {
	case strings.TrimSpace(r.ExternalID) == "":
		return &ValidationError{Field: "external_id", Reason: "is required"}
	case r.PropertyType == "":
		return &ValidationError{Field: "property_type", Reason: "is required"}
	case !r.PropertyType.Valid():
		return &ValidationError{Field: "property_type", Reason: fmt.Sprintf("unknown value %q", r.PropertyType)}
	case r.City <= 0:
		return &ValidationError{Field: "city", Reason: "is required"}
	case r.Price < 0:
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	case r.RoomsCount <= 0:
		return &ValidationError{Field: "rooms_count", Reason: "must be positive"}
	case r.Area < 0:
		return &ValidationError{Field: "area", Reason: "must not be negative"}
	case r.Floor < 0 || r.TotalFloors < 0:
		return &ValidationError{Field: "floor", Reason: "must not be negative"}
	case r.TotalFloors > 0 && r.Floor > r.TotalFloors:
		return &ValidationError{Field: "floor", Reason: "exceeds total_floors"}
	}
	return nil
}

// Normalize trims free-text fields in place.
func (r *Record) Normalize() {
	r.ExternalID = strings.TrimSpace(r.ExternalID)
	r.Address = strings.TrimSpace(r.Address)
	r.Description = strings.TrimSpace(r.Description)
	r.SourceURL = strings.TrimSpace(r.SourceURL)
	imgs := r.Images[:0]
	for _, u := range r.Images {
		if u = strings.TrimSpace(u); u != "" {
			imgs = append(imgs, u)
		}
	}
	r.Images = imgs
}

// ToListing builds the listing that a first insert of r would produce.
func (r *Record) ToListing(now time.Time) *Listing {
	return &Listing{
		ExternalID:   r.ExternalID,
		PropertyType: r.PropertyType,
		City:         r.City,
		Price:        r.Price,
		RoomsCount:   r.RoomsCount,
		Address:      r.Address,
		Area:         r.Area,
		Floor:        r.Floor,
		TotalFloors:  r.TotalFloors,
		Description:  r.Description,
		SourceURL:    r.SourceURL,
		Images:       append([]string(nil), r.Images...),
		InsertTime:   now,
		UpdatedAt:    now,
	}
}

// ApplyUpdate copies the mutable fields of r onto l.
func (l *Listing) ApplyUpdate(r *Record, now time.Time) {
	l.Price = r.Price
	l.Address = r.Address
	l.Area = r.Area
	l.Floor = r.Floor
	l.TotalFloors = r.TotalFloors
	l.Description = r.Description
	l.SourceURL = r.SourceURL
	l.Images = append([]string(nil), r.Images...)
	l.UpdatedAt = now
}

// CreatedEvent is published once per newly created listing.
type CreatedEvent struct {
	ListingID  int64     `json:"listing_id"`
	ExternalID string    `json:"external_id"`
	InsertTime time.Time `json:"insert_time"`
}
