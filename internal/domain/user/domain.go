package user

import "time"

const (
	TrialPeriod        = 7 * 24 * time.Hour
	SubscriptionPeriod = 30 * 24 * time.Hour
)

// User is keyed by the chat identifier used for delivery.
type User struct {
	ID                int64      `json:"id"`
	FreeUntil         *time.Time `json:"free_until,omitempty"`
	SubscriptionUntil *time.Time `json:"subscription_until,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Entitled reports whether u may receive notifications at now. Both bounds are exclusive.
func (u *User) Entitled(now time.Time) bool {
	if u == nil {
		return false
	}
	if u.FreeUntil != nil && now.Before(*u.FreeUntil) {
		return true
	}
	return u.SubscriptionUntil != nil && now.Before(*u.SubscriptionUntil)
}

// StartTrial grants the free period once; it reports false if a trial was already granted.
func (u *User) StartTrial(now time.Time) bool {
	if u.FreeUntil != nil {
		return false
	}
	until := now.Add(TrialPeriod)
	u.FreeUntil = &until
	return true
}

// ExtendSubscription adds d to the current subscription end, or to now when it has lapsed.
func (u *User) ExtendSubscription(now time.Time, d time.Duration) {
	from := now
	if u.SubscriptionUntil != nil && u.SubscriptionUntil.After(now) {
		from = *u.SubscriptionUntil
	}
	until := from.Add(d)
	u.SubscriptionUntil = &until
}
