package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	v := t0.Add(d)
	return &v
}

func TestEntitled(t *testing.T) {
	tests := []struct {
		name string
		u    *User
		now  time.Time
		want bool
	}{
		{"nil user", nil, t0, false},
		{"nothing granted", &User{ID: 1}, t0, false},
		{"inside trial", &User{FreeUntil: at(time.Hour)}, t0, true},
		{"trial end is exclusive", &User{FreeUntil: at(0)}, t0, false},
		{"trial over", &User{FreeUntil: at(-time.Second)}, t0, false},
		{"paid", &User{SubscriptionUntil: at(time.Second)}, t0, true},
		{"paid end is exclusive", &User{SubscriptionUntil: at(0)}, t0, false},
		{"trial over but paid", &User{FreeUntil: at(-time.Hour), SubscriptionUntil: at(time.Hour)}, t0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.u.Entitled(tt.now))
		})
	}
}

func TestStartTrialOnce(t *testing.T) {
	u := &User{ID: 1}
	assert.True(t, u.StartTrial(t0))
	assert.Equal(t, t0.Add(TrialPeriod), *u.FreeUntil)

	assert.False(t, u.StartTrial(t0.Add(30*24*time.Hour)))
	assert.Equal(t, t0.Add(TrialPeriod), *u.FreeUntil)
}

func TestExtendSubscription(t *testing.T) {
	u := &User{ID: 1}
	u.ExtendSubscription(t0, SubscriptionPeriod)
	assert.Equal(t, t0.Add(SubscriptionPeriod), *u.SubscriptionUntil)

	// an active subscription is extended from its end
	u.ExtendSubscription(t0.Add(24*time.Hour), SubscriptionPeriod)
	assert.Equal(t, t0.Add(2*SubscriptionPeriod), *u.SubscriptionUntil)

	// a lapsed one restarts from now
	later := t0.Add(365 * 24 * time.Hour)
	u.ExtendSubscription(later, time.Hour)
	assert.Equal(t, later.Add(time.Hour), *u.SubscriptionUntil)
}
