// Package reminder models the notices a user gets before a paid
// subscription runs out: three, two and one day ahead and on the day itself.
package reminder

import (
	"fmt"
	"time"
)

// MaxDaysAhead is the earliest stage, in calendar days before expiry.
const MaxDaysAhead = 3

// Reminder is one notice for one stage of one subscription period. A renewal
// moves Day, so the next period is reminded afresh.
type Reminder struct {
	UserID    int64
	ExpiresAt time.Time
	// Day is the calendar date of expiry at UTC midnight.
	Day      time.Time
	DaysLeft int

	loc *time.Location
}

// Key identifies a reminder for deduplication.
type Key struct {
	UserID   int64
	Day      string
	DaysLeft int
}

func (r Reminder) Key() Key {
	return Key{UserID: r.UserID, Day: r.Day.Format(time.DateOnly), DaysLeft: r.DaysLeft}
}

// Due returns the reminder for a subscription ending at until, or false when
// until is not within MaxDaysAhead calendar days of now in loc. A
// subscription that ended earlier today is still due for its last notice.
func Due(userID int64, until, now time.Time, loc *time.Location) (Reminder, bool) {
	if loc == nil {
		loc = time.UTC
	}
	days := civilDays(now.In(loc), until.In(loc))
	if days < 0 || days > MaxDaysAhead {
		return Reminder{}, false
	}
	y, m, d := until.In(loc).Date()
	return Reminder{
		UserID:    userID,
		ExpiresAt: until,
		Day:       time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
		DaysLeft:  days,
		loc:       loc,
	}, true
}

// Window is the [from, to) range of expiry instants that can be due at now.
func Window(now time.Time, loc *time.Location) (from, to time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	from = time.Date(y, m, d, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 0, MaxDaysAhead+1)
}

func civilDays(from, to time.Time) int {
	fy, fm, fd := from.Date()
	ty, tm, td := to.Date()
	a := time.Date(fy, fm, fd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// Text renders the message body.
func (r Reminder) Text() string {
	loc := r.loc
	if loc == nil {
		loc = time.UTC
	}
	at := r.ExpiresAt.In(loc)
	switch r.DaysLeft {
	case 0:
		return fmt.Sprintf("⚠️ Your subscription ends today.\n\nEnd time: %s\n\n"+
			"Renew now to keep receiving new listings.", at.Format("02.01.2006 15:04"))
	case 1:
		return fmt.Sprintf("⚠️ Your subscription ends tomorrow.\n\nEnd date: %s\n\n"+
			"Renew now to keep receiving new listings.", at.Format("02.01.2006"))
	default:
		return fmt.Sprintf("⚠️ Subscription reminder\n\nYour subscription ends in %d days.\nEnd date: %s\n\n"+
			"Renew to keep receiving new listings.", r.DaysLeft, at.Format("02.01.2006"))
	}
}
