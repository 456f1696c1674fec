package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Flatwatch/internal/domain/listing"
)

// Payload is everything a sender needs to render one notification.
type Payload struct {
	Listing *listing.Listing
}

type Sender interface {
	Send(ctx context.Context, userID, listingID int64, p Payload) error
}

type Clock interface {
	Now() time.Time
}

// TransientError marks a delivery failure worth retrying.
type TransientError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient delivery error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a delivery failure that no retry can fix, such as a
// user who blocked the bot.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return fmt.Sprintf("permanent delivery error: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
