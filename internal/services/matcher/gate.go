package matcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Flatwatch/internal/domain"
	"github.com/NordCoder/Flatwatch/internal/domain/user"
)

// Gate answers whether users may currently receive notifications.
// A missing user is never entitled.
type Gate struct {
	Users user.Repo
}

func NewGate(users user.Repo) *Gate { return &Gate{Users: users} }

func (g *Gate) IsEntitled(ctx context.Context, userID int64, now time.Time) (bool, error) {
	u, err := g.Users.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load user %d: %w", userID, err)
	}
	return u.Entitled(now), nil
}

// Admit keeps the entitled users of ids, preserving their order.
func (g *Gate) Admit(ctx context.Context, ids []int64, now time.Time) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	users, err := g.Users.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if users[id].Entitled(now) {
			out = append(out, id)
		}
	}
	return out, nil
}
