package matcher

import (
	"context"
	"fmt"

	"github.com/NordCoder/Flatwatch/internal/domain/filter"
	"github.com/NordCoder/Flatwatch/internal/domain/listing"
)

// Engine finds the users whose filter admits a listing. Only filters indexed
// under the listing's property type and city are loaded.
type Engine struct {
	Filters filter.Repo
}

func NewEngine(filters filter.Repo) *Engine { return &Engine{Filters: filters} }

// Match returns each matching user once, in no particular order.
func (e *Engine) Match(ctx context.Context, l *listing.Listing) ([]int64, error) {
	cands, err := e.Filters.Candidates(ctx, l.PropertyType, l.City)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	seen := make(map[int64]struct{}, len(cands))
	out := make([]int64, 0, len(cands))
	for _, f := range cands {
		if !f.Matches(l) {
			continue
		}
		if _, dup := seen[f.UserID]; dup {
			continue
		}
		seen[f.UserID] = struct{}{}
		out = append(out, f.UserID)
	}
	return out, nil
}
