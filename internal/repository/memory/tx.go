package memory

import "context"

// Transactor runs the function directly; memory stores apply each call atomically.
type Transactor struct{}

func (Transactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
