package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/NordCoder/Flatwatch/internal/obs/retry"
)

// JSONHandler decodes each message value into a fresh T. Undecodable
// messages are reported as permanent so the consumer commits past them.
func JSONHandler[T any](handle func(ctx context.Context, key []byte, v *T) error) Handler {
	return func(ctx context.Context, key, value []byte) error {
		v := new(T)
		if err := json.Unmarshal(value, v); err != nil {
			return retry.Permanent(fmt.Errorf("decode message: %w", err))
		}
		return handle(ctx, key, v)
	}
}
