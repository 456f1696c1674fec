package matcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/NordCoder/Flatwatch/internal/domain/listing"
	kafkax "github.com/NordCoder/Flatwatch/internal/repository/kafka"
)

type Controller struct {
	Log     *zap.Logger
	Sub     *kafkax.Consumer
	H       *Handler
	Timeout time.Duration
}

func (c *Controller) Run(ctx context.Context) error {
	return c.Sub.Consume(ctx, kafkax.JSONHandler(c.handle))
}

func (c *Controller) handle(ctx context.Context, _ []byte, ev *listing.CreatedEvent) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	_, err := c.H.Handle(ctx, *ev)
	return err
}
