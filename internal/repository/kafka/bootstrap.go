package kafka

import (
	"context"

	"go.uber.org/zap"
)

// BootstrapConsumer makes sure the consumed topic exists before joining the
// group. A broker that is not reachable yet only gets a warning; the reader
// keeps retrying on its own.
func BootstrapConsumer(ctx context.Context, cfg *ConsumerConfig, spec TopicSpec, logger *zap.Logger) *Consumer {
	spec.Name = cfg.Topic
	ensure(ctx, cfg.Brokers, spec, logger)
	return NewConsumer(cfg).WithLogger(logger)
}

func BootstrapProducer(ctx context.Context, brokers []string, spec TopicSpec, logger *zap.Logger) *Producer {
	ensure(ctx, brokers, spec, logger)
	return NewProducer(brokers, spec.Name).WithLogger(logger)
}

func ensure(ctx context.Context, brokers []string, spec TopicSpec, logger *zap.Logger) {
	if err := EnsureTopic(ctx, brokers, spec, logger); err != nil && logger != nil {
		logger.Warn("ensure topic failed", zap.String("topic", spec.Name), zap.Strings("brokers", brokers), zap.Error(err))
	}
}
