package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var (
	errNoBrokers     = errors.New("kafka: no brokers configured")
	ErrTopicNotReady = errors.New("kafka: topic has partitions without a leader")
)

// TopicSpec describes a listing topic. Zero values fall back to one
// partition, replication factor one and a five second readiness wait.
type TopicSpec struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
	MaxWait           time.Duration
}

// EnsureTopic creates the topic through the controller and waits until every
// partition has a leader. An existing topic is not an error.
func EnsureTopic(ctx context.Context, brokers []string, spec TopicSpec, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	if spec.NumPartitions <= 0 {
		spec.NumPartitions = 1
	}
	if spec.ReplicationFactor <= 0 {
		spec.ReplicationFactor = 1
	}
	if spec.MaxWait <= 0 {
		spec.MaxWait = 5 * time.Second
	}
	if len(brokers) == 0 {
		return errNoBrokers
	}
	log = log.With(zap.String("topic", spec.Name))

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("dial %s: %w", brokers[0], err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find controller: %w", err)
	}
	cc, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial controller: %w", err)
	}
	defer cc.Close()

	err = cc.CreateTopics(kafka.TopicConfig{
		Topic:             spec.Name,
		NumPartitions:     spec.NumPartitions,
		ReplicationFactor: spec.ReplicationFactor,
	})
	switch {
	case errors.Is(err, kafka.TopicAlreadyExists):
		log.Debug("topic already exists")
	case err != nil:
		return fmt.Errorf("create topic %s: %w", spec.Name, err)
	default:
		log.Info("topic created",
			zap.Int("partitions", spec.NumPartitions), zap.Int("replication_factor", spec.ReplicationFactor))
	}

	wctx, cancel := context.WithTimeout(ctx, spec.MaxWait)
	defer cancel()
	for {
		ps, err := conn.ReadPartitions(spec.Name)
		if err == nil && led(ps) {
			log.Info("topic ready", zap.Int("partitions", len(ps)))
			return nil
		}
		if !sleep(wctx, 200*time.Millisecond) {
			return fmt.Errorf("%w: %s", ErrTopicNotReady, spec.Name)
		}
	}
}

func led(ps []kafka.Partition) bool {
	if len(ps) == 0 {
		return false
	}
	for _, p := range ps {
		if p.Leader.ID < 0 {
			return false
		}
	}
	return true
}
