package main

import (
	"context"
	"flag"
	"log"

	"go.uber.org/zap"

	config "github.com/NordCoder/Flatwatch/internal/config/kafkainit"
	"github.com/NordCoder/Flatwatch/internal/obs"
	kafkaRepo "github.com/NordCoder/Flatwatch/internal/repository/kafka"
)

// kafka-init creates the listing topics with the same layout the services
// fall back to, and exits once every partition has a leader.
func main() {
	configPath := flag.String("config", "config/kafka-init.yaml", "path to the config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	l, err := obs.NewLogger(cfg.Log.AsLoggerConfig(cfg.App))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Kafka.Timeout)
	defer cancel()

	for _, topic := range cfg.Kafka.Topics {
		if err := kafkaRepo.EnsureTopic(ctx, cfg.Kafka.Brokers, cfg.Kafka.AsTopicSpec(topic), l); err != nil {
			l.Fatal("ensure topic", zap.String("topic", topic), zap.Error(err))
		}
	}
	l.Info("kafka topics ready", zap.Strings("topics", cfg.Kafka.Topics))
}
