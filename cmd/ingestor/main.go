package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	config "github.com/NordCoder/Flatwatch/internal/config/ingestor"
	"github.com/NordCoder/Flatwatch/internal/obs"
	"github.com/NordCoder/Flatwatch/internal/obs/retry"
	"github.com/NordCoder/Flatwatch/internal/outbox"
	kafkaRepo "github.com/NordCoder/Flatwatch/internal/repository/kafka"
	pg "github.com/NordCoder/Flatwatch/internal/repository/postgres"
	"github.com/NordCoder/Flatwatch/internal/services/ingestor"
)

func main() {
	configPath := flag.String("config", "config/ingestor.yaml", "path to the service config")
	flag.Parse()

	// init
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(cfg.Log.AsLoggerConfig(cfg.App))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()
	l.Info("starting ingestor",
		zap.Any("kafka_in", cfg.KafkaIn),
		zap.Any("kafka_out", cfg.KafkaOut),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
	)

	// otel
	otelCloser, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// db
	db, err := pg.New(ctx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// kafka
	sub := kafkaRepo.BootstrapConsumer(ctx, &kafkaRepo.ConsumerConfig{
		Brokers:       cfg.KafkaIn.Brokers,
		GroupID:       cfg.KafkaIn.GroupID,
		Topic:         cfg.KafkaIn.Topic,
		FromBeginning: cfg.KafkaIn.FromBeginning,
		Logger:        l,
	}, cfg.KafkaIn.AsTopicSpec(cfg.KafkaIn.Topic), l)
	defer func() { _ = sub.Close() }()

	prod := kafkaRepo.BootstrapProducer(ctx, cfg.KafkaOut.Brokers, cfg.KafkaOut.AsTopicSpec(cfg.KafkaOut.Topic), l)
	defer func() { _ = prod.Close() }()
	publisher := kafkaRepo.NewListingEventsKafka(prod)

	// run metrics server
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Ping(hctx)
	}, l)

	// wiring
	reg := prometheus.DefaultRegisterer
	outboxRepo := pg.NewOutboxRepo(db)
	uc := ingestor.NewCoordinator(l, pg.NewTransactor(db, l), pg.NewListingRepo(db), outboxRepo, reg)
	ctrl := &ingestor.Controller{Log: l, Sub: sub, UC: uc}

	relay := outbox.NewOutboxRunner(l, outboxRepo,
		outbox.MakeGlobalOutboxHandler(publisher, retry.DefaultPublishPolicy(l)),
		cfg.Outbox.Workers, cfg.Outbox.BatchSize, cfg.Outbox.WaitTime, cfg.Outbox.InProgressTTL, reg,
	)

	// run
	errCh := make(chan error, 2)
	go func() { errCh <- ctrl.Run(ctx) }()
	go func() { errCh <- relay.Run(ctx) }()

	l.Info("ingestor started")

	// loop
	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("runner error", zap.Error(err))
		}
	}
	stop()

	// graceful shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
