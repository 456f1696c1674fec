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

	config "github.com/NordCoder/Flatwatch/internal/config/matcher"
	"github.com/NordCoder/Flatwatch/internal/obs"
	kafkaRepo "github.com/NordCoder/Flatwatch/internal/repository/kafka"
	pg "github.com/NordCoder/Flatwatch/internal/repository/postgres"
	"github.com/NordCoder/Flatwatch/internal/services/matcher"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func main() {
	configPath := flag.String("config", "config/matcher.yaml", "path to the service config")
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
	l.Info("starting matcher",
		zap.Any("kafka_in", cfg.KafkaIn),
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

	// run metrics server
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Ping(hctx)
	}, l)

	// wiring
	// The matcher only enqueues, so the queue needs no lease or retry settings.
	queue := pg.NewJobQueue(db, pg.QueueConfig{})
	h := matcher.NewHandler(l,
		pg.NewListingRepo(db),
		matcher.NewEngine(pg.NewFilterRepo(db)),
		matcher.NewGate(pg.NewUserRepo(db)),
		queue,
		systemClock{},
		prometheus.DefaultRegisterer,
	)
	ctrl := &matcher.Controller{Log: l, Sub: sub, H: h, Timeout: cfg.Match.HandleTimeout}

	// run
	errCh := make(chan error, 1)
	go func() { errCh <- ctrl.Run(ctx) }()

	l.Info("matcher started")

	// loop
	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("consumer error", zap.Error(err))
		}
	}

	// graceful shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
