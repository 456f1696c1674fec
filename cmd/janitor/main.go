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

	config "github.com/NordCoder/Flatwatch/internal/config/janitor"
	"github.com/NordCoder/Flatwatch/internal/obs"
	pg "github.com/NordCoder/Flatwatch/internal/repository/postgres"
	"github.com/NordCoder/Flatwatch/internal/services/dispatcher"
	"github.com/NordCoder/Flatwatch/internal/services/janitor"
)

func main() {
	configPath := flag.String("config", "config/janitor.yaml", "path to the service config")
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
	l.Info("starting janitor",
		zap.String("schedule", cfg.Janitor.Schedule),
		zap.Bool("reminders", cfg.Janitor.Reminders.Enabled),
		zap.String("reminder_schedule", cfg.Janitor.Reminders.Schedule),
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

	// run metrics server
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Ping(hctx)
	}, l)

	// wiring
	marks := pg.NewReminderStore(db)
	uc := &janitor.Usecase{
		Listings:  pg.NewListingRepo(db),
		Jobs:      pg.NewJobQueue(db, pg.QueueConfig{}),
		Outbox:    pg.NewOutboxRepo(db),
		Reminders: marks,
	}
	runner := janitor.New(l, uc, cfg.Janitor, prometheus.DefaultRegisterer)

	if rc := cfg.Janitor.Reminders; rc.Enabled {
		loc, err := rc.Location()
		if err != nil {
			l.Fatal("reminder timezone", zap.Error(err))
		}
		bot, err := dispatcher.NewBotAPI(cfg.Telegram)
		if err != nil {
			l.Fatal("telegram init", zap.Error(err))
		}
		runner.Remind = &janitor.Reminders{
			Log:    l.With(zap.String("component", "janitor.reminders")),
			Users:  pg.NewUserRepo(db),
			Store:  marks,
			Sender: dispatcher.NewTelegramSender(bot, cfg.Telegram, l),
			Loc:    loc,
			Batch:  rc.BatchLimit,
		}
	}

	// run
	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	l.Info("janitor started")

	// loop
	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("runner error", zap.Error(err))
		}
	}

	// graceful shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
