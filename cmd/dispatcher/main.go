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

	config "github.com/NordCoder/Flatwatch/internal/config/dispatcher"
	"github.com/NordCoder/Flatwatch/internal/domain/job"
	"github.com/NordCoder/Flatwatch/internal/obs"
	"github.com/NordCoder/Flatwatch/internal/obs/retry"
	pg "github.com/NordCoder/Flatwatch/internal/repository/postgres"
	"github.com/NordCoder/Flatwatch/internal/services/dispatcher"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func main() {
	configPath := flag.String("config", "config/dispatcher.yaml", "path to the service config")
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
	l.Info("starting dispatcher",
		zap.Int("workers", cfg.Dispatch.Workers),
		zap.Int("max_attempts", cfg.Dispatch.MaxAttempts),
		zap.Duration("lease_ttl", cfg.Dispatch.LeaseTTL),
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

	// telegram
	bot, err := dispatcher.NewBotAPI(cfg.Telegram)
	if err != nil {
		l.Fatal("telegram init", zap.Error(err))
	}
	l.Info("telegram bot ready", zap.String("bot", bot.Self.UserName))

	// run metrics server
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Ping(hctx)
	}, l)

	// wiring
	clock := systemClock{}
	queue := pg.NewJobQueue(db, pg.QueueConfig{
		LeaseTTL:     cfg.Dispatch.LeaseTTL,
		PollInterval: cfg.Dispatch.PollInterval,
		Policy: job.RetryPolicy{
			MaxAttempts: cfg.Dispatch.MaxAttempts,
			Backoff: retry.ExpoJitter{
				Base:   cfg.Dispatch.BackoffBase,
				Max:    cfg.Dispatch.BackoffMax,
				Jitter: cfg.Dispatch.BackoffJitter,
			},
		},
		Now: clock.Now,
	})
	pool := dispatcher.NewPool(l, dispatcher.Deps{
		Queue:    queue,
		Ledger:   pg.NewDeliveryLedger(db),
		Users:    pg.NewUserRepo(db),
		Filters:  pg.NewFilterRepo(db),
		Listings: pg.NewListingRepo(db),
		Sender:   dispatcher.NewTelegramSender(bot, cfg.Telegram, l),
		Clock:    clock,
	}, dispatcher.PoolConfig{
		Workers:         cfg.Dispatch.Workers,
		ClaimStaleAfter: cfg.Dispatch.ClaimStaleAfter,
		ClaimRecheck:    cfg.Dispatch.ClaimRecheck,
		ProcessTimeout:  cfg.Dispatch.LeaseTTL,
		ErrorBackoff:    cfg.Dispatch.PollInterval,
	}, prometheus.DefaultRegisterer)

	// run
	errCh := make(chan error, 1)
	go func() { errCh <- pool.Run(ctx) }()

	l.Info("dispatcher started")

	// loop
	select {
	case <-ctx.Done():
		// let workers settle the jobs they hold
		select {
		case <-errCh:
		case <-time.After(cfg.Server.GracefulTimeout):
			l.Warn("workers did not stop in time")
		}
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("pool error", zap.Error(err))
		}
	}

	// graceful shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
