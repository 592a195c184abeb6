package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/renewd/renewd/internal/config"
	"github.com/renewd/renewd/internal/domain/plan"
	stripeGateway "github.com/renewd/renewd/internal/gateway/stripe"
	"github.com/renewd/renewd/internal/locker"
	"github.com/renewd/renewd/internal/logger"
	"github.com/renewd/renewd/internal/postgres"
	"github.com/renewd/renewd/internal/pubsub/memory"
	"github.com/renewd/renewd/internal/repository"
	"github.com/renewd/renewd/internal/service"
	webhookPublisher "github.com/renewd/renewd/internal/webhook/publisher"
)

var (
	runSchedule   = flag.String("run-schedule", "5 0 * * *", "Cron schedule for the daily billing run (default: 00:05 UTC)")
	alertSchedule = flag.String("alert-schedule", "30 0 * * *", "Cron schedule for upcoming billing alerts (default: 00:30 UTC)")
	runOnce       = flag.Bool("run-once", false, "Run one billing batch and exit")
	runDate       = flag.String("date", "", "Billing date (YYYY-MM-DD). Defaults to today. Only used with --run-once")
)

func init() {
	time.Local = time.UTC
}

func main() {
	flag.Parse()
	_ = godotenv.Load()

	cfg, err := config.NewConfig()
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		panic(err)
	}

	db, err := postgres.NewClient(cfg, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := postgres.Close(db); err != nil {
			log.Errorw("failed to close database", "error", err)
		}
	}()

	pubSub := memory.NewPubSub(cfg, log)
	publisher, err := webhookPublisher.NewPublisher(pubSub, cfg, log)
	if err != nil {
		log.Fatalf("Failed to create webhook publisher: %v", err)
	}
	defer publisher.Close()

	billingService := service.NewBillingService(service.NewServiceParams(
		log,
		cfg,
		repository.NewTenantRepository(db),
		repository.NewLedgerRepository(db),
		plan.NewCatalog(),
		stripeGateway.NewGateway(cfg, log),
		locker.NewTenantLocker(),
		publisher,
	))

	if *runOnce {
		date := time.Now().UTC()
		if *runDate != "" {
			date, err = time.Parse("2006-01-02", *runDate)
			if err != nil {
				log.Fatalf("Invalid date format: %v", err)
			}
		}

		summary, err := billingService.Run(context.Background(), date)
		if err != nil {
			log.Fatalf("Billing run failed: %v", err)
		}
		log.Infow("billing run completed",
			"billed", summary.TotalBilled,
			"failed", summary.TotalFailed,
			"suspended", summary.TotalSuspended,
			"cancelled", summary.TotalCancelled,
			"expired", summary.TotalExpired,
			"skipped", summary.TotalSkipped)
		return
	}

	c := cron.New()

	if _, err := c.AddFunc(*runSchedule, func() {
		summary, err := billingService.Run(context.Background(), time.Now().UTC())
		if err != nil {
			log.Errorw("billing run failed", "error", err)
			return
		}
		log.Infow("billing run completed",
			"billed", summary.TotalBilled,
			"failed", summary.TotalFailed,
			"suspended", summary.TotalSuspended)
	}); err != nil {
		log.Fatalf("Failed to schedule billing run: %v", err)
	}

	if _, err := c.AddFunc(*alertSchedule, func() {
		summary, err := billingService.ProcessUpcomingBillingAlerts(context.Background(), time.Now().UTC())
		if err != nil {
			log.Errorw("upcoming billing alerts failed", "error", err)
			return
		}
		log.Infow("upcoming billing alerts completed",
			"notified", summary.TotalNotified)
	}); err != nil {
		log.Fatalf("Failed to schedule upcoming billing alerts: %v", err)
	}

	c.Start()
	log.Infow("billing scheduler started",
		"run_schedule", *runSchedule,
		"alert_schedule", *alertSchedule)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx := c.Stop()
	<-ctx.Done()
	log.Info("billing scheduler stopped")
}
