package main

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/renewd/renewd/internal/api"
	"github.com/renewd/renewd/internal/api/cron"
	v1 "github.com/renewd/renewd/internal/api/v1"
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

func init() {
	// All billing date arithmetic is calendar-day based in UTC
	time.Local = time.UTC
}

func main() {
	app := fx.New(
		fx.Provide(
			config.NewConfig,
			logger.NewLogger,

			// Storage
			postgres.NewClient,
			repository.NewTenantRepository,
			repository.NewLedgerRepository,

			// Collaborators
			plan.NewCatalog,
			stripeGateway.NewGateway,
			locker.NewTenantLocker,
			memory.NewPubSub,
			webhookPublisher.NewPublisher,

			// Services
			service.NewServiceParams,
			service.NewBillingService,
			service.NewSubscriptionService,

			// API
			provideHandlers,
			api.NewRouter,
		),
		fx.Invoke(startServer),
	)
	app.Run()
}

func provideHandlers(
	subscriptionService service.SubscriptionService,
	billingService service.BillingService,
	logger *logger.Logger,
) api.Handlers {
	return api.Handlers{
		Subscription: v1.NewSubscriptionHandler(subscriptionService, logger),
		CronBilling:  cron.NewBillingHandler(billingService, logger),
	}
}

func startServer(
	lc fx.Lifecycle,
	cfg *config.Configuration,
	r *gin.Engine,
	db *gorm.DB,
	publisher webhookPublisher.WebhookPublisher,
	log *logger.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting API server", "address", cfg.Server.Address)
			go func() {
				if err := r.Run(cfg.Server.Address); err != nil {
					log.Fatalf("Failed to start server: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("Shutting down server...")
			if err := publisher.Close(); err != nil {
				log.Errorw("failed to close webhook publisher", "error", err)
			}
			return postgres.Close(db)
		},
	})
}
