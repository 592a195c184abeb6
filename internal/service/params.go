package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/renewd/renewd/internal/config"
	"github.com/renewd/renewd/internal/domain/ledger"
	"github.com/renewd/renewd/internal/domain/payment"
	"github.com/renewd/renewd/internal/domain/plan"
	"github.com/renewd/renewd/internal/domain/tenant"
	"github.com/renewd/renewd/internal/locker"
	"github.com/renewd/renewd/internal/logger"
	"github.com/renewd/renewd/internal/types"
	webhookPublisher "github.com/renewd/renewd/internal/webhook/publisher"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration

	// Repositories
	TenantRepo tenant.Repository
	LedgerRepo ledger.Repository

	// Collaborators
	PlanCatalog      plan.Catalog
	Gateway          payment.Gateway
	Locker           *locker.TenantLocker
	WebhookPublisher webhookPublisher.WebhookPublisher
}

// NewServiceParams assembles the shared dependency set for DI
func NewServiceParams(
	logger *logger.Logger,
	cfg *config.Configuration,
	tenantRepo tenant.Repository,
	ledgerRepo ledger.Repository,
	planCatalog plan.Catalog,
	gateway payment.Gateway,
	locker *locker.TenantLocker,
	webhookPublisher webhookPublisher.WebhookPublisher,
) ServiceParams {
	return ServiceParams{
		Logger:           logger,
		Config:           cfg,
		TenantRepo:       tenantRepo,
		LedgerRepo:       ledgerRepo,
		PlanCatalog:      planCatalog,
		Gateway:          gateway,
		Locker:           locker,
		WebhookPublisher: webhookPublisher,
	}
}

// publishEvent is shared by every service embedding ServiceParams; the core
// only emits, delivery belongs to the notification collaborators
func (p ServiceParams) publishEvent(ctx context.Context, eventName, tenantID string, payload map[string]any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		p.Logger.Errorw("failed to marshal webhook payload",
			"event_name", eventName,
			"tenant_id", tenantID,
			"error", err)
		return
	}

	event := &types.WebhookEvent{
		ID:        types.GenerateUUIDWithPrefix(types.UUID_PREFIX_WEBHOOK_EVENT),
		EventName: eventName,
		TenantID:  tenantID,
		Timestamp: time.Now().UTC(),
		Payload:   raw,
	}

	if err := p.WebhookPublisher.PublishWebhook(ctx, event); err != nil {
		p.Logger.Errorw("failed to publish webhook event",
			"event_name", eventName,
			"tenant_id", tenantID,
			"error", err)
	}
}
