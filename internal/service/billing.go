package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/renewd/renewd/internal/api/dto"
	"github.com/renewd/renewd/internal/domain/billing"
	"github.com/renewd/renewd/internal/domain/ledger"
	"github.com/renewd/renewd/internal/domain/payment"
	"github.com/renewd/renewd/internal/domain/tenant"
	ierr "github.com/renewd/renewd/internal/errors"
	"github.com/renewd/renewd/internal/types"
)

// Per-tenant outcomes of one driver run
const (
	outcomeBilled    = "billed"
	outcomeFailed    = "failed"
	outcomeSuspended = "suspended"
	outcomeCancelled = "cancelled"
	outcomeExpired   = "expired"
	outcomeSkipped   = "skipped"
)

type BillingService interface {
	// Run executes one billing batch for the given calendar day. It never
	// raises for a tenant-level fault; those land in the summary.
	Run(ctx context.Context, today time.Time) (*dto.BillingRunResponse, error)

	// ProcessUpcomingBillingAlerts emits upcoming-billing events for tenants
	// whose period end falls within the configured alert window
	ProcessUpcomingBillingAlerts(ctx context.Context, today time.Time) (*dto.UpcomingAlertsResponse, error)
}

type billingService struct {
	ServiceParams
}

func NewBillingService(params ServiceParams) BillingService {
	return &billingService{
		ServiceParams: params,
	}
}

func (s *billingService) Run(ctx context.Context, today time.Time) (*dto.BillingRunResponse, error) {
	batchSize := s.Config.Billing.BatchSize
	today = types.DateOnly(today)

	s.Logger.Infow("starting billing run",
		"run_date", today)

	response := &dto.BillingRunResponse{
		StartAt: time.Now().UTC(),
		RunDate: today,
		Items:   make([]*dto.BillingRunItem, 0),
	}

	var mu sync.Mutex
	record := func(item *dto.BillingRunItem) {
		mu.Lock()
		defer mu.Unlock()

		switch item.Outcome {
		case outcomeBilled:
			response.TotalBilled++
		case outcomeFailed:
			response.TotalFailed++
		case outcomeSuspended:
			response.TotalSuspended++
		case outcomeCancelled:
			response.TotalCancelled++
		case outcomeExpired:
			response.TotalExpired++
		default:
			response.TotalSkipped++
		}
		response.Items = append(response.Items, item)
	}

	offset := 0
	for {
		filter := &tenant.ListFilter{
			Limit:  batchSize,
			Offset: offset,
		}

		tenants, err := s.TenantRepo.List(ctx, filter)
		if err != nil {
			return response, err
		}

		s.Logger.Infow("processing billing batch",
			"batch_size", len(tenants),
			"offset", offset)

		if len(tenants) == 0 {
			break
		}

		// Tenants are independent: units of work run concurrently, each one
		// isolated so a single tenant's failure never aborts the batch.
		workers := pool.New().WithMaxGoroutines(s.Config.Billing.WorkerCount)
		for _, t := range tenants {
			workers.Go(func() {
				record(s.runTenant(ctx, t.ID, today))
			})
		}
		workers.Wait()

		offset += len(tenants)
		if len(tenants) < batchSize {
			break
		}
	}

	s.Logger.Infow("completed billing run",
		"run_date", today,
		"billed", response.TotalBilled,
		"failed", response.TotalFailed,
		"suspended", response.TotalSuspended,
		"cancelled", response.TotalCancelled,
		"expired", response.TotalExpired,
		"skipped", response.TotalSkipped)

	return response, nil
}

// runTenant is one tenant's unit of work. It holds the tenant lock for the
// duration of the charge attempt and state update, binds the tenant context,
// and converts every fault into a run item instead of propagating it.
func (s *billingService) runTenant(ctx context.Context, tenantID string, today time.Time) (item *dto.BillingRunItem) {
	item = &dto.BillingRunItem{TenantID: tenantID, Outcome: outcomeSkipped}

	defer func() {
		if r := recover(); r != nil {
			s.Logger.Errorw("panic in billing unit of work",
				"tenant_id", tenantID,
				"panic", r)
			item.Outcome = outcomeFailed
			item.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	s.Locker.Lock(tenantID)
	defer s.Locker.Unlock(tenantID)

	// Tenant context is bound for this unit of work only, never stored.
	ctx = types.SetTenantID(ctx, tenantID)

	t, err := s.TenantRepo.Get(ctx, tenantID)
	if err != nil {
		s.Logger.Errorw("failed to load tenant for billing",
			"tenant_id", tenantID,
			"error", err)
		item.Outcome = outcomeFailed
		item.Error = err.Error()
		return item
	}

	// Expiration pre-pass: an active tenant whose period lapsed with no
	// cancellation in effect and no billing path left moves to expired.
	if s.shouldExpire(t, today) {
		return s.expireTenant(ctx, t, item)
	}

	// Candidate selection and eligibility filter.
	if !t.Active || !t.IsBillable() {
		return item
	}

	// A deferred cancellation reaching its period end transitions instead
	// of renewing; the charge is skipped entirely.
	if t.CancelAtPeriodEnd && t.RenewalDue(today) {
		return s.cancelAtPeriodEnd(ctx, t, today, item)
	}

	// Due filter, then the dunning window.
	if !t.ShouldBill(today) {
		return item
	}
	if !t.CanAttemptOn(today) {
		return item
	}

	return s.chargeTenant(ctx, t, today, item)
}

// shouldExpire detects a lapsed period with no way forward: no deferred
// cancellation, not in trial, and not billable anymore. The due day itself
// still belongs to the tenant (a payment method added that day bills on
// time); only a strictly past period end lapses.
func (s *billingService) shouldExpire(t *tenant.Tenant, today time.Time) bool {
	if t.SubscriptionStatus != types.SubscriptionStatusActive {
		return false
	}
	if t.CancelAtPeriodEnd || t.IsInTrial(today) {
		return false
	}
	if t.CurrentPeriodEnd == nil || !types.DateOnly(*t.CurrentPeriodEnd).Before(types.DateOnly(today)) {
		return false
	}
	return !t.IsBillable()
}

func (s *billingService) expireTenant(ctx context.Context, t *tenant.Tenant, item *dto.BillingRunItem) *dto.BillingRunItem {
	t.SubscriptionStatus = types.SubscriptionStatusExpired

	if err := s.TenantRepo.Update(ctx, t); err != nil {
		s.Logger.Errorw("failed to expire tenant",
			"tenant_id", t.ID,
			"error", err)
		item.Outcome = outcomeFailed
		item.Error = err.Error()
		return item
	}

	s.Logger.Infow("subscription expired",
		"tenant_id", t.ID,
		"current_period_end", t.CurrentPeriodEnd)

	item.Outcome = outcomeExpired
	return item
}

func (s *billingService) cancelAtPeriodEnd(ctx context.Context, t *tenant.Tenant, today time.Time, item *dto.BillingRunItem) *dto.BillingRunItem {
	t.SubscriptionStatus = types.SubscriptionStatusCancelled
	if t.CancelledAt == nil {
		t.CancelledAt = &today
	}

	if err := s.TenantRepo.Update(ctx, t); err != nil {
		s.Logger.Errorw("failed to finalize deferred cancellation",
			"tenant_id", t.ID,
			"error", err)
		item.Outcome = outcomeFailed
		item.Error = err.Error()
		return item
	}

	s.Logger.Infow("deferred cancellation finalized",
		"tenant_id", t.ID,
		"cancelled_at", t.CancelledAt)

	s.publishEvent(ctx, types.WebhookEventSubscriptionCancelled, t.ID, map[string]any{
		"cancelled_at": t.CancelledAt,
	})

	item.Outcome = outcomeCancelled
	return item
}

func (s *billingService) chargeTenant(ctx context.Context, t *tenant.Tenant, today time.Time, item *dto.BillingRunItem) *dto.BillingRunItem {
	plan, err := s.PlanCatalog.Resolve(t.PlanRef())
	if err != nil {
		item.Outcome = outcomeFailed
		item.Error = err.Error()
		return item
	}

	result, err := s.Gateway.Charge(ctx, &payment.ChargeRequest{
		PaymentMethodRef: t.PaymentMethodRef,
		Amount:           t.PlanPrice,
		Currency:         s.Config.Billing.Currency,
		IdempotencyKey:   chargeIdempotencyKey(t, today),
	})
	if err != nil {
		// Only a classified gateway outcome consumes a dunning attempt; an
		// unclassified fault is reported without touching the counters.
		if !ierr.IsGatewayError(err) {
			s.Logger.Errorw("charge failed outside the gateway",
				"tenant_id", t.ID,
				"error", err)
			item.Outcome = outcomeFailed
			item.Error = err.Error()
			return item
		}
		return s.recordFailedCharge(ctx, t, today, err, item)
	}

	return s.recordSuccessfulCharge(ctx, t, today, result, plan.PeriodDays, item)
}

func (s *billingService) recordSuccessfulCharge(
	ctx context.Context,
	t *tenant.Tenant,
	today time.Time,
	result *payment.ChargeResult,
	periodDays int,
	item *dto.BillingRunItem,
) *dto.BillingRunItem {
	entry := &ledger.Entry{
		ID:                   types.GenerateUUIDWithPrefix(types.UUID_PREFIX_LEDGER_ENTRY),
		TenantID:             t.ID,
		Amount:               t.PlanPrice,
		Currency:             s.Config.Billing.Currency,
		PlanRef:              t.PlanRef(),
		PaymentMethodRef:     t.PaymentMethodRef,
		BilledAt:             today,
		GatewayTransactionID: result.TransactionID,
		BaseModel:            types.GetDefaultBaseModel(ctx),
	}
	if err := s.LedgerRepo.Create(ctx, entry); err != nil {
		s.Logger.Errorw("failed to write ledger entry",
			"tenant_id", t.ID,
			"transaction_id", result.TransactionID,
			"error", err)
		item.Outcome = outcomeFailed
		item.Error = err.Error()
		return item
	}

	start, end := s.nextPeriod(t, today, periodDays)

	t.LastBilledAt = &today
	t.LastPaymentAttemptAt = &today
	t.CurrentPeriodStart = &start
	t.CurrentPeriodEnd = &end
	t.PaymentAttempts = 0
	t.PaymentRetryUntil = nil
	t.IsFree = false

	if err := s.TenantRepo.Update(ctx, t); err != nil {
		s.Logger.Errorw("failed to update tenant after successful charge",
			"tenant_id", t.ID,
			"transaction_id", result.TransactionID,
			"error", err)
		item.Outcome = outcomeFailed
		item.Error = err.Error()
		return item
	}

	s.Logger.Infow("tenant billed",
		"tenant_id", t.ID,
		"amount", t.PlanPrice,
		"transaction_id", result.TransactionID,
		"period_start", start,
		"period_end", end)

	s.publishEvent(ctx, types.WebhookEventSubscriptionBilled, t.ID, map[string]any{
		"amount":         t.PlanPrice,
		"transaction_id": result.TransactionID,
		"period_start":   start,
		"period_end":     end,
	})

	item.Outcome = outcomeBilled
	return item
}

func (s *billingService) recordFailedCharge(
	ctx context.Context,
	t *tenant.Tenant,
	today time.Time,
	chargeErr error,
	item *dto.BillingRunItem,
) *dto.BillingRunItem {
	retryUntil := today.AddDate(0, 0, s.Config.Billing.RetryBackoffDays)

	t.PaymentAttempts++
	t.LastPaymentAttemptAt = &today
	t.PaymentRetryUntil = &retryUntil

	suspended := t.PaymentAttempts >= types.MaxPaymentAttempts
	if suspended {
		t.SubscriptionStatus = types.SubscriptionStatusSuspended
	}

	if err := s.TenantRepo.Update(ctx, t); err != nil {
		s.Logger.Errorw("failed to update tenant after failed charge",
			"tenant_id", t.ID,
			"error", err)
		item.Outcome = outcomeFailed
		item.Error = err.Error()
		return item
	}

	s.Logger.Errorw("charge attempt failed",
		"tenant_id", t.ID,
		"attempts", t.PaymentAttempts,
		"declined", ierr.IsGatewayDeclined(chargeErr),
		"error", chargeErr)

	s.publishEvent(ctx, types.WebhookEventSubscriptionBillingFailed, t.ID, map[string]any{
		"attempts": t.PaymentAttempts,
		"declined": ierr.IsGatewayDeclined(chargeErr),
		"error":    chargeErr.Error(),
	})

	item.Attempts = t.PaymentAttempts
	item.Error = chargeErr.Error()

	if suspended {
		s.publishEvent(ctx, types.WebhookEventSubscriptionSuspended, t.ID, map[string]any{
			"attempts": t.PaymentAttempts,
		})
		item.Outcome = outcomeSuspended
		return item
	}

	item.Outcome = outcomeFailed
	return item
}

// nextPeriod advances the period bounds after a successful charge. The old
// period end anchors the new period so the renewal schedule never drifts;
// a first charge out of trial anchors at today.
func (s *billingService) nextPeriod(t *tenant.Tenant, today time.Time, periodDays int) (time.Time, time.Time) {
	anchor := today
	if t.CurrentPeriodEnd != nil && t.RenewalDue(today) {
		anchor = types.DateOnly(*t.CurrentPeriodEnd)
	}

	if !t.PlanRef().IsLegacy() {
		if start, end, err := billing.NextPeriod(t.PlanRecurrence, anchor); err == nil {
			return start, end
		}
	}
	return anchor, anchor.AddDate(0, 0, periodDays)
}

func (s *billingService) ProcessUpcomingBillingAlerts(ctx context.Context, today time.Time) (*dto.UpcomingAlertsResponse, error) {
	batchSize := s.Config.Billing.BatchSize
	today = types.DateOnly(today)
	window := s.Config.Billing.UpcomingAlertDays

	response := &dto.UpcomingAlertsResponse{}

	offset := 0
	for {
		tenants, err := s.TenantRepo.List(ctx, &tenant.ListFilter{
			ActiveOnly: true,
			Limit:      batchSize,
			Offset:     offset,
		})
		if err != nil {
			return response, err
		}
		if len(tenants) == 0 {
			break
		}

		for _, t := range tenants {
			if t.SubscriptionStatus != types.SubscriptionStatusActive || t.CurrentPeriodEnd == nil {
				continue
			}
			if t.CancelAtPeriodEnd || !t.IsBillable() {
				continue
			}

			periodEnd := types.DateOnly(*t.CurrentPeriodEnd)
			if periodEnd.Before(today) {
				continue
			}

			daysUntil := int(periodEnd.Sub(today).Hours() / 24)
			if daysUntil > window {
				continue
			}

			tenantCtx := types.SetTenantID(ctx, t.ID)
			s.publishEvent(tenantCtx, types.WebhookEventSubscriptionUpcoming, t.ID, map[string]any{
				"days_until": daysUntil,
				"period_end": periodEnd,
				"amount":     t.PlanPrice,
				"plan":       t.PlanRef().String(),
			})
			response.TotalNotified++
		}

		offset += len(tenants)
		if len(tenants) < batchSize {
			break
		}
	}

	return response, nil
}

// chargeIdempotencyKey dedupes the same tenant/cycle/attempt at the gateway
func chargeIdempotencyKey(t *tenant.Tenant, today time.Time) string {
	return fmt.Sprintf("%s:%s:%d", t.ID, today.Format("2006-01-02"), t.PaymentAttempts)
}
