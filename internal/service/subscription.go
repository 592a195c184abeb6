package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/renewd/renewd/internal/api/dto"
	"github.com/renewd/renewd/internal/domain/billing"
	"github.com/renewd/renewd/internal/domain/ledger"
	"github.com/renewd/renewd/internal/domain/payment"
	"github.com/renewd/renewd/internal/domain/proration"
	"github.com/renewd/renewd/internal/domain/tenant"
	ierr "github.com/renewd/renewd/internal/errors"
	"github.com/renewd/renewd/internal/types"
)

// SubscriptionService exposes the tenant-initiated operations. Every
// operation validates its input before mutating anything and runs under the
// same per-tenant lock as the billing driver.
type SubscriptionService interface {
	StartSubscription(ctx context.Context, tenantID string, req *dto.StartSubscriptionRequest) (*dto.SubscriptionResponse, error)
	GetSubscription(ctx context.Context, tenantID string) (*dto.SubscriptionResponse, error)
	RequestCancellation(ctx context.Context, tenantID string, req *dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error)
	Reactivate(ctx context.Context, tenantID string) (*dto.SubscriptionResponse, error)
	ChangePlan(ctx context.Context, tenantID string, req *dto.ChangePlanRequest) (*dto.ChangePlanResponse, error)
	UpdatePaymentMethod(ctx context.Context, tenantID string, req *dto.UpdatePaymentMethodRequest) (*dto.SubscriptionResponse, error)
}

type subscriptionService struct {
	ServiceParams
}

func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{
		ServiceParams: params,
	}
}

func (s *subscriptionService) StartSubscription(ctx context.Context, tenantID string, req *dto.StartSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.Locker.Lock(tenantID)
	defer s.Locker.Unlock(tenantID)
	ctx = types.SetTenantID(ctx, tenantID)

	t, err := s.TenantRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if t.SubscriptionStatus == types.SubscriptionStatusActive && t.HasPlanSelector() {
		return nil, ierr.NewError("tenant already has an active subscription").
			WithHint("The tenant is already subscribed").
			WithReportableDetails(map[string]any{
				"tenant_id": tenantID,
			}).
			Mark(ierr.ErrStateConflict)
	}

	ref := req.PlanRef()
	resolved, err := s.PlanCatalog.Resolve(ref)
	if err != nil {
		return nil, err
	}

	if req.PaymentMethodRef != "" {
		t.PaymentMethodRef = req.PaymentMethodRef
	}

	now := time.Now().UTC()
	today := types.DateOnly(now)

	t.PlanType = ref.Type
	t.PlanRecurrence = ref.Recurrence
	t.LegacyPlanKey = ref.LegacyKey
	t.PlanPrice = resolved.Price
	t.PlanStartedAt = &now
	t.SubscriptionStatus = types.SubscriptionStatusActive
	t.CancelAtPeriodEnd = false
	t.CancelledAt = nil
	t.PaymentAttempts = 0
	t.PaymentRetryUntil = nil

	if resolved.TrialDays > 0 {
		// Trial signup: no gateway call until the trial is crossed.
		trialEnd := billing.TrialEnd(today, resolved.TrialDays)
		t.IsFree = true
		t.PlanTrialEndsAt = &trialEnd
		t.CurrentPeriodStart = nil
		t.CurrentPeriodEnd = nil
	} else {
		// Paid signup: first period is charged immediately.
		if t.PaymentMethodRef == "" {
			return nil, ierr.NewError("payment method required").
				WithHint("A payment method is required for a paid subscription").
				Mark(ierr.ErrValidation)
		}

		result, err := s.Gateway.Charge(ctx, &payment.ChargeRequest{
			PaymentMethodRef: t.PaymentMethodRef,
			Amount:           resolved.Price,
			Currency:         s.Config.Billing.Currency,
		})
		if err != nil {
			return nil, err
		}

		start := today
		end := today.AddDate(0, 0, resolved.PeriodDays)
		t.IsFree = false
		t.PlanTrialEndsAt = nil
		t.CurrentPeriodStart = &start
		t.CurrentPeriodEnd = &end
		t.LastBilledAt = &today
		t.LastPaymentAttemptAt = &today

		entry := &ledger.Entry{
			ID:                   types.GenerateUUIDWithPrefix(types.UUID_PREFIX_LEDGER_ENTRY),
			TenantID:             t.ID,
			Amount:               resolved.Price,
			Currency:             s.Config.Billing.Currency,
			PlanRef:              ref,
			PaymentMethodRef:     t.PaymentMethodRef,
			BilledAt:             today,
			GatewayTransactionID: result.TransactionID,
			BaseModel:            types.GetDefaultBaseModel(ctx),
		}
		if err := s.LedgerRepo.Create(ctx, entry); err != nil {
			return nil, err
		}
	}

	if err := s.TenantRepo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.Logger.Infow("subscription started",
		"tenant_id", t.ID,
		"plan", ref.String(),
		"trial", t.IsFree)

	return &dto.SubscriptionResponse{Tenant: t}, nil
}

func (s *subscriptionService) GetSubscription(ctx context.Context, tenantID string) (*dto.SubscriptionResponse, error) {
	t, err := s.TenantRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &dto.SubscriptionResponse{Tenant: t}, nil
}

func (s *subscriptionService) RequestCancellation(ctx context.Context, tenantID string, req *dto.CancelSubscriptionRequest) (*dto.SubscriptionResponse, error) {
	s.Locker.Lock(tenantID)
	defer s.Locker.Unlock(tenantID)
	ctx = types.SetTenantID(ctx, tenantID)

	t, err := s.TenantRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	switch t.SubscriptionStatus {
	case types.SubscriptionStatusCancelled:
		return nil, ierr.NewError("subscription is already cancelled").
			WithHint("The subscription is already cancelled").
			WithReportableDetails(map[string]any{
				"tenant_id": tenantID,
			}).
			Mark(ierr.ErrStateConflict)
	case types.SubscriptionStatusExpired:
		return nil, ierr.NewError("subscription is expired").
			WithHint("An expired subscription cannot be cancelled").
			Mark(ierr.ErrStateConflict)
	}

	now := time.Now().UTC()
	t.CancelledAt = &now

	if req.Immediate {
		t.SubscriptionStatus = types.SubscriptionStatusCancelled
		t.CancelAtPeriodEnd = false
	} else {
		// Billing continues through the paid period; the driver finalizes
		// the transition at the next due cycle without charging.
		t.CancelAtPeriodEnd = true
	}

	if err := s.TenantRepo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.Logger.Infow("cancellation requested",
		"tenant_id", t.ID,
		"immediate", req.Immediate)

	if req.Immediate {
		s.publishEvent(ctx, types.WebhookEventSubscriptionCancelled, t.ID, map[string]any{
			"cancelled_at": now,
			"immediate":    true,
		})
	}

	return &dto.SubscriptionResponse{Tenant: t}, nil
}

func (s *subscriptionService) Reactivate(ctx context.Context, tenantID string) (*dto.SubscriptionResponse, error) {
	s.Locker.Lock(tenantID)
	defer s.Locker.Unlock(tenantID)
	ctx = types.SetTenantID(ctx, tenantID)

	t, err := s.TenantRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if !canReactivate(t, now) {
		return nil, ierr.NewError("subscription cannot be reactivated").
			WithHint("Only a suspended subscription or a pending cancellation within the paid period can be reactivated").
			WithReportableDetails(map[string]any{
				"tenant_id":            tenantID,
				"subscription_status":  t.SubscriptionStatus,
				"cancel_at_period_end": t.CancelAtPeriodEnd,
				"current_period_end":   t.CurrentPeriodEnd,
			}).
			Mark(ierr.ErrStateConflict)
	}

	t.SubscriptionStatus = types.SubscriptionStatusActive
	t.CancelAtPeriodEnd = false
	t.CancelledAt = nil
	t.PaymentAttempts = 0
	t.PaymentRetryUntil = nil

	if err := s.TenantRepo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.Logger.Infow("subscription reactivated",
		"tenant_id", t.ID)

	s.publishEvent(ctx, types.WebhookEventSubscriptionReactivated, t.ID, map[string]any{
		"reactivated_at": now,
	})

	return &dto.SubscriptionResponse{Tenant: t}, nil
}

// canReactivate allows exactly two paths back: a suspension, or a deferred
// cancellation whose paid period has not lapsed yet. Expired is terminal.
func canReactivate(t *tenant.Tenant, now time.Time) bool {
	if t.SubscriptionStatus == types.SubscriptionStatusSuspended {
		return true
	}
	if t.SubscriptionStatus == types.SubscriptionStatusCancelled && t.CancelAtPeriodEnd {
		return t.CurrentPeriodEnd != nil && types.DateOnly(now).Before(types.DateOnly(*t.CurrentPeriodEnd))
	}
	return false
}

func (s *subscriptionService) ChangePlan(ctx context.Context, tenantID string, req *dto.ChangePlanRequest) (*dto.ChangePlanResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.Locker.Lock(tenantID)
	defer s.Locker.Unlock(tenantID)
	ctx = types.SetTenantID(ctx, tenantID)

	t, err := s.TenantRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if t.SubscriptionStatus != types.SubscriptionStatusActive {
		return nil, ierr.NewError("subscription is not active").
			WithHint("Only an active subscription can change plans").
			WithReportableDetails(map[string]any{
				"tenant_id":           tenantID,
				"subscription_status": t.SubscriptionStatus,
			}).
			Mark(ierr.ErrStateConflict)
	}

	newRef := types.NewCatalogPlanRef(req.PlanType, req.PlanRecurrence)
	if !t.PlanRef().IsLegacy() && t.PlanRef() == newRef {
		return nil, ierr.NewError("tenant is already on this plan").
			WithHint("Choose a different plan").
			Mark(ierr.ErrValidation)
	}

	newPlan, err := s.PlanCatalog.Resolve(newRef)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	today := types.DateOnly(now)

	response := &dto.ChangePlanResponse{}

	if t.IsInTrial(today) || t.CurrentPeriodEnd == nil {
		// Nothing has been paid yet; just swap the selector and snapshot.
		s.applyPlanChange(t, newRef, newPlan.Price, &now)
	} else {
		oldPlan, err := s.PlanCatalog.Resolve(t.PlanRef())
		if err != nil {
			return nil, err
		}

		result, err := proration.Calculate(proration.Params{
			OldPrice:         t.PlanPrice,
			NewPrice:         newPlan.Price,
			OldPeriodDays:    oldPlan.PeriodDays,
			NewPeriodDays:    newPlan.PeriodDays,
			CurrentPeriodEnd: *t.CurrentPeriodEnd,
			ChangeDate:       today,
		})
		if err != nil {
			return nil, err
		}

		response.RemainingDays = result.RemainingDays
		response.Credit = result.Credit
		response.Due = result.Due
		response.NetAmount = result.NetAmount

		if result.NetAmount.IsPositive() {
			chargeResult, err := s.Gateway.Charge(ctx, &payment.ChargeRequest{
				PaymentMethodRef: t.PaymentMethodRef,
				Amount:           result.NetAmount,
				Currency:         s.Config.Billing.Currency,
			})
			if err != nil {
				return nil, err
			}
			response.TransactionID = chargeResult.TransactionID

			entry := &ledger.Entry{
				ID:                   types.GenerateUUIDWithPrefix(types.UUID_PREFIX_LEDGER_ENTRY),
				TenantID:             t.ID,
				Amount:               result.NetAmount,
				Currency:             s.Config.Billing.Currency,
				PlanRef:              newRef,
				PaymentMethodRef:     t.PaymentMethodRef,
				BilledAt:             today,
				GatewayTransactionID: chargeResult.TransactionID,
				BaseModel:            types.GetDefaultBaseModel(ctx),
			}
			if err := s.LedgerRepo.Create(ctx, entry); err != nil {
				return nil, err
			}
		} else if result.NetAmount.IsNegative() {
			refundID, err := s.refundNet(ctx, t, result.NetAmount.Neg())
			if err != nil {
				return nil, err
			}
			response.RefundID = refundID
		}

		s.applyPlanChange(t, newRef, newPlan.Price, &now)
	}

	if err := s.TenantRepo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.Logger.Infow("plan changed",
		"tenant_id", t.ID,
		"plan", newRef.String(),
		"net_amount", response.NetAmount)

	s.publishEvent(ctx, types.WebhookEventSubscriptionPlanChanged, t.ID, map[string]any{
		"plan":       newRef.String(),
		"net_amount": response.NetAmount,
	})

	response.Tenant = t
	return response, nil
}

// applyPlanChange snapshots the new selector and price onto the tenant
// record. Period bounds stay put: the remainder of the paid period was
// settled by proration and the next renewal charges the new snapshot.
func (s *subscriptionService) applyPlanChange(t *tenant.Tenant, ref types.PlanRef, price decimal.Decimal, now *time.Time) {
	t.PlanType = ref.Type
	t.PlanRecurrence = ref.Recurrence
	t.LegacyPlanKey = ref.LegacyKey
	t.PlanPrice = price
	t.PlanStartedAt = now
}

// refundNet refunds a negative proration balance against the most recent
// ledgered charge
func (s *subscriptionService) refundNet(ctx context.Context, t *tenant.Tenant, amount decimal.Decimal) (string, error) {
	entries, err := s.LedgerRepo.ListByTenant(ctx, t.ID)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", ierr.NewError("no ledgered charge to refund against").
			WithHint("A downgrade credit needs a prior charge").
			Mark(ierr.ErrInvalidOperation)
	}

	latest := entries[len(entries)-1]
	result, err := s.Gateway.Refund(ctx, &payment.RefundRequest{
		TransactionID:    latest.GatewayTransactionID,
		PaymentMethodRef: t.PaymentMethodRef,
		Amount:           amount,
		Currency:         s.Config.Billing.Currency,
	})
	if err != nil {
		return "", err
	}
	return result.RefundID, nil
}

func (s *subscriptionService) UpdatePaymentMethod(ctx context.Context, tenantID string, req *dto.UpdatePaymentMethodRequest) (*dto.SubscriptionResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.Locker.Lock(tenantID)
	defer s.Locker.Unlock(tenantID)
	ctx = types.SetTenantID(ctx, tenantID)

	t, err := s.TenantRepo.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	t.PaymentMethodRef = req.PaymentMethodRef

	if err := s.TenantRepo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.Logger.Infow("payment method updated",
		"tenant_id", t.ID)

	return &dto.SubscriptionResponse{Tenant: t}, nil
}
