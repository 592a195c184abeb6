package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/renewd/renewd/internal/api/dto"
	"github.com/renewd/renewd/internal/domain/ledger"
	"github.com/renewd/renewd/internal/domain/plan"
	"github.com/renewd/renewd/internal/domain/tenant"
	ierr "github.com/renewd/renewd/internal/errors"
	"github.com/renewd/renewd/internal/testutil"
	"github.com/renewd/renewd/internal/types"
)

type SubscriptionServiceSuite struct {
	testutil.BaseServiceTestSuite
	service SubscriptionService
}

func TestSubscriptionService(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceSuite))
}

func (s *SubscriptionServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewSubscriptionService(ServiceParams{
		Logger:           s.GetLogger(),
		Config:           s.GetConfig(),
		TenantRepo:       s.GetStores().TenantRepo,
		LedgerRepo:       s.GetStores().LedgerRepo,
		PlanCatalog:      plan.NewCatalog(),
		Gateway:          s.GetGateway(),
		Locker:           s.GetLocker(),
		WebhookPublisher: s.GetWebhookPublisher(),
	})
}

func (s *SubscriptionServiceSuite) datePtr(t time.Time) *time.Time {
	return &t
}

func (s *SubscriptionServiceSuite) createTenant(t *tenant.Tenant) {
	s.Require().NoError(s.GetStores().TenantRepo.Create(s.GetContext(), t))
}

func (s *SubscriptionServiceSuite) getTenant(id string) *tenant.Tenant {
	t, err := s.GetStores().TenantRepo.Get(s.GetContext(), id)
	s.Require().NoError(err)
	return t
}

func (s *SubscriptionServiceSuite) seedLedgerEntry(tenantID, txnID, amount string) {
	entry := &ledger.Entry{
		ID:                   types.GenerateUUIDWithPrefix(types.UUID_PREFIX_LEDGER_ENTRY),
		TenantID:             tenantID,
		Amount:               decimal.RequireFromString(amount),
		Currency:             "usd",
		BilledAt:             types.DateOnly(time.Now().UTC()).AddDate(0, 0, -15),
		GatewayTransactionID: txnID,
		BaseModel:            types.GetDefaultBaseModel(s.GetContext()),
	}
	s.Require().NoError(s.GetStores().LedgerRepo.Create(s.GetContext(), entry))
}

// activeTenant is mid-cycle on a paid professional monthly plan
func (s *SubscriptionServiceSuite) activeTenant(id string) *tenant.Tenant {
	today := types.DateOnly(time.Now().UTC())
	return &tenant.Tenant{
		ID:                 id,
		Name:               "Acme",
		PlanType:           types.PlanTypeProfessional,
		PlanRecurrence:     types.PlanRecurrenceMonthly,
		PlanPrice:          decimal.RequireFromString("59"),
		SubscriptionStatus: types.SubscriptionStatusActive,
		CurrentPeriodStart: s.datePtr(today.AddDate(0, 0, -15)),
		CurrentPeriodEnd:   s.datePtr(today.AddDate(0, 0, 15)),
		Active:             true,
		PaymentMethodRef:   "pm_123",
	}
}

func (s *SubscriptionServiceSuite) TestStartSubscriptionGrantsTrial() {
	s.createTenant(&tenant.Tenant{ID: "ten_1", Name: "Acme", Active: true})

	resp, err := s.service.StartSubscription(s.GetContext(), "ten_1", &dto.StartSubscriptionRequest{
		PlanType:         types.PlanTypeStarter,
		PlanRecurrence:   types.PlanRecurrenceMonthly,
		PaymentMethodRef: "pm_123",
	})
	s.Require().NoError(err)

	t := resp.Tenant
	s.Equal(types.SubscriptionStatusActive, t.SubscriptionStatus)
	s.True(t.IsFree)
	s.Require().NotNil(t.PlanTrialEndsAt)
	s.Equal(types.DateOnly(time.Now().UTC()).AddDate(0, 0, 14), *t.PlanTrialEndsAt)
	s.True(t.PlanPrice.Equal(decimal.RequireFromString("29")))
	s.Nil(t.CurrentPeriodEnd)

	s.Empty(s.GetGateway().ChargeCalls(), "no charge during trial")
}

func (s *SubscriptionServiceSuite) TestStartSubscriptionLegacyPlan() {
	s.createTenant(&tenant.Tenant{ID: "ten_1", Name: "Acme", Active: true})

	resp, err := s.service.StartSubscription(s.GetContext(), "ten_1", &dto.StartSubscriptionRequest{
		LegacyPlanKey:    "monthly",
		PaymentMethodRef: "pm_123",
	})
	s.Require().NoError(err)

	t := resp.Tenant
	s.Equal("monthly", t.LegacyPlanKey)
	s.True(t.PlanPrice.Equal(decimal.RequireFromString("50")))
	s.Require().NotNil(t.PlanTrialEndsAt)
	s.Equal(types.DateOnly(time.Now().UTC()).AddDate(0, 0, 7), *t.PlanTrialEndsAt)
}

func (s *SubscriptionServiceSuite) TestStartSubscriptionAlreadyActive() {
	s.createTenant(s.activeTenant("ten_1"))

	_, err := s.service.StartSubscription(s.GetContext(), "ten_1", &dto.StartSubscriptionRequest{
		PlanType:       types.PlanTypeStarter,
		PlanRecurrence: types.PlanRecurrenceMonthly,
	})
	s.Error(err)
	s.True(ierr.IsStateConflict(err))
}

func (s *SubscriptionServiceSuite) TestStartSubscriptionUnknownTenant() {
	_, err := s.service.StartSubscription(s.GetContext(), "ten_missing", &dto.StartSubscriptionRequest{
		PlanType:       types.PlanTypeStarter,
		PlanRecurrence: types.PlanRecurrenceMonthly,
	})
	s.Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *SubscriptionServiceSuite) TestImmediateCancellation() {
	s.createTenant(s.activeTenant("ten_1"))

	resp, err := s.service.RequestCancellation(s.GetContext(), "ten_1", &dto.CancelSubscriptionRequest{
		Immediate: true,
	})
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusCancelled, resp.Tenant.SubscriptionStatus)
	s.False(resp.Tenant.CancelAtPeriodEnd)
	s.NotNil(resp.Tenant.CancelledAt)

	s.Len(s.GetWebhookEvents().EventsByName(types.WebhookEventSubscriptionCancelled), 1)
}

func (s *SubscriptionServiceSuite) TestDeferredCancellation() {
	s.createTenant(s.activeTenant("ten_1"))

	resp, err := s.service.RequestCancellation(s.GetContext(), "ten_1", &dto.CancelSubscriptionRequest{})
	s.Require().NoError(err)

	t := resp.Tenant
	s.Equal(types.SubscriptionStatusActive, t.SubscriptionStatus, "billing continues through the paid period")
	s.True(t.CancelAtPeriodEnd)
	s.NotNil(t.CancelledAt)

	// The transition event is only emitted when the driver finalizes it.
	s.Empty(s.GetWebhookEvents().EventsByName(types.WebhookEventSubscriptionCancelled))
}

func (s *SubscriptionServiceSuite) TestCancelAlreadyCancelled() {
	t := s.activeTenant("ten_1")
	t.SubscriptionStatus = types.SubscriptionStatusCancelled
	s.createTenant(t)

	_, err := s.service.RequestCancellation(s.GetContext(), "ten_1", &dto.CancelSubscriptionRequest{Immediate: true})
	s.Error(err)
	s.True(ierr.IsStateConflict(err))
}

func (s *SubscriptionServiceSuite) TestReactivateSuspended() {
	t := s.activeTenant("ten_1")
	t.SubscriptionStatus = types.SubscriptionStatusSuspended
	t.PaymentAttempts = 3
	t.PaymentRetryUntil = s.datePtr(time.Now().UTC().AddDate(0, 0, 1))
	s.createTenant(t)

	resp, err := s.service.Reactivate(s.GetContext(), "ten_1")
	s.Require().NoError(err)

	got := resp.Tenant
	s.Equal(types.SubscriptionStatusActive, got.SubscriptionStatus)
	s.Equal(0, got.PaymentAttempts)
	s.Nil(got.PaymentRetryUntil)

	s.Len(s.GetWebhookEvents().EventsByName(types.WebhookEventSubscriptionReactivated), 1)
}

func (s *SubscriptionServiceSuite) TestReactivatePendingCancellation() {
	t := s.activeTenant("ten_1")
	t.SubscriptionStatus = types.SubscriptionStatusCancelled
	t.CancelAtPeriodEnd = true
	t.CancelledAt = s.datePtr(time.Now().UTC())
	s.createTenant(t)

	resp, err := s.service.Reactivate(s.GetContext(), "ten_1")
	s.Require().NoError(err)
	s.Equal(types.SubscriptionStatusActive, resp.Tenant.SubscriptionStatus)
	s.False(resp.Tenant.CancelAtPeriodEnd)
	s.Nil(resp.Tenant.CancelledAt)
}

func (s *SubscriptionServiceSuite) TestReactivateExpiredLeavesRecordUntouched() {
	t := s.activeTenant("ten_1")
	t.SubscriptionStatus = types.SubscriptionStatusExpired
	s.createTenant(t)

	_, err := s.service.Reactivate(s.GetContext(), "ten_1")
	s.Error(err)
	s.True(ierr.IsStateConflict(err))

	got := s.getTenant("ten_1")
	s.Equal(types.SubscriptionStatusExpired, got.SubscriptionStatus)
	s.Equal(0, got.Version)
}

func (s *SubscriptionServiceSuite) TestReactivateImmediateCancellationRejected() {
	t := s.activeTenant("ten_1")
	t.SubscriptionStatus = types.SubscriptionStatusCancelled
	t.CancelAtPeriodEnd = false
	s.createTenant(t)

	_, err := s.service.Reactivate(s.GetContext(), "ten_1")
	s.Error(err)
	s.True(ierr.IsStateConflict(err))
}

func (s *SubscriptionServiceSuite) TestChangePlanUpgradeChargesNet() {
	s.createTenant(s.activeTenant("ten_1"))
	oldEnd := *s.getTenant("ten_1").CurrentPeriodEnd

	resp, err := s.service.ChangePlan(s.GetContext(), "ten_1", &dto.ChangePlanRequest{
		PlanType:       types.PlanTypeEnterprise,
		PlanRecurrence: types.PlanRecurrenceMonthly,
	})
	s.Require().NoError(err)

	// 15 of 30 days remain: credit 59/2, due 119/2, net 30.
	s.Equal(15, resp.RemainingDays)
	s.True(resp.Credit.Equal(decimal.RequireFromString("29.5")), "credit %s", resp.Credit)
	s.True(resp.Due.Equal(decimal.RequireFromString("59.5")), "due %s", resp.Due)
	s.True(resp.NetAmount.Equal(decimal.RequireFromString("30")), "net %s", resp.NetAmount)
	s.NotEmpty(resp.TransactionID)

	calls := s.GetGateway().ChargeCalls()
	s.Require().Len(calls, 1)
	s.True(calls[0].Amount.Equal(decimal.RequireFromString("30")))

	t := resp.Tenant
	s.Equal(types.PlanTypeEnterprise, t.PlanType)
	s.True(t.PlanPrice.Equal(decimal.RequireFromString("119")))
	s.Equal(oldEnd, *t.CurrentPeriodEnd, "period bounds survive the plan change")

	entries, err := s.GetStores().LedgerRepo.ListByTenant(s.GetContext(), "ten_1")
	s.NoError(err)
	s.Require().Len(entries, 1)
	s.True(entries[0].Amount.Equal(decimal.RequireFromString("30")))

	s.Len(s.GetWebhookEvents().EventsByName(types.WebhookEventSubscriptionPlanChanged), 1)
}

func (s *SubscriptionServiceSuite) TestChangePlanDowngradeRefundsNet() {
	t := s.activeTenant("ten_1")
	t.PlanType = types.PlanTypeEnterprise
	t.PlanPrice = decimal.RequireFromString("119")
	s.createTenant(t)

	// Seed the charge the downgrade refunds against.
	s.seedLedgerEntry("ten_1", "txn_seed", "119")

	resp, err := s.service.ChangePlan(s.GetContext(), "ten_1", &dto.ChangePlanRequest{
		PlanType:       types.PlanTypeStarter,
		PlanRecurrence: types.PlanRecurrenceMonthly,
	})
	s.Require().NoError(err)

	// 15 of 30 days remain: credit 59.5, due 14.5, net -45.
	s.True(resp.NetAmount.Equal(decimal.RequireFromString("-45")), "net %s", resp.NetAmount)
	s.NotEmpty(resp.RefundID)
	s.Empty(resp.TransactionID)

	refunds := s.GetGateway().RefundCalls()
	s.Require().Len(refunds, 1)
	s.True(refunds[0].Amount.Equal(decimal.RequireFromString("45")))
	s.Equal("txn_seed", refunds[0].TransactionID)

	got := resp.Tenant
	s.Equal(types.PlanTypeStarter, got.PlanType)
	s.True(got.PlanPrice.Equal(decimal.RequireFromString("29")))
}

func (s *SubscriptionServiceSuite) TestChangePlanDuringTrialJustSwaps() {
	t := s.activeTenant("ten_1")
	t.IsFree = true
	t.PlanTrialEndsAt = s.datePtr(time.Now().UTC().AddDate(0, 0, 7))
	t.CurrentPeriodStart = nil
	t.CurrentPeriodEnd = nil
	s.createTenant(t)

	resp, err := s.service.ChangePlan(s.GetContext(), "ten_1", &dto.ChangePlanRequest{
		PlanType:       types.PlanTypeEnterprise,
		PlanRecurrence: types.PlanRecurrenceYearly,
	})
	s.Require().NoError(err)

	s.True(resp.NetAmount.IsZero())
	s.Empty(s.GetGateway().ChargeCalls())
	s.Empty(s.GetGateway().RefundCalls())
	s.True(resp.Tenant.PlanPrice.Equal(decimal.RequireFromString("1190")))
}

func (s *SubscriptionServiceSuite) TestChangePlanSamePlanRejected() {
	s.createTenant(s.activeTenant("ten_1"))

	_, err := s.service.ChangePlan(s.GetContext(), "ten_1", &dto.ChangePlanRequest{
		PlanType:       types.PlanTypeProfessional,
		PlanRecurrence: types.PlanRecurrenceMonthly,
	})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *SubscriptionServiceSuite) TestChangePlanRequiresActiveSubscription() {
	t := s.activeTenant("ten_1")
	t.SubscriptionStatus = types.SubscriptionStatusSuspended
	s.createTenant(t)

	_, err := s.service.ChangePlan(s.GetContext(), "ten_1", &dto.ChangePlanRequest{
		PlanType:       types.PlanTypeEnterprise,
		PlanRecurrence: types.PlanRecurrenceMonthly,
	})
	s.Error(err)
	s.True(ierr.IsStateConflict(err))
}

func (s *SubscriptionServiceSuite) TestUpdatePaymentMethod() {
	s.createTenant(s.activeTenant("ten_1"))

	resp, err := s.service.UpdatePaymentMethod(s.GetContext(), "ten_1", &dto.UpdatePaymentMethodRequest{
		PaymentMethodRef: "pm_456",
	})
	s.Require().NoError(err)
	s.Equal("pm_456", resp.Tenant.PaymentMethodRef)
	s.Equal("pm_456", s.getTenant("ten_1").PaymentMethodRef)
}

func (s *SubscriptionServiceSuite) TestUpdatePaymentMethodRequiresRef() {
	s.createTenant(s.activeTenant("ten_1"))

	_, err := s.service.UpdatePaymentMethod(s.GetContext(), "ten_1", &dto.UpdatePaymentMethodRequest{})
	s.Error(err)
	s.True(ierr.IsValidation(err))
}
