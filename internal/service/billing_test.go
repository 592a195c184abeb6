package service

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/renewd/renewd/internal/domain/plan"
	"github.com/renewd/renewd/internal/domain/tenant"
	"github.com/renewd/renewd/internal/testutil"
	"github.com/renewd/renewd/internal/types"
)

type BillingServiceSuite struct {
	testutil.BaseServiceTestSuite
	service BillingService
	today   time.Time
}

func TestBillingService(t *testing.T) {
	suite.Run(t, new(BillingServiceSuite))
}

func (s *BillingServiceSuite) SetupTest() {
	s.BaseServiceTestSuite.SetupTest()
	s.service = NewBillingService(ServiceParams{
		Logger:           s.GetLogger(),
		Config:           s.GetConfig(),
		TenantRepo:       s.GetStores().TenantRepo,
		LedgerRepo:       s.GetStores().LedgerRepo,
		PlanCatalog:      plan.NewCatalog(),
		Gateway:          s.GetGateway(),
		Locker:           s.GetLocker(),
		WebhookPublisher: s.GetWebhookPublisher(),
	})
	s.today = time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC)
}

func (s *BillingServiceSuite) datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// dueTenant is an active legacy-monthly tenant whose period lapsed yesterday
func (s *BillingServiceSuite) dueTenant(id string) *tenant.Tenant {
	return &tenant.Tenant{
		ID:                 id,
		Name:               "Acme",
		LegacyPlanKey:      "monthly",
		PlanPrice:          decimal.RequireFromString("50"),
		SubscriptionStatus: types.SubscriptionStatusActive,
		CurrentPeriodStart: s.datePtr(2025, 4, 9),
		CurrentPeriodEnd:   s.datePtr(2025, 5, 9),
		Active:             true,
		PaymentMethodRef:   "pm_123",
	}
}

func (s *BillingServiceSuite) createTenant(t *tenant.Tenant) {
	s.Require().NoError(s.GetStores().TenantRepo.Create(s.GetContext(), t))
}

func (s *BillingServiceSuite) getTenant(id string) *tenant.Tenant {
	t, err := s.GetStores().TenantRepo.Get(s.GetContext(), id)
	s.Require().NoError(err)
	return t
}

func (s *BillingServiceSuite) TestSuccessfulRenewal() {
	s.createTenant(s.dueTenant("ten_1"))

	resp, err := s.service.Run(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(1, resp.TotalBilled)
	s.Equal(0, resp.TotalFailed)

	t := s.getTenant("ten_1")
	s.Equal(types.SubscriptionStatusActive, t.SubscriptionStatus)
	s.Equal(0, t.PaymentAttempts)
	s.Nil(t.PaymentRetryUntil)
	s.False(t.IsFree)

	// The old period end anchors the new period so the schedule never drifts.
	s.Equal(time.Date(2025, 5, 9, 0, 0, 0, 0, time.UTC), *t.CurrentPeriodStart)
	s.Equal(time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC), *t.CurrentPeriodEnd)
	s.Equal(s.today, *t.LastBilledAt)

	entries, err := s.GetStores().LedgerRepo.ListByTenant(s.GetContext(), "ten_1")
	s.NoError(err)
	s.Require().Len(entries, 1)
	s.True(entries[0].Amount.Equal(decimal.RequireFromString("50")))
	s.NotEmpty(entries[0].GatewayTransactionID)

	s.Len(s.GetWebhookEvents().EventsByName(types.WebhookEventSubscriptionBilled), 1)
}

func (s *BillingServiceSuite) TestCatalogRenewalAdvancesByRecurrence() {
	t := s.dueTenant("ten_1")
	t.LegacyPlanKey = ""
	t.PlanType = types.PlanTypeProfessional
	t.PlanRecurrence = types.PlanRecurrenceQuarterly
	t.PlanPrice = decimal.RequireFromString("159")
	s.createTenant(t)

	resp, err := s.service.Run(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(1, resp.TotalBilled)

	got := s.getTenant("ten_1")
	s.Equal(time.Date(2025, 5, 9, 0, 0, 0, 0, time.UTC), *got.CurrentPeriodStart)
	s.Equal(time.Date(2025, 8, 7, 0, 0, 0, 0, time.UTC), *got.CurrentPeriodEnd)

	calls := s.GetGateway().ChargeCalls()
	s.Require().Len(calls, 1)
	s.True(calls[0].Amount.Equal(decimal.RequireFromString("159")))
}

func (s *BillingServiceSuite) TestTransientFailureSchedulesRetry() {
	s.createTenant(s.dueTenant("ten_1"))
	s.GetGateway().FailTransient()

	resp, err := s.service.Run(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(1, resp.TotalFailed)
	s.Equal(0, resp.TotalSuspended)

	t := s.getTenant("ten_1")
	s.Equal(types.SubscriptionStatusActive, t.SubscriptionStatus)
	s.Equal(1, t.PaymentAttempts)
	s.Require().NotNil(t.PaymentRetryUntil)
	s.Equal(s.today.AddDate(0, 0, 1), *t.PaymentRetryUntil)
	s.Equal(s.today, *t.LastPaymentAttemptAt)
	s.Nil(t.LastBilledAt)

	entries, err := s.GetStores().LedgerRepo.ListByTenant(s.GetContext(), "ten_1")
	s.NoError(err)
	s.Empty(entries, "a failed charge never reaches the ledger")

	s.Len(s.GetWebhookEvents().EventsByName(types.WebhookEventSubscriptionBillingFailed), 1)
}

func (s *BillingServiceSuite) TestThirdFailureSuspends() {
	t := s.dueTenant("ten_1")
	t.PaymentAttempts = 2
	t.LastPaymentAttemptAt = s.datePtr(2025, 5, 8)
	t.PaymentRetryUntil = s.datePtr(2025, 5, 9)
	s.createTenant(t)
	s.GetGateway().FailDeclined()

	resp, err := s.service.Run(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(1, resp.TotalSuspended)

	got := s.getTenant("ten_1")
	s.Equal(types.SubscriptionStatusSuspended, got.SubscriptionStatus)
	s.Equal(types.MaxPaymentAttempts, got.PaymentAttempts)

	s.Len(s.GetWebhookEvents().EventsByName(types.WebhookEventSubscriptionBillingFailed), 1)
	s.Len(s.GetWebhookEvents().EventsByName(types.WebhookEventSubscriptionSuspended), 1)
}

func (s *BillingServiceSuite) TestDeferredCancellationFinalizesWithoutCharge() {
	t := s.dueTenant("ten_1")
	t.CancelAtPeriodEnd = true
	t.CancelledAt = s.datePtr(2025, 4, 20)
	s.createTenant(t)

	resp, err := s.service.Run(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(1, resp.TotalCancelled)

	got := s.getTenant("ten_1")
	s.Equal(types.SubscriptionStatusCancelled, got.SubscriptionStatus)
	s.Equal(time.Date(2025, 4, 20, 0, 0, 0, 0, time.UTC), *got.CancelledAt,
		"the original cancellation date is preserved")

	s.Empty(s.GetGateway().ChargeCalls())
	entries, err := s.GetStores().LedgerRepo.ListByTenant(s.GetContext(), "ten_1")
	s.NoError(err)
	s.Empty(entries)

	s.Len(s.GetWebhookEvents().EventsByName(types.WebhookEventSubscriptionCancelled), 1)
}

func (s *BillingServiceSuite) TestMissingPaymentMethodSkipsWithoutMutation() {
	t := s.dueTenant("ten_1")
	t.PaymentMethodRef = ""
	t.CurrentPeriodEnd = s.datePtr(2025, 6, 1) // not due yet
	s.createTenant(t)

	resp, err := s.service.Run(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(1, resp.TotalSkipped)

	got := s.getTenant("ten_1")
	s.Equal(0, got.Version, "a skip leaves the record untouched")
	s.Equal(0, got.PaymentAttempts)
	s.Empty(s.GetGateway().ChargeCalls())
	s.Empty(s.GetWebhookEvents().Events())
}

func (s *BillingServiceSuite) TestDueDayWithoutPaymentMethodIsNotExpired() {
	t := s.dueTenant("ten_1")
	t.PaymentMethodRef = ""
	t.CurrentPeriodEnd = s.datePtr(2025, 5, 10) // due today
	s.createTenant(t)

	resp, err := s.service.Run(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(1, resp.TotalSkipped)
	s.Equal(0, resp.TotalExpired)

	got := s.getTenant("ten_1")
	s.Equal(types.SubscriptionStatusActive, got.SubscriptionStatus)
	s.Equal(0, got.Version, "the record is left untouched")
	s.Empty(s.GetGateway().ChargeCalls())
	s.Empty(s.GetWebhookEvents().Events())

	// A payment method added later the same day still bills on time.
	got.PaymentMethodRef = "pm_123"
	s.Require().NoError(s.GetStores().TenantRepo.Update(s.GetContext(), got))

	resp, err = s.service.Run(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(1, resp.TotalBilled)
}

func (s *BillingServiceSuite) TestLapsedPeriodWithNoBillingPathExpires() {
	t := s.dueTenant("ten_1")
	t.PaymentMethodRef = ""
	s.createTenant(t)

	resp, err := s.service.Run(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(1, resp.TotalExpired)

	got := s.getTenant("ten_1")
	s.Equal(types.SubscriptionStatusExpired, got.SubscriptionStatus)
	s.Empty(s.GetGateway().ChargeCalls())
}

func (s *BillingServiceSuite) TestSecondRunSameDayChargesOnce() {
	s.createTenant(s.dueTenant("ten_1"))

	resp, err := s.service.Run(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(1, resp.TotalBilled)

	resp, err = s.service.Run(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(0, resp.TotalBilled)
	s.Equal(1, resp.TotalSkipped)

	s.Len(s.GetGateway().ChargeCalls(), 1)
}

func (s *BillingServiceSuite) TestSecondRunSameDayAfterFailureDoesNotRetry() {
	s.createTenant(s.dueTenant("ten_1"))
	s.GetGateway().FailTransient()

	resp, err := s.service.Run(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(1, resp.TotalFailed)

	resp, err = s.service.Run(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(0, resp.TotalFailed)
	s.Equal(1, resp.TotalSkipped)

	s.Len(s.GetGateway().ChargeCalls(), 1)
	t := s.getTenant("ten_1")
	s.Equal(1, t.PaymentAttempts)
}

func (s *BillingServiceSuite) TestUnclassifiedChargeFaultDoesNotConsumeAttempt() {
	s.createTenant(s.dueTenant("ten_1"))
	s.GetGateway().QueueChargeResults(errors.New("connection reset"))

	resp, err := s.service.Run(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(1, resp.TotalFailed)

	t := s.getTenant("ten_1")
	s.Equal(types.SubscriptionStatusActive, t.SubscriptionStatus)
	s.Equal(0, t.PaymentAttempts, "only a gateway outcome advances dunning")
	s.Nil(t.PaymentRetryUntil)
	s.Empty(s.GetWebhookEvents().Events())
}

func (s *BillingServiceSuite) TestRetryRunsAfterBackoffWindow() {
	t := s.dueTenant("ten_1")
	t.PaymentAttempts = 1
	t.LastPaymentAttemptAt = s.datePtr(2025, 5, 9)
	t.PaymentRetryUntil = s.datePtr(2025, 5, 10)
	s.createTenant(t)

	resp, err := s.service.Run(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(1, resp.TotalBilled)

	got := s.getTenant("ten_1")
	s.Equal(0, got.PaymentAttempts)
	s.Nil(got.PaymentRetryUntil)
}

func (s *BillingServiceSuite) TestTrialTenantIsNeverCharged() {
	t := s.dueTenant("ten_1")
	t.IsFree = true
	t.PlanTrialEndsAt = s.datePtr(2025, 5, 20)
	t.CurrentPeriodStart = nil
	t.CurrentPeriodEnd = nil
	s.createTenant(t)

	resp, err := s.service.Run(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(1, resp.TotalSkipped)
	s.Empty(s.GetGateway().ChargeCalls())
}

func (s *BillingServiceSuite) TestLapsedTrialGetsFirstCharge() {
	t := s.dueTenant("ten_1")
	t.IsFree = true
	t.PlanTrialEndsAt = s.datePtr(2025, 5, 10)
	t.CurrentPeriodStart = nil
	t.CurrentPeriodEnd = nil
	s.createTenant(t)

	resp, err := s.service.Run(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(1, resp.TotalBilled)

	got := s.getTenant("ten_1")
	s.False(got.IsFree)
	// First charge out of trial anchors the period at today.
	s.Equal(s.today, *got.CurrentPeriodStart)
	s.Equal(s.today.AddDate(0, 0, 30), *got.CurrentPeriodEnd)
}

func (s *BillingServiceSuite) TestOneTenantFailureDoesNotAbortTheBatch() {
	good := s.dueTenant("ten_1")
	bad := s.dueTenant("ten_2")
	bad.LegacyPlanKey = "weekly" // resolves to nothing
	s.createTenant(good)
	s.createTenant(bad)

	resp, err := s.service.Run(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(1, resp.TotalBilled)
	s.Equal(1, resp.TotalFailed)

	s.Equal(types.SubscriptionStatusActive, s.getTenant("ten_1").SubscriptionStatus)
}

func (s *BillingServiceSuite) TestInactiveTenantIsSkipped() {
	t := s.dueTenant("ten_1")
	t.Active = false
	s.createTenant(t)

	resp, err := s.service.Run(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(1, resp.TotalSkipped)
	s.Empty(s.GetGateway().ChargeCalls())
}

func (s *BillingServiceSuite) TestUpcomingAlerts() {
	soon := s.dueTenant("ten_1")
	soon.CurrentPeriodEnd = s.datePtr(2025, 5, 12) // 2 days out
	s.createTenant(soon)

	far := s.dueTenant("ten_2")
	far.CurrentPeriodEnd = s.datePtr(2025, 5, 20) // outside the window
	s.createTenant(far)

	cancelling := s.dueTenant("ten_3")
	cancelling.CurrentPeriodEnd = s.datePtr(2025, 5, 12)
	cancelling.CancelAtPeriodEnd = true
	s.createTenant(cancelling)

	resp, err := s.service.ProcessUpcomingBillingAlerts(s.GetContext(), s.today)
	s.NoError(err)
	s.Equal(1, resp.TotalNotified)

	events := s.GetWebhookEvents().EventsByName(types.WebhookEventSubscriptionUpcoming)
	s.Require().Len(events, 1)
	s.Equal("ten_1", events[0].TenantID)
}
