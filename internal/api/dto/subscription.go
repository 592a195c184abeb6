package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/renewd/renewd/internal/domain/tenant"
	ierr "github.com/renewd/renewd/internal/errors"
	"github.com/renewd/renewd/internal/types"
)

// StartSubscriptionRequest puts a tenant on a plan, either straight onto a
// paid period or into a trial when the plan grants one
type StartSubscriptionRequest struct {
	PlanType         types.PlanType       `json:"plan_type"`
	PlanRecurrence   types.PlanRecurrence `json:"plan_recurrence"`
	LegacyPlanKey    string               `json:"legacy_plan_key,omitempty"`
	PaymentMethodRef string               `json:"payment_method_ref"`
}

func (r *StartSubscriptionRequest) Validate() error {
	ref := r.PlanRef()
	if !ref.IsLegacy() {
		if err := ref.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r *StartSubscriptionRequest) PlanRef() types.PlanRef {
	if r.LegacyPlanKey != "" {
		return types.NewLegacyPlanRef(r.LegacyPlanKey)
	}
	return types.NewCatalogPlanRef(r.PlanType, r.PlanRecurrence)
}

// CancelSubscriptionRequest records a cancellation, either effective now or
// deferred to the end of the paid period
type CancelSubscriptionRequest struct {
	Immediate bool `json:"immediate"`
}

// ChangePlanRequest moves a tenant to a different catalog plan mid-cycle
type ChangePlanRequest struct {
	PlanType       types.PlanType       `json:"plan_type"`
	PlanRecurrence types.PlanRecurrence `json:"plan_recurrence"`
}

func (r *ChangePlanRequest) Validate() error {
	if err := r.PlanType.Validate(); err != nil {
		return err
	}
	return r.PlanRecurrence.Validate()
}

// UpdatePaymentMethodRequest swaps the stored payment instrument token
type UpdatePaymentMethodRequest struct {
	PaymentMethodRef string `json:"payment_method_ref"`
}

func (r *UpdatePaymentMethodRequest) Validate() error {
	if r.PaymentMethodRef == "" {
		return ierr.NewError("payment method reference is required").
			WithHint("Provide a payment method reference").
			Mark(ierr.ErrValidation)
	}
	return nil
}

// ChangePlanResponse reports the proration outcome of a plan change
type ChangePlanResponse struct {
	Tenant        *tenant.Tenant  `json:"tenant"`
	RemainingDays int             `json:"remaining_days"`
	Credit        decimal.Decimal `json:"credit"`
	Due           decimal.Decimal `json:"due"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	TransactionID string          `json:"transaction_id,omitempty"`
	RefundID      string          `json:"refund_id,omitempty"`
}

// SubscriptionResponse wraps a tenant subscription record
type SubscriptionResponse struct {
	Tenant *tenant.Tenant `json:"tenant"`
}

// BillingRunItem is the per-tenant outcome of one driver run
type BillingRunItem struct {
	TenantID string `json:"tenant_id"`
	Outcome  string `json:"outcome"`
	Attempts int    `json:"attempts,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BillingRunResponse is the summary the driver returns for a whole batch.
// The driver itself never raises outward; tenant-level faults land in Items.
type BillingRunResponse struct {
	StartAt        time.Time         `json:"start_at"`
	RunDate        time.Time         `json:"run_date"`
	TotalBilled    int               `json:"total_billed"`
	TotalFailed    int               `json:"total_failed"`
	TotalSuspended int               `json:"total_suspended"`
	TotalCancelled int               `json:"total_cancelled"`
	TotalExpired   int               `json:"total_expired"`
	TotalSkipped   int               `json:"total_skipped"`
	Items          []*BillingRunItem `json:"items"`
}

// UpcomingAlertsResponse summarizes one upcoming-billing alert pass
type UpcomingAlertsResponse struct {
	TotalNotified int `json:"total_notified"`
}
