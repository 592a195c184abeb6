package tenant

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/renewd/renewd/internal/types"
)

// Tenant is the billing unit: one company account and its subscription
// state. Attempt counters, retry windows, period bounds and status are
// interdependent; every mutation goes through a version-guarded update so
// overlapping driver runs and tenant-initiated operations cannot interleave.
type Tenant struct {
	// ID is the unique identifier for the tenant
	ID string `db:"id" json:"id"`

	// Name is the display name of the tenant's company
	Name string `db:"name" json:"name"`

	// PlanType and PlanRecurrence select the plan from the catalog.
	// Both empty means the tenant is not yet on the catalog billing system.
	PlanType       types.PlanType       `db:"plan_type" json:"plan_type"`
	PlanRecurrence types.PlanRecurrence `db:"plan_recurrence" json:"plan_recurrence"`

	// LegacyPlanKey is set for tenants that predate the catalog
	LegacyPlanKey string `db:"legacy_plan_key" json:"legacy_plan_key"`

	// PlanPrice is the price snapshot taken at subscription or plan-change
	// time. It is never re-read from the catalog for past periods.
	PlanPrice decimal.Decimal `db:"plan_price" json:"plan_price"`

	// PlanStartedAt is when the tenant first subscribed to the current plan
	PlanStartedAt *time.Time `db:"plan_started_at" json:"plan_started_at"`

	// PlanTrialEndsAt is the end of the free trial, if one was granted
	PlanTrialEndsAt *time.Time `db:"plan_trial_ends_at" json:"plan_trial_ends_at"`

	// SubscriptionStatus is the status of the subscription
	SubscriptionStatus types.SubscriptionStatus `db:"subscription_status" json:"subscription_status"`

	// CurrentPeriodStart and CurrentPeriodEnd bound the paid period.
	// Required and consistent (end after start) whenever the subscription is
	// active and out of trial.
	CurrentPeriodStart *time.Time `db:"current_period_start" json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `db:"current_period_end" json:"current_period_end"`

	// CancelledAt is the date the cancellation was recorded
	CancelledAt *time.Time `db:"cancelled_at" json:"cancelled_at"`

	// CancelAtPeriodEnd defers the cancellation to the end of the paid period
	CancelAtPeriodEnd bool `db:"cancel_at_period_end" json:"cancel_at_period_end"`

	// IsFree marks a tenant still in trial; no charge is ever attempted
	IsFree bool `db:"is_free" json:"is_free"`

	// LastBilledAt is the date of the last confirmed successful charge
	LastBilledAt *time.Time `db:"last_billed_at" json:"last_billed_at"`

	// PaymentAttempts counts consecutive failed charges for the current
	// cycle, in [0, types.MaxPaymentAttempts]
	PaymentAttempts int `db:"payment_attempts" json:"payment_attempts"`

	// LastPaymentAttemptAt is when the last charge attempt happened,
	// successful or not
	LastPaymentAttemptAt *time.Time `db:"last_payment_attempt_at" json:"last_payment_attempt_at"`

	// PaymentRetryUntil is the earliest date the next dunning retry may run
	PaymentRetryUntil *time.Time `db:"payment_retry_until" json:"payment_retry_until"`

	// Active is whether the tenant account operates at all, orthogonal to
	// the subscription status
	Active bool `db:"active" json:"active"`

	// PaymentMethodRef is the opaque token for the stored payment
	// instrument. Without it the tenant is permanently ineligible for
	// billing.
	PaymentMethodRef string `db:"payment_method_ref" json:"payment_method_ref"`

	// Version guards concurrent updates
	Version int `db:"version" json:"version"`

	types.BaseModel
}

func (Tenant) TableName() string {
	return "tenants"
}

// PlanRef returns the plan selector for this tenant
func (t *Tenant) PlanRef() types.PlanRef {
	if t.LegacyPlanKey != "" {
		return types.NewLegacyPlanRef(t.LegacyPlanKey)
	}
	return types.NewCatalogPlanRef(t.PlanType, t.PlanRecurrence)
}

// HasPlanSelector reports whether the tenant is on any billing system at all
func (t *Tenant) HasPlanSelector() bool {
	return t.LegacyPlanKey != "" || (t.PlanType != "" && t.PlanRecurrence != "")
}

// IsBillable is the eligibility filter: an ordered, short-circuiting
// conjunction over the tenant snapshot. Pure; identical snapshots always
// yield the same answer.
func (t *Tenant) IsBillable() bool {
	if t.PaymentMethodRef == "" {
		return false
	}
	if !t.Active {
		return false
	}
	if !t.HasPlanSelector() {
		return false
	}
	if t.PaymentAttempts >= types.MaxPaymentAttempts {
		return false
	}
	if t.SubscriptionStatus == types.SubscriptionStatusSuspended {
		return false
	}
	return true
}

// IsInTrial reports whether the tenant's trial covers the given date
func (t *Tenant) IsInTrial(today time.Time) bool {
	return t.IsFree && t.PlanTrialEndsAt != nil && types.DateOnly(today).Before(types.DateOnly(*t.PlanTrialEndsAt))
}

// TrialLapsed reports whether the trial has run out without a first charge.
// The crossing happens exactly once: the first successful charge clears
// IsFree.
func (t *Tenant) TrialLapsed(today time.Time) bool {
	return t.IsFree && t.PlanTrialEndsAt != nil && !types.DateOnly(today).Before(types.DateOnly(*t.PlanTrialEndsAt))
}

// RenewalDue reports whether the paid period has lapsed as of today
func (t *Tenant) RenewalDue(today time.Time) bool {
	if t.CurrentPeriodEnd == nil {
		return false
	}
	return !types.DateOnly(today).Before(types.DateOnly(*t.CurrentPeriodEnd))
}

// RetryDue reports whether a dunning retry is pending for the current cycle
func (t *Tenant) RetryDue(today time.Time) bool {
	return t.PaymentAttempts > 0 && t.PaymentAttempts < types.MaxPaymentAttempts
}

// ShouldBill is the due filter: a renewal has come due, the trial just ran
// out, or a retry is pending
func (t *Tenant) ShouldBill(today time.Time) bool {
	if t.IsInTrial(today) {
		return false
	}
	return t.RenewalDue(today) || t.TrialLapsed(today) || t.RetryDue(today)
}

// CanAttemptOn is the dunning scheduler: decides whether a charge attempt
// may run today given the attempt history and backoff window. The same-day
// guard is what prevents double charges when the driver fires twice.
func (t *Tenant) CanAttemptOn(today time.Time) bool {
	// Idempotence guard: one attempt per tenant per calendar day, no matter
	// how many times the driver runs.
	if t.LastPaymentAttemptAt != nil && types.SameDay(*t.LastPaymentAttemptAt, today) {
		return false
	}

	// First attempt of a cycle is allowed whenever the cycle is due.
	if t.PaymentAttempts == 0 {
		return t.RenewalDue(today) || t.TrialLapsed(today)
	}

	// Retries wait out the backoff window.
	if t.PaymentRetryUntil == nil {
		return true
	}
	return !types.DateOnly(today).Before(types.DateOnly(*t.PaymentRetryUntil))
}
