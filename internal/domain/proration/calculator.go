package proration

import (
	"time"

	"github.com/shopspring/decimal"

	ierr "github.com/renewd/renewd/internal/errors"
	"github.com/renewd/renewd/internal/types"
)

// Params describe a mid-cycle plan change to prorate
type Params struct {
	// OldPrice is the price snapshot on the tenant record, not the catalog
	OldPrice decimal.Decimal
	// NewPrice is the resolved price of the target plan
	NewPrice decimal.Decimal
	// OldPeriodDays and NewPeriodDays are the period lengths of both plans
	OldPeriodDays int
	NewPeriodDays int
	// CurrentPeriodEnd bounds the paid period being left
	CurrentPeriodEnd time.Time
	// ChangeDate is when the plan change takes effect
	ChangeDate time.Time
}

// Result is the prorated outcome of a plan change. NetAmount is positive
// when the tenant owes money and negative when a credit is due back.
type Result struct {
	RemainingDays int             `json:"remaining_days"`
	Credit        decimal.Decimal `json:"credit"`
	Due           decimal.Decimal `json:"due"`
	NetAmount     decimal.Decimal `json:"net_amount"`
}

// Calculate applies linear day-based proration: the unused share of the old
// period is credited at the old price snapshot and the same share of the new
// period is charged at the new price. Amounts are rounded to 2 decimal
// places at the end, never mid-calculation.
func Calculate(params Params) (*Result, error) {
	if params.OldPeriodDays <= 0 || params.NewPeriodDays <= 0 {
		return nil, ierr.NewError("invalid proration period").
			WithHint("Plan period days must be positive").
			WithReportableDetails(map[string]any{
				"old_period_days": params.OldPeriodDays,
				"new_period_days": params.NewPeriodDays,
			}).
			Mark(ierr.ErrValidation)
	}

	remaining := int(types.DateOnly(params.CurrentPeriodEnd).Sub(types.DateOnly(params.ChangeDate)).Hours() / 24)
	if remaining < 0 {
		remaining = 0 // change recorded after the period lapsed
	}

	remainingDays := decimal.NewFromInt(int64(remaining))

	credit := params.OldPrice.
		Mul(remainingDays).
		Div(decimal.NewFromInt(int64(params.OldPeriodDays)))

	due := params.NewPrice.
		Mul(remainingDays).
		Div(decimal.NewFromInt(int64(params.NewPeriodDays)))

	return &Result{
		RemainingDays: remaining,
		Credit:        credit.Round(2),
		Due:           due.Round(2),
		NetAmount:     due.Sub(credit).Round(2),
	}, nil
}
