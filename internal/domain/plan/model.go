package plan

import (
	"github.com/shopspring/decimal"

	"github.com/renewd/renewd/internal/types"
)

// Plan is the resolved pricing metadata for a plan selector. The price here
// is only a template: every tenant snapshots it onto its own record at
// subscription or plan-change time and is never re-priced retroactively.
type Plan struct {
	Ref        types.PlanRef   `json:"ref"`
	Price      decimal.Decimal `json:"price"`
	TrialDays  int             `json:"trial_days"`
	PeriodDays int             `json:"period_days"`
}
