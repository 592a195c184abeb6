package plan

import (
	"github.com/shopspring/decimal"

	"github.com/renewd/renewd/internal/domain/billing"
	ierr "github.com/renewd/renewd/internal/errors"
	"github.com/renewd/renewd/internal/types"
)

// Catalog resolves a plan selector to its pricing metadata
type Catalog interface {
	Resolve(ref types.PlanRef) (*Plan, error)
}

type catalog struct {
	entries map[string]*Plan
	legacy  map[string]*Plan
}

// NewCatalog builds the default type x recurrence catalog with the legacy
// fixed table kept as fallback for tenants that predate it
func NewCatalog() Catalog {
	c := &catalog{
		entries: make(map[string]*Plan),
		legacy:  make(map[string]*Plan),
	}

	for planType, prices := range map[types.PlanType]map[types.PlanRecurrence]string{
		types.PlanTypeStarter: {
			types.PlanRecurrenceMonthly:   "29",
			types.PlanRecurrenceQuarterly: "79",
			types.PlanRecurrenceYearly:    "290",
		},
		types.PlanTypeProfessional: {
			types.PlanRecurrenceMonthly:   "59",
			types.PlanRecurrenceQuarterly: "159",
			types.PlanRecurrenceYearly:    "590",
		},
		types.PlanTypeEnterprise: {
			types.PlanRecurrenceMonthly:   "119",
			types.PlanRecurrenceQuarterly: "329",
			types.PlanRecurrenceYearly:    "1190",
		},
	} {
		for recurrence, price := range prices {
			ref := types.NewCatalogPlanRef(planType, recurrence)
			days, _ := billing.PeriodDays(recurrence)
			c.entries[ref.String()] = &Plan{
				Ref:        ref,
				Price:      decimal.RequireFromString(price),
				TrialDays:  14,
				PeriodDays: days,
			}
		}
	}

	// Legacy fixed table retained for tenants subscribed before the catalog
	// existed. Resolution tries the catalog first and falls back here.
	for key, entry := range map[string]struct {
		price string
		days  int
	}{
		"monthly":   {price: "50", days: 30},
		"quarterly": {price: "135", days: 90},
		"yearly":    {price: "480", days: 365},
	} {
		c.legacy[key] = &Plan{
			Ref:        types.NewLegacyPlanRef(key),
			Price:      decimal.RequireFromString(entry.price),
			TrialDays:  7,
			PeriodDays: entry.days,
		}
	}

	return c
}

func (c *catalog) Resolve(ref types.PlanRef) (*Plan, error) {
	if ref.IsLegacy() {
		if p, ok := c.legacy[ref.LegacyKey]; ok {
			return p, nil
		}
		return nil, ierr.NewError("plan not found").
			WithHint("Unknown legacy plan").
			WithReportableDetails(map[string]any{
				"legacy_key": ref.LegacyKey,
			}).
			Mark(ierr.ErrNotFound)
	}

	if p, ok := c.entries[ref.String()]; ok {
		return p, nil
	}

	// A catalog miss may still be a legacy key expressed as a recurrence
	// selector; try the fallback table before giving up.
	if p, ok := c.legacy[ref.Recurrence.String()]; ok && ref.Type == "" {
		return p, nil
	}

	return nil, ierr.NewError("plan not found").
		WithHint("Unknown plan type or recurrence").
		WithReportableDetails(map[string]any{
			"plan_type":       ref.Type,
			"plan_recurrence": ref.Recurrence,
		}).
		Mark(ierr.ErrNotFound)
}
