package billing

import (
	"time"

	ierr "github.com/renewd/renewd/internal/errors"
	"github.com/renewd/renewd/internal/types"
)

// Period lengths are fixed day counts, not calendar-month arithmetic, so a
// renewal date never drifts with month length.
const (
	daysMonthly   = 30
	daysQuarterly = 90
	daysYearly    = 365
)

// PeriodDays returns the length of one billing period in days
func PeriodDays(recurrence types.PlanRecurrence) (int, error) {
	switch recurrence {
	case types.PlanRecurrenceMonthly:
		return daysMonthly, nil
	case types.PlanRecurrenceQuarterly:
		return daysQuarterly, nil
	case types.PlanRecurrenceYearly:
		return daysYearly, nil
	default:
		return 0, ierr.NewError("invalid plan recurrence").
			WithHint("Invalid plan recurrence").
			WithReportableDetails(map[string]any{
				"recurrence": recurrence,
			}).
			Mark(ierr.ErrValidation)
	}
}

// NextPeriod computes the billing period starting at the anchor date.
// Deterministic and side-effect free: identical inputs always yield
// identical bounds.
func NextPeriod(recurrence types.PlanRecurrence, anchor time.Time) (start, end time.Time, err error) {
	days, err := PeriodDays(recurrence)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	start = anchor.UTC()
	end = start.AddDate(0, 0, days)
	return start, end, nil
}

// TrialEnd computes the end of a trial that starts at the signup date
func TrialEnd(signup time.Time, trialDays int) time.Time {
	return signup.UTC().AddDate(0, 0, trialDays)
}
