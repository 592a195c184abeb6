package types

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/samber/lo"

	ierr "github.com/renewd/renewd/internal/errors"
)

// PlanRecurrence is the billing recurrence of a plan
type PlanRecurrence string

const (
	PlanRecurrenceMonthly   PlanRecurrence = "monthly"
	PlanRecurrenceQuarterly PlanRecurrence = "quarterly"
	PlanRecurrenceYearly    PlanRecurrence = "yearly"
)

func (r PlanRecurrence) String() string {
	return string(r)
}

func (r PlanRecurrence) Validate() error {
	allowed := []PlanRecurrence{
		PlanRecurrenceMonthly,
		PlanRecurrenceQuarterly,
		PlanRecurrenceYearly,
	}
	if !lo.Contains(allowed, r) {
		return ierr.NewError("invalid plan recurrence").
			WithHint("Invalid plan recurrence").
			WithReportableDetails(map[string]any{
				"recurrence": r,
				"allowed":    allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PlanType is the tier of a plan in the catalog
type PlanType string

const (
	PlanTypeStarter      PlanType = "starter"
	PlanTypeProfessional PlanType = "professional"
	PlanTypeEnterprise   PlanType = "enterprise"
)

func (t PlanType) String() string {
	return string(t)
}

func (t PlanType) Validate() error {
	allowed := []PlanType{
		PlanTypeStarter,
		PlanTypeProfessional,
		PlanTypeEnterprise,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid plan type").
			WithHint("Invalid plan type").
			WithReportableDetails(map[string]any{
				"plan_type": t,
				"allowed":   allowed,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// PlanRef selects a plan either from the type x recurrence catalog or from
// the legacy fixed table that predates it. Exactly one of the two variants
// is set.
type PlanRef struct {
	LegacyKey  string         `json:"legacy_key,omitempty"`
	Type       PlanType       `json:"plan_type,omitempty"`
	Recurrence PlanRecurrence `json:"plan_recurrence,omitempty"`
}

// NewCatalogPlanRef builds a catalog plan selector
func NewCatalogPlanRef(planType PlanType, recurrence PlanRecurrence) PlanRef {
	return PlanRef{Type: planType, Recurrence: recurrence}
}

// NewLegacyPlanRef builds a legacy plan selector
func NewLegacyPlanRef(key string) PlanRef {
	return PlanRef{LegacyKey: key}
}

// IsLegacy reports whether the selector points at the legacy table
func (r PlanRef) IsLegacy() bool {
	return r.LegacyKey != ""
}

func (r PlanRef) String() string {
	if r.IsLegacy() {
		return fmt.Sprintf("legacy:%s", r.LegacyKey)
	}
	return fmt.Sprintf("%s:%s", r.Type, r.Recurrence)
}

// ParsePlanRef is the inverse of String
func ParsePlanRef(s string) PlanRef {
	if s == "" {
		return PlanRef{}
	}
	if key, ok := strings.CutPrefix(s, "legacy:"); ok {
		return NewLegacyPlanRef(key)
	}
	if planType, recurrence, ok := strings.Cut(s, ":"); ok {
		return PlanRef{Type: PlanType(planType), Recurrence: PlanRecurrence(recurrence)}
	}
	return PlanRef{}
}

// Value stores the selector in its string form
func (r PlanRef) Value() (driver.Value, error) {
	return r.String(), nil
}

// Scan restores the selector from its string form
func (r *PlanRef) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*r = PlanRef{}
	case string:
		*r = ParsePlanRef(v)
	case []byte:
		*r = ParsePlanRef(string(v))
	default:
		return fmt.Errorf("cannot scan %T into PlanRef", value)
	}
	return nil
}

func (r PlanRef) Validate() error {
	if r.IsLegacy() {
		return nil
	}
	if err := r.Type.Validate(); err != nil {
		return err
	}
	return r.Recurrence.Validate()
}
