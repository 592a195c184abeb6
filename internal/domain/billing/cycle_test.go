package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/renewd/renewd/internal/types"
)

func TestPeriodDays(t *testing.T) {
	tests := []struct {
		name       string
		recurrence types.PlanRecurrence
		want       int
		wantErr    bool
	}{
		{
			name:       "monthly is 30 days",
			recurrence: types.PlanRecurrenceMonthly,
			want:       30,
		},
		{
			name:       "quarterly is 90 days",
			recurrence: types.PlanRecurrenceQuarterly,
			want:       90,
		},
		{
			name:       "yearly is 365 days",
			recurrence: types.PlanRecurrenceYearly,
			want:       365,
		},
		{
			name:       "unknown recurrence fails",
			recurrence: types.PlanRecurrence("weekly"),
			wantErr:    true,
		},
		{
			name:       "empty recurrence fails",
			recurrence: types.PlanRecurrence(""),
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PeriodDays(tt.recurrence)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextPeriod(t *testing.T) {
	anchor := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		recurrence types.PlanRecurrence
		wantEnd    time.Time
	}{
		{
			name:       "monthly period",
			recurrence: types.PlanRecurrenceMonthly,
			wantEnd:    time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC),
		},
		{
			name:       "quarterly period",
			recurrence: types.PlanRecurrenceQuarterly,
			wantEnd:    time.Date(2025, 4, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name:       "yearly period",
			recurrence: types.PlanRecurrenceYearly,
			wantEnd:    time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := NextPeriod(tt.recurrence, anchor)
			assert.NoError(t, err)
			assert.Equal(t, anchor, start)
			assert.Equal(t, tt.wantEnd, end)
		})
	}

	t.Run("invalid recurrence fails", func(t *testing.T) {
		_, _, err := NextPeriod(types.PlanRecurrence("biweekly"), anchor)
		assert.Error(t, err)
	})

	t.Run("deterministic across calls", func(t *testing.T) {
		start1, end1, err := NextPeriod(types.PlanRecurrenceMonthly, anchor)
		assert.NoError(t, err)
		start2, end2, err := NextPeriod(types.PlanRecurrenceMonthly, anchor)
		assert.NoError(t, err)
		assert.Equal(t, start1, start2)
		assert.Equal(t, end1, end2)
	})
}

func TestTrialEnd(t *testing.T) {
	signup := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), TrialEnd(signup, 14))
	assert.Equal(t, time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC), TrialEnd(signup, 7))
}
