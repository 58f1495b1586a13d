package draft

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var planStart = time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)

func TestBuildAutomaticSchedule_RemainderOnLast(t *testing.T) {
	total := decimal.RequireFromString("100")

	schedule, err := BuildAutomaticSchedule(total, 3, planStart)
	require.NoError(t, err)
	require.Len(t, schedule, 3)

	assert.Equal(t, "33.33", schedule[0].Amount.StringFixed(2))
	assert.Equal(t, "33.33", schedule[1].Amount.StringFixed(2))
	assert.Equal(t, "33.34", schedule[2].Amount.StringFixed(2))

	sum := decimal.Zero
	for _, in := range schedule {
		sum = sum.Add(in.Amount)
	}
	assert.True(t, sum.Equal(total))

	assert.True(t, schedule[0].DueDate.Equal(planStart))
	assert.Equal(t, planStart.AddDate(0, 2, 0), schedule[2].DueDate)
}

func TestBuildAutomaticSchedule_Errors(t *testing.T) {
	tests := []struct {
		name  string
		total string
		count int
		start time.Time
	}{
		{"zero total", "0", 3, planStart},
		{"no installments", "100", 0, planStart},
		{"too many installments", "100", MaxInstallments + 1, planStart},
		{"missing start", "100", 3, time.Time{}},
		{"below one cent each", "0.02", 3, planStart},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildAutomaticSchedule(decimal.RequireFromString(tt.total), tt.count, tt.start)
			assert.True(t, errors.Is(err, ErrInvalidPlan), "got %v", err)
		})
	}
}

func TestPlan_Validate(t *testing.T) {
	total := decimal.RequireFromString("300")
	inst := func(s string) Installment {
		return Installment{Amount: decimal.RequireFromString(s), DueDate: planStart}
	}

	tests := []struct {
		name    string
		plan    Plan
		wantErr bool
	}{
		{"automatic without schedule", Plan{Type: PlanAutomatic, Installments: 3, StartDate: planStart}, false},
		{"custom matching sum", Plan{Type: PlanCustom, Installments: 2, StartDate: planStart,
			Schedule: []Installment{inst("100"), inst("200")}}, false},
		{"custom short sum", Plan{Type: PlanCustom, Installments: 2, StartDate: planStart,
			Schedule: []Installment{inst("100"), inst("150")}}, true},
		{"custom count mismatch", Plan{Type: PlanCustom, Installments: 3, StartDate: planStart,
			Schedule: []Installment{inst("100"), inst("200")}}, true},
		{"custom non-positive installment", Plan{Type: PlanCustom, Installments: 2, StartDate: planStart,
			Schedule: []Installment{inst("300"), inst("0")}}, true},
		{"unknown type", Plan{Type: "weekly", Installments: 1, StartDate: planStart}, true},
		{"missing start", Plan{Type: PlanAutomatic, Installments: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate(total)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPlan)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPlan_WithSchedule(t *testing.T) {
	total := decimal.RequireFromString("90")

	p, err := Plan{Type: PlanAutomatic, Installments: 3, StartDate: planStart}.WithSchedule(total)
	require.NoError(t, err)
	require.Len(t, p.Schedule, 3)
	assert.NoError(t, p.Validate(total))

	custom := Plan{Type: PlanCustom, Installments: 1, StartDate: planStart,
		Schedule: []Installment{{Amount: total, DueDate: planStart}}}
	same, err := custom.WithSchedule(total)
	require.NoError(t, err)
	assert.Equal(t, custom, same)
}
