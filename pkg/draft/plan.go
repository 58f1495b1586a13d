package draft

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PlanType selects how a capital request is repaid.
type PlanType string

const (
	PlanAutomatic PlanType = "automatic"
	PlanCustom    PlanType = "custom"
)

// Plan is a repayment schedule for a capital request.
type Plan struct {
	Type         PlanType      `json:"type"`
	StartDate    time.Time     `json:"startDate"`
	Installments int           `json:"installments"`
	Schedule     []Installment `json:"schedule,omitempty"`
}

// Installment is one scheduled payment.
type Installment struct {
	Amount  decimal.Decimal `json:"amount"`
	DueDate time.Time       `json:"dueDate"`
}

// MaxInstallments bounds a plan.
const MaxInstallments = 60

// ErrInvalidPlan is wrapped by every plan validation failure.
var ErrInvalidPlan = errors.New("draft: invalid plan")

func (p Plan) clone() Plan {
	if p.Schedule != nil {
		p.Schedule = append([]Installment(nil), p.Schedule...)
	}
	return p
}

// BuildAutomaticSchedule splits total into count monthly installments
// starting at start. Amounts are truncated to cents and the remainder goes
// on the last installment, so the schedule always sums to total.
func BuildAutomaticSchedule(total decimal.Decimal, count int, start time.Time) ([]Installment, error) {
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: total must be positive", ErrInvalidPlan)
	}
	if count < 1 || count > MaxInstallments {
		return nil, fmt.Errorf("%w: installments must be between 1 and %d", ErrInvalidPlan, MaxInstallments)
	}
	if start.IsZero() {
		return nil, fmt.Errorf("%w: start date required", ErrInvalidPlan)
	}

	each := total.Div(decimal.NewFromInt(int64(count))).Truncate(2)
	if !each.IsPositive() {
		return nil, fmt.Errorf("%w: total too small for %d installments", ErrInvalidPlan, count)
	}

	schedule := make([]Installment, count)
	allocated := decimal.Zero
	for i := 0; i < count; i++ {
		amount := each
		if i == count-1 {
			amount = total.Sub(allocated)
		}
		allocated = allocated.Add(amount)
		schedule[i] = Installment{
			Amount:  amount,
			DueDate: start.AddDate(0, i, 0),
		}
	}
	return schedule, nil
}

// Validate checks the plan against the requested total. A custom schedule
// must have one entry per installment, each positive, summing to total.
func (p Plan) Validate(total decimal.Decimal) error {
	switch p.Type {
	case PlanAutomatic, PlanCustom:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidPlan, p.Type)
	}
	if p.Installments < 1 || p.Installments > MaxInstallments {
		return fmt.Errorf("%w: installments must be between 1 and %d", ErrInvalidPlan, MaxInstallments)
	}
	if p.StartDate.IsZero() {
		return fmt.Errorf("%w: start date required", ErrInvalidPlan)
	}

	if p.Type == PlanAutomatic && len(p.Schedule) == 0 {
		return nil
	}
	if len(p.Schedule) != p.Installments {
		return fmt.Errorf("%w: %d installments declared, %d scheduled", ErrInvalidPlan, p.Installments, len(p.Schedule))
	}

	sum := decimal.Zero
	for i, in := range p.Schedule {
		if !in.Amount.IsPositive() {
			return fmt.Errorf("%w: installment %d must be positive", ErrInvalidPlan, i+1)
		}
		sum = sum.Add(in.Amount)
	}
	if !sum.Equal(total) {
		return fmt.Errorf("%w: installments sum to %s, expected %s", ErrInvalidPlan, sum.StringFixed(2), total.StringFixed(2))
	}
	return nil
}

// WithSchedule returns the plan with its schedule filled in. Custom plans are
// returned unchanged.
func (p Plan) WithSchedule(total decimal.Decimal) (Plan, error) {
	if p.Type != PlanAutomatic {
		return p.clone(), nil
	}
	schedule, err := BuildAutomaticSchedule(total, p.Installments, p.StartDate)
	if err != nil {
		return Plan{}, err
	}
	p.Schedule = schedule
	return p, nil
}
