package wizard

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"fundwizard/pkg/draft"
)

// Step is one screen of a wizard.
type Step string

const (
	StepSelectFund    Step = "select-fund"
	StepAmount        Step = "amount"
	StepPaymentMethod Step = "payment-method"
	StepReason        Step = "reason"
	StepPlan          Step = "plan"
	StepDetails       Step = "details"
	StepConfirm       Step = "confirm"
)

// Local validation limits.
const (
	MinReasonLength   = 10
	MinFundNameLength = 3
)

// PaymentMethods accepted for contributions.
var PaymentMethods = []string{"pix", "boleto", "card"}

var flows = map[draft.Kind][]Step{
	draft.KindContribution:   {StepSelectFund, StepAmount, StepPaymentMethod, StepConfirm},
	draft.KindCapitalRequest: {StepSelectFund, StepAmount, StepReason, StepPlan, StepConfirm},
	draft.KindFundCreation:   {StepDetails, StepAmount, StepConfirm},
}

// optional steps may be skipped; when filled in they must still be valid.
var optional = map[Step]bool{
	StepPlan: true,
}

// ErrIncomplete is wrapped by every CheckStep failure.
var ErrIncomplete = errors.New("wizard: step incomplete")

// Steps returns the ordered screens for kind.
func Steps(kind draft.Kind) []Step {
	return append([]Step(nil), flows[kind]...)
}

// HasStep reports whether step is part of kind's flow.
func HasStep(kind draft.Kind, step Step) bool {
	for _, s := range flows[kind] {
		if s == step {
			return true
		}
	}
	return false
}

// First returns the entry screen for kind.
func First(kind draft.Kind) Step {
	return flows[kind][0]
}

// RetryStep is where a failed submission sends the user back to: the first
// screen that takes input the user is likely to correct.
func RetryStep(kind draft.Kind) Step {
	if kind == draft.KindFundCreation {
		return StepDetails
	}
	return StepAmount
}

// Path is the navigator path for a step.
func Path(kind draft.Kind, step Step) string {
	return "/" + string(kind) + "/" + string(step)
}

// Next returns the screen after step, or false at the end of the flow.
func Next(kind draft.Kind, step Step) (Step, bool) {
	steps := flows[kind]
	for i, s := range steps {
		if s == step && i+1 < len(steps) {
			return steps[i+1], true
		}
	}
	return "", false
}

// CheckStep runs the validation that gates leaving step. A nil error means
// the screen's continue action is enabled.
func CheckStep(kind draft.Kind, step Step, d draft.Draft) error {
	switch step {
	case StepSelectFund:
		if strings.TrimSpace(d.FundID) == "" {
			return fmt.Errorf("%w: choose a fund", ErrIncomplete)
		}

	case StepAmount:
		if !d.HasAmount() {
			return fmt.Errorf("%w: amount must be greater than zero", ErrIncomplete)
		}

	case StepPaymentMethod:
		if !validPaymentMethod(d.PaymentMethod) {
			return fmt.Errorf("%w: payment method must be one of %s", ErrIncomplete, strings.Join(PaymentMethods, ", "))
		}

	case StepReason:
		if utf8.RuneCountInString(strings.TrimSpace(d.Reason)) < MinReasonLength {
			return fmt.Errorf("%w: reason needs at least %d characters", ErrIncomplete, MinReasonLength)
		}

	case StepPlan:
		if d.Plan == nil {
			return fmt.Errorf("%w: no plan configured", ErrIncomplete)
		}
		if !d.HasAmount() {
			return fmt.Errorf("%w: set the amount before the plan", ErrIncomplete)
		}
		if err := d.Plan.Validate(d.Amount.Decimal); err != nil {
			return fmt.Errorf("%w: %v", ErrIncomplete, err)
		}

	case StepDetails:
		if d.Fund == nil || utf8.RuneCountInString(strings.TrimSpace(d.Fund.Name)) < MinFundNameLength {
			return fmt.Errorf("%w: fund name needs at least %d characters", ErrIncomplete, MinFundNameLength)
		}
		if d.Fund.ContributionRate.IsNegative() || d.Fund.RetributionRate.IsNegative() {
			return fmt.Errorf("%w: rates cannot be negative", ErrIncomplete)
		}

	case StepConfirm:
		if _, incomplete := FirstIncomplete(kind, d); incomplete {
			return fmt.Errorf("%w: earlier steps are incomplete", ErrIncomplete)
		}

	default:
		return fmt.Errorf("wizard: unknown step %q", step)
	}

	return nil
}

// FirstIncomplete returns the earliest step of kind that d does not satisfy.
// Optional steps are only reported when filled in with invalid data.
func FirstIncomplete(kind draft.Kind, d draft.Draft) (Step, bool) {
	for _, step := range flows[kind] {
		if step == StepConfirm {
			continue
		}
		if optional[step] && !present(step, d) {
			continue
		}
		if CheckStep(kind, step, d) != nil {
			return step, true
		}
	}
	return "", false
}

func present(step Step, d draft.Draft) bool {
	switch step {
	case StepPlan:
		return d.Plan != nil
	default:
		return true
	}
}

func validPaymentMethod(m string) bool {
	for _, pm := range PaymentMethods {
		if m == pm {
			return true
		}
	}
	return false
}
