package draft

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the transaction a wizard builds. One draft of each kind may exist
// per session.
type Kind string

const (
	KindContribution   Kind = "contribution"
	KindFundCreation   Kind = "fund-creation"
	KindCapitalRequest Kind = "capital-request"
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{KindContribution, KindFundCreation, KindCapitalRequest}

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("draft: unknown kind %q", s)
}

// DefaultCurrency is stamped on every new draft.
const DefaultCurrency = "BRL"

// Draft is a partially filled transaction. Every field is optional until
// submission.
type Draft struct {
	Kind Kind `json:"kind"`

	FundID   string `json:"fundId,omitempty"`
	FundName string `json:"fundName,omitempty"`
	FundIcon string `json:"fundIcon,omitempty"`

	Amount   decimal.NullDecimal `json:"amount"`
	Currency string              `json:"currency,omitempty"`

	// Reason is the capital-request motive or the contribution description.
	Reason        string `json:"reason,omitempty"`
	PaymentMethod string `json:"paymentMethod,omitempty"`

	Plan *Plan        `json:"plan,omitempty"`
	Fund *FundProfile `json:"fund,omitempty"`

	// IdempotencyToken identifies one logical submission. It is minted on the
	// first submit and reused by every retry until the draft is cleared.
	IdempotencyToken string `json:"idempotencyToken,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// HasAmount reports whether a strictly positive amount is set.
func (d Draft) HasAmount() bool {
	return d.Amount.Valid && d.Amount.Decimal.IsPositive()
}

// FundProfile holds the fields of a fund being created.
type FundProfile struct {
	Name      string `json:"name"`
	Objective string `json:"objective,omitempty"`

	ImageType  string `json:"imageType,omitempty"`
	ImageValue string `json:"imageValue,omitempty"`

	ContributionRate decimal.Decimal `json:"contributionRate"`
	RetributionRate  decimal.Decimal `json:"retributionRate"`

	IsOpenForNewMembers           bool `json:"isOpenForNewMembers"`
	RequiresApprovalForNewMembers bool `json:"requiresApprovalForNewMembers"`
}

// Patch is a partial update. Nil fields are left untouched; Plan and Fund
// replace the whole sub-record.
type Patch struct {
	FundID        *string          `json:"fundId,omitempty"`
	FundName      *string          `json:"fundName,omitempty"`
	FundIcon      *string          `json:"fundIcon,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	Currency      *string          `json:"currency,omitempty"`
	Reason        *string          `json:"reason,omitempty"`
	PaymentMethod *string          `json:"paymentMethod,omitempty"`
	Plan          *Plan            `json:"plan,omitempty"`
	Fund          *FundProfile     `json:"fund,omitempty"`
}

// Empty reports whether p changes nothing.
func (p Patch) Empty() bool {
	return p.FundID == nil && p.FundName == nil && p.FundIcon == nil &&
		p.Amount == nil && p.Currency == nil && p.Reason == nil &&
		p.PaymentMethod == nil && p.Plan == nil && p.Fund == nil
}

// Apply returns d with every field present in p overwritten.
func (p Patch) Apply(d Draft) Draft {
	if p.FundID != nil {
		d.FundID = *p.FundID
	}
	if p.FundName != nil {
		d.FundName = *p.FundName
	}
	if p.FundIcon != nil {
		d.FundIcon = *p.FundIcon
	}
	if p.Amount != nil {
		d.Amount = decimal.NewNullDecimal(*p.Amount)
	}
	if p.Currency != nil {
		d.Currency = *p.Currency
	}
	if p.Reason != nil {
		d.Reason = *p.Reason
	}
	if p.PaymentMethod != nil {
		d.PaymentMethod = *p.PaymentMethod
	}
	if p.Plan != nil {
		plan := p.Plan.clone()
		d.Plan = &plan
	}
	if p.Fund != nil {
		fund := *p.Fund
		d.Fund = &fund
	}
	return d
}
