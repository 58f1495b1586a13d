package executor

import (
	"time"

	"fundwizard/pkg/draft"
	"fundwizard/pkg/wizard"

	"github.com/shopspring/decimal"
)

// Status of a submission result.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConcluded Status = "concluded"
	StatusFailed    Status = "failed"
)

// Result is created once per successful submission and never changes.
type Result struct {
	ID    string     `json:"id"`
	Token string     `json:"token"`
	Kind  draft.Kind `json:"kind"`

	// FundID is the fund the submission touched; for fund creation, the
	// newly created fund.
	FundID string          `json:"fundId"`
	Amount decimal.Decimal `json:"amount"`
	Draft  draft.Draft     `json:"draft"`

	Status       Status    `json:"status"`
	Reference    string    `json:"reference"`
	RemoteID     string    `json:"remoteId,omitempty"`
	RemoteStatus string    `json:"remoteStatus,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Outcome is what Submit resolves to: exactly one of Redirect, Concluded or
// Failed.
type Outcome interface {
	outcome()
}

// Redirect sends the user back to the earliest step the draft does not
// satisfy. No remote call was made.
type Redirect struct {
	Kind draft.Kind
	Step wizard.Step
}

// Path is the navigator path of the redirect target.
func (r Redirect) Path() string {
	return wizard.Path(r.Kind, r.Step)
}

// Concluded carries the result of a successful submission. Replayed is set
// when the result came from the ledger instead of a new remote call.
type Concluded struct {
	Result   Result
	Replayed bool
}

// Failed carries a message fit to show the user. The draft is left intact.
type Failed struct {
	Message string
	Err     error
}

func (Redirect) outcome()  {}
func (Concluded) outcome() {}
func (Failed) outcome()    {}

// Messages shown on failure.
const (
	GenericFailureMessage = "Não foi possível concluir a operação. Tente novamente."
	TimeoutMessage        = "O serviço demorou demais para responder. Tente novamente."
	UnavailableMessage    = "O serviço está indisponível no momento. Tente novamente em instantes."
)
