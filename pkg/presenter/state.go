// Package presenter drives the confirmation screen of a wizard through
// processing to a terminal concluded or failed state.
package presenter

import (
	"fmt"
	"strings"

	"fundwizard/pkg/draft"
	"fundwizard/pkg/executor"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// State is one of Processing, Concluded or Failed.
type State interface {
	state()
}

// Processing is entered on mount and held while the submission is in
// flight.
type Processing struct{}

// Concluded is terminal success.
type Concluded struct {
	Result executor.Result
}

// Failed is terminal failure. Retrying leaves the screen for an input step;
// it never returns to Processing.
type Failed struct {
	Message string
	Err     error
}

func (Processing) state() {}
func (Concluded) state()  {}
func (Failed) state()     {}

// Name returns the state's wire name.
func Name(s State) string {
	switch s.(type) {
	case Processing:
		return "processing"
	case Concluded:
		return "concluded"
	case Failed:
		return "failed"
	}
	panic(fmt.Sprintf("presenter: unhandled state %T", s))
}

// Terminal reports whether s is Concluded or Failed.
func Terminal(s State) bool {
	switch s.(type) {
	case Processing:
		return false
	case Concluded, Failed:
		return true
	}
	panic(fmt.Sprintf("presenter: unhandled state %T", s))
}

// Icon identifies the status artwork.
type Icon string

const (
	IconProcessing Icon = "processing"
	IconSuccess    Icon = "success"
	IconError      Icon = "error"
)

// View is everything the confirmation screen shows for a state.
type View struct {
	State      string `json:"state"`
	Icon       Icon   `json:"icon"`
	Headline   string `json:"headline"`
	Supporting string `json:"supporting"`

	CanViewReceipt bool `json:"canViewReceipt"`
	CanRetry       bool `json:"canRetry"`
	CanGoHome      bool `json:"canGoHome"`

	ReceiptID string `json:"receiptId,omitempty"`
	Reference string `json:"reference,omitempty"`
}

type copyText struct {
	processing string
	concluded  string
	failed     string
}

var headlines = map[draft.Kind]copyText{
	draft.KindContribution: {
		processing: "Processando sua contribuição",
		concluded:  "Contribuição concluída",
		failed:     "Não foi possível concluir sua contribuição",
	},
	draft.KindCapitalRequest: {
		processing: "Enviando sua solicitação",
		concluded:  "Solicitação enviada",
		failed:     "Não foi possível enviar sua solicitação",
	},
	draft.KindFundCreation: {
		processing: "Criando seu fundo",
		concluded:  "Fundo criado",
		failed:     "Não foi possível criar seu fundo",
	},
}

// Render returns the fixed presentation contract for s.
func Render(kind draft.Kind, s State) View {
	text := headlines[kind]

	switch st := s.(type) {
	case Processing:
		return View{
			State:      Name(st),
			Icon:       IconProcessing,
			Headline:   text.processing,
			Supporting: "Aguarde enquanto confirmamos a operação.",
			CanGoHome:  true,
		}

	case Concluded:
		return View{
			State:          Name(st),
			Icon:           IconSuccess,
			Headline:       text.concluded,
			Supporting:     concludedText(st.Result),
			CanViewReceipt: true,
			CanGoHome:      true,
			ReceiptID:      st.Result.ID,
			Reference:      st.Result.Reference,
		}

	case Failed:
		msg := st.Message
		if strings.TrimSpace(msg) == "" {
			msg = executor.GenericFailureMessage
		}
		return View{
			State:      Name(st),
			Icon:       IconError,
			Headline:   text.failed,
			Supporting: msg,
			CanRetry:   true,
			CanGoHome:  true,
		}
	}
	panic(fmt.Sprintf("presenter: unhandled state %T", s))
}

func concludedText(r executor.Result) string {
	var b strings.Builder
	b.WriteString(FormatAmount(r.Draft.Currency, r.Amount))
	if name := r.Draft.FundName; name != "" {
		b.WriteString(" · ")
		b.WriteString(name)
	} else if r.Kind == draft.KindFundCreation && r.Draft.Fund != nil {
		b.WriteString(" · ")
		b.WriteString(r.Draft.Fund.Name)
	}
	if r.Reference != "" {
		b.WriteString(" · ref. ")
		b.WriteString(r.Reference)
	}
	return b.String()
}

// FormatAmount renders a money amount the Brazilian way, e.g. "R$ 1.250,00".
func FormatAmount(currency string, amount decimal.Decimal) string {
	symbol := currency
	switch currency {
	case "", draft.DefaultCurrency:
		symbol = "R$"
	}
	return symbol + " " + humanize.FormatFloat("#.###,##", amount.Round(2).InexactFloat64())
}
