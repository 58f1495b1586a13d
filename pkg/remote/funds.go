package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"
)

// Fund is a fund record as served by the fund service. Unknown fields are
// ignored.
type Fund struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Objective  decimal.NullDecimal `json:"objective"`
	Balance    decimal.NullDecimal `json:"balance"`
	ImageType  string              `json:"imageType,omitempty"`
	ImageValue string              `json:"imageValue,omitempty"`
	AccountID  string              `json:"accountId,omitempty"`
	Status     string              `json:"status,omitempty"`
}

// ContributionRequest is the body of POST /api/contributions/process.
type ContributionRequest struct {
	FundID        string      `json:"fundId"`
	Amount        json.Number `json:"amount"`
	Description   string      `json:"description,omitempty"`
	PaymentMethod string      `json:"paymentMethod"`
}

// Contribution is the record created by a processed contribution.
type Contribution struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	CreatedAt     string `json:"created_at"`
	TransactionID string `json:"transaction_id"`
}

type contributionResponse struct {
	Success      bool          `json:"success"`
	Contribution *Contribution `json:"contribution"`
	Message      string        `json:"message"`
}

// CreateFundRequest is the body of POST /api/funds. Objective is free text;
// TargetAmount is the amount the fund aims to raise.
type CreateFundRequest struct {
	Name                          string      `json:"name"`
	Objective                     string      `json:"objective"`
	TargetAmount                  json.Number `json:"targetAmount,omitempty"`
	ImageType                     string      `json:"imageType,omitempty"`
	ImageValue                    string      `json:"fundImageValue,omitempty"`
	ContributionRate              json.Number `json:"contributionRate"`
	RetributionRate               json.Number `json:"retributionRate"`
	IsOpenForNewMembers           bool        `json:"isOpenForNewMembers"`
	RequiresApprovalForNewMembers bool        `json:"requiresApprovalForNewMembers"`
}

// ObjectiveUpdate sets a fund's objective. Amount is only sent for custom
// objectives.
type ObjectiveUpdate struct {
	Objective    string       `json:"objective"`
	Amount       *json.Number `json:"amount,omitempty"`
	ChangeReason string       `json:"changeReason"`
}

// FundDataUpdate is the body of PUT /api/funds/{id}/data.
type FundDataUpdate struct {
	Name         string `json:"name"`
	ImageType    string `json:"imageType"`
	ImageValue   string `json:"imageValue"`
	ChangeReason string `json:"changeReason"`
}

// CapitalRequestBody is the body of POST /api/funds/{id}/capital-requests.
type CapitalRequestBody struct {
	Amount json.Number  `json:"amount"`
	Reason string       `json:"reason"`
	Plan   *PlanPayload `json:"plan,omitempty"`
}

// PlanPayload is a repayment plan on the wire.
type PlanPayload struct {
	Type         string               `json:"type"`
	StartDate    string               `json:"startDate"`
	Installments int                  `json:"installments"`
	Schedule     []InstallmentPayload `json:"schedule,omitempty"`
}

// InstallmentPayload is one scheduled payment on the wire.
type InstallmentPayload struct {
	Amount  json.Number `json:"amount"`
	DueDate string      `json:"dueDate"`
}

// CapitalRequest is the record created for a capital request.
type CapitalRequest struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	Reference string `json:"reference"`
}

type capitalRequestResponse struct {
	Success bool            `json:"success"`
	Request *CapitalRequest `json:"request"`
	Message string          `json:"message"`
}

// Number renders d as a JSON number.
func Number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func fundPath(id string, suffix string) string {
	return "/api/funds/" + url.PathEscape(id) + suffix
}

// ProcessContribution creates a contribution. token is sent as the
// idempotency key.
func (c *Client) ProcessContribution(ctx context.Context, token string, req ContributionRequest) (Contribution, error) {
	var resp contributionResponse
	err := c.do(ctx, call{
		op:          "process_contribution",
		method:      http.MethodPost,
		path:        "/api/contributions/process",
		idempotency: token,
		in:          req,
		out:         &resp,
	})
	if err != nil {
		return Contribution{}, err
	}
	if !resp.Success {
		return Contribution{}, rejected(http.StatusOK, resp.Message)
	}
	if resp.Contribution == nil {
		return Contribution{}, malformed("response is missing the contribution")
	}
	return *resp.Contribution, nil
}

// CreateFund creates a fund and returns the stored record.
func (c *Client) CreateFund(ctx context.Context, token string, req CreateFundRequest) (Fund, error) {
	var fund Fund
	err := c.do(ctx, call{
		op:          "create_fund",
		method:      http.MethodPost,
		path:        "/api/funds",
		idempotency: token,
		in:          req,
		out:         &fund,
	})
	if err != nil {
		return Fund{}, err
	}
	if fund.ID == "" {
		return Fund{}, malformed("created fund has no id")
	}
	return fund, nil
}

// SetStandardObjective switches fund id to a predefined objective.
func (c *Client) SetStandardObjective(ctx context.Context, token, id, objective, changeReason string) error {
	return c.do(ctx, call{
		op:          "set_standard_objective",
		method:      http.MethodPost,
		path:        fundPath(id, "/objective/standard"),
		idempotency: token,
		in:          ObjectiveUpdate{Objective: objective, ChangeReason: changeReason},
	})
}

// SetCustomObjective gives fund id a free-form objective with a target amount.
func (c *Client) SetCustomObjective(ctx context.Context, token, id, objective string, amount decimal.Decimal, changeReason string) error {
	n := Number(amount)
	return c.do(ctx, call{
		op:          "set_custom_objective",
		method:      http.MethodPost,
		path:        fundPath(id, "/objective/custom"),
		idempotency: token,
		in:          ObjectiveUpdate{Objective: objective, Amount: &n, ChangeReason: changeReason},
	})
}

// UpdateFundData renames fund id or changes its image.
func (c *Client) UpdateFundData(ctx context.Context, token, id string, update FundDataUpdate) error {
	return c.do(ctx, call{
		op:          "update_fund_data",
		method:      http.MethodPut,
		path:        fundPath(id, "/data"),
		idempotency: token,
		in:          update,
	})
}

// ListFunds returns the funds visible to accountID, or every fund when
// accountID is empty. Both a bare array and a {"funds": [...]} envelope are
// accepted.
func (c *Client) ListFunds(ctx context.Context, accountID string) ([]Fund, error) {
	path := "/api/funds"
	if accountID != "" {
		path += "?accountId=" + url.QueryEscape(accountID)
	}

	var raw json.RawMessage
	err := c.do(ctx, call{
		op:     "list_funds",
		method: http.MethodGet,
		path:   path,
		out:    &raw,
	})
	if err != nil {
		return nil, err
	}
	return decodeFundList(raw)
}

func decodeFundList(raw json.RawMessage) ([]Fund, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []Fund{}, nil
	}

	var funds []Fund
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &funds); err != nil {
			return nil, fmt.Errorf("remote list_funds: decode: %w", err)
		}
		return funds, nil
	}

	var envelope struct {
		Funds []Fund `json:"funds"`
		Data  []Fund `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("remote list_funds: decode: %w", err)
	}
	switch {
	case envelope.Funds != nil:
		return envelope.Funds, nil
	case envelope.Data != nil:
		return envelope.Data, nil
	}
	return nil, errors.New("remote list_funds: unrecognised response shape")
}

// GetFund returns fund id.
func (c *Client) GetFund(ctx context.Context, id string) (Fund, error) {
	var fund Fund
	err := c.do(ctx, call{
		op:     "get_fund",
		method: http.MethodGet,
		path:   fundPath(id, ""),
		out:    &fund,
	})
	return fund, err
}

// HistoryEntry is one movement on a fund.
type HistoryEntry struct {
	ID          string              `json:"id"`
	Type        string              `json:"type"`
	Amount      decimal.NullDecimal `json:"amount"`
	Description string              `json:"description,omitempty"`
	CreatedAt   string              `json:"created_at"`
}

// FundHistory returns the movements of fund id, newest first as served.
func (c *Client) FundHistory(ctx context.Context, id string) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	err := c.do(ctx, call{
		op:     "fund_history",
		method: http.MethodGet,
		path:   fundPath(id, "/history"),
		out:    &entries,
	})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	return entries, nil
}

// CreateCapitalRequest asks fund id for capital.
func (c *Client) CreateCapitalRequest(ctx context.Context, token, fundID string, body CapitalRequestBody) (CapitalRequest, error) {
	var resp capitalRequestResponse
	err := c.do(ctx, call{
		op:          "create_capital_request",
		method:      http.MethodPost,
		path:        fundPath(fundID, "/capital-requests"),
		idempotency: token,
		in:          body,
		out:         &resp,
	})
	if err != nil {
		return CapitalRequest{}, err
	}
	if !resp.Success {
		return CapitalRequest{}, rejected(http.StatusOK, resp.Message)
	}
	if resp.Request == nil {
		return CapitalRequest{}, malformed("response is missing the request")
	}
	return *resp.Request, nil
}
