package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fundwizard/pkg/draft"

	"github.com/google/uuid"
)

// Receipt is what the fund service returns for a created transaction.
type Receipt struct {
	// Reference is the server-assigned transaction reference.
	Reference    string
	RemoteID     string
	RemoteStatus string
	// FundID is the fund the transaction touched. For fund creation it is
	// the new fund.
	FundID    string
	CreatedAt time.Time
}

// Strategy performs the single remote call that finalizes a draft.
type Strategy interface {
	Create(ctx context.Context, d draft.Draft, token string) (Receipt, error)
}

// ErrDraftUnusable is returned when a draft lacks what a strategy needs to
// build its request.
var ErrDraftUnusable = errors.New("remote: draft cannot be submitted")

// ContributionStrategy processes contributions.
type ContributionStrategy struct {
	Client *Client
}

func (s ContributionStrategy) Create(ctx context.Context, d draft.Draft, token string) (Receipt, error) {
	if !d.Amount.Valid {
		return Receipt{}, fmt.Errorf("%w: missing amount", ErrDraftUnusable)
	}
	c, err := s.Client.ProcessContribution(ctx, token, ContributionRequest{
		FundID:        d.FundID,
		Amount:        Number(d.Amount.Decimal),
		Description:   d.Reason,
		PaymentMethod: d.PaymentMethod,
	})
	if err != nil {
		return Receipt{}, err
	}

	ref := c.TransactionID
	if ref == "" {
		ref = c.ID
	}
	return Receipt{
		Reference:    ref,
		RemoteID:     c.ID,
		RemoteStatus: c.Status,
		FundID:       d.FundID,
		CreatedAt:    parseTime(c.CreatedAt),
	}, nil
}

// FundCreationStrategy creates funds.
type FundCreationStrategy struct {
	Client *Client
}

func (s FundCreationStrategy) Create(ctx context.Context, d draft.Draft, token string) (Receipt, error) {
	if d.Fund == nil {
		return Receipt{}, fmt.Errorf("%w: missing fund details", ErrDraftUnusable)
	}
	if !d.Amount.Valid {
		return Receipt{}, fmt.Errorf("%w: missing objective", ErrDraftUnusable)
	}

	p := d.Fund
	fund, err := s.Client.CreateFund(ctx, token, CreateFundRequest{
		Name:                          p.Name,
		Objective:                     p.Objective,
		TargetAmount:                  Number(d.Amount.Decimal),
		ImageType:                     p.ImageType,
		ImageValue:                    p.ImageValue,
		ContributionRate:              Number(p.ContributionRate),
		RetributionRate:               Number(p.RetributionRate),
		IsOpenForNewMembers:           p.IsOpenForNewMembers,
		RequiresApprovalForNewMembers: p.RequiresApprovalForNewMembers,
	})
	if err != nil {
		return Receipt{}, err
	}

	return Receipt{
		Reference:    fund.ID,
		RemoteID:     fund.ID,
		RemoteStatus: fund.Status,
		FundID:       fund.ID,
	}, nil
}

// CapitalRequestStrategy files capital requests.
type CapitalRequestStrategy struct {
	Client *Client
}

func (s CapitalRequestStrategy) Create(ctx context.Context, d draft.Draft, token string) (Receipt, error) {
	if !d.Amount.Valid {
		return Receipt{}, fmt.Errorf("%w: missing amount", ErrDraftUnusable)
	}

	body := CapitalRequestBody{
		Amount: Number(d.Amount.Decimal),
		Reason: d.Reason,
	}
	if d.Plan != nil {
		plan, err := d.Plan.WithSchedule(d.Amount.Decimal)
		if err != nil {
			return Receipt{}, fmt.Errorf("%w: %v", ErrDraftUnusable, err)
		}
		body.Plan = planPayload(plan)
	}

	r, err := s.Client.CreateCapitalRequest(ctx, token, d.FundID, body)
	if err != nil {
		return Receipt{}, err
	}

	ref := r.Reference
	if ref == "" {
		ref = r.ID
	}
	return Receipt{
		Reference:    ref,
		RemoteID:     r.ID,
		RemoteStatus: r.Status,
		FundID:       d.FundID,
		CreatedAt:    parseTime(r.CreatedAt),
	}, nil
}

func planPayload(p draft.Plan) *PlanPayload {
	out := &PlanPayload{
		Type:         string(p.Type),
		StartDate:    p.StartDate.Format(time.DateOnly),
		Installments: p.Installments,
	}
	for _, in := range p.Schedule {
		out.Schedule = append(out.Schedule, InstallmentPayload{
			Amount:  Number(in.Amount),
			DueDate: in.DueDate.Format(time.DateOnly),
		})
	}
	return out
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Simulated stands in for the fund service. It waits Delay, then fails with
// Err when set or succeeds with a fresh reference.
type Simulated struct {
	Delay  time.Duration
	Err    error
	Status string
}

func (s Simulated) Create(ctx context.Context, d draft.Draft, token string) (Receipt, error) {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		}
	}
	if s.Err != nil {
		return Receipt{}, s.Err
	}

	status := s.Status
	if status == "" {
		status = "completed"
	}
	id := uuid.NewString()
	fundID := d.FundID
	if d.Kind == draft.KindFundCreation {
		fundID = id
	}
	return Receipt{
		Reference:    "SIM-" + id,
		RemoteID:     id,
		RemoteStatus: status,
		FundID:       fundID,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// Strategies picks the strategy for each draft kind.
type Strategies map[draft.Kind]Strategy

// NewStrategies wires the HTTP strategies over client, replacing the kinds
// listed in simulate with Simulated strategies that wait delay.
func NewStrategies(client *Client, simulate []draft.Kind, delay time.Duration) Strategies {
	s := Strategies{
		draft.KindContribution:   ContributionStrategy{Client: client},
		draft.KindFundCreation:   FundCreationStrategy{Client: client},
		draft.KindCapitalRequest: CapitalRequestStrategy{Client: client},
	}
	for _, kind := range simulate {
		s[kind] = Simulated{Delay: delay}
	}
	return s
}

// For returns the strategy for kind.
func (s Strategies) For(kind draft.Kind) (Strategy, error) {
	st, ok := s[kind]
	if !ok || st == nil {
		return nil, fmt.Errorf("remote: no strategy for %q", kind)
	}
	return st, nil
}
