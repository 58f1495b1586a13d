package funds

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fundwizard/pkg/invalidate"
	"fundwizard/pkg/logging"
	"fundwizard/pkg/remote"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrMissingFund   = errors.New("funds: fund id is required")
	ErrMissingReason = errors.New("funds: change reason is required")
	ErrInvalidChange = errors.New("funds: invalid change")
)

// EditSource is the fund service's edit surface. *remote.Client satisfies
// it.
type EditSource interface {
	SetStandardObjective(ctx context.Context, token, id, objective, changeReason string) error
	SetCustomObjective(ctx context.Context, token, id, objective string, amount decimal.Decimal, changeReason string) error
	UpdateFundData(ctx context.Context, token, id string, update remote.FundDataUpdate) error
}

// Invalidator marks views stale. *invalidate.Invalidator satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context, scopes ...invalidate.Scope)
}

// ObjectiveChange switches a fund's objective. A zero Amount selects a
// predefined objective; a positive one sets a custom objective with that
// target.
type ObjectiveChange struct {
	Objective string          `json:"objective"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"changeReason"`
}

// Custom reports whether the change carries its own target amount.
func (c ObjectiveChange) Custom() bool {
	return c.Amount.IsPositive()
}

// DataChange renames a fund or changes its image.
type DataChange struct {
	Name       string `json:"name"`
	ImageType  string `json:"imageType"`
	ImageValue string `json:"imageValue"`
	Reason     string `json:"changeReason"`
}

// Editor applies fund edits and marks the edited fund's views stale.
type Editor struct {
	source EditSource
	inv    Invalidator
	logger *logging.Logger
}

func NewEditor(source EditSource, inv Invalidator, logger *logging.Logger) *Editor {
	return &Editor{
		source: source,
		inv:    inv,
		logger: logging.OrGlobal(logger).Named("funds.editor"),
	}
}

// SetObjective changes the objective of fund id.
func (e *Editor) SetObjective(ctx context.Context, id string, change ObjectiveChange) error {
	if err := checkEdit(id, change.Reason); err != nil {
		return err
	}
	if strings.TrimSpace(change.Objective) == "" {
		return fmt.Errorf("%w: objective is required", ErrInvalidChange)
	}
	if change.Amount.IsNegative() {
		return fmt.Errorf("%w: negative objective amount", ErrInvalidChange)
	}

	token := uuid.NewString()
	var err error
	if change.Custom() {
		err = e.source.SetCustomObjective(ctx, token, id, change.Objective, change.Amount, change.Reason)
	} else {
		err = e.source.SetStandardObjective(ctx, token, id, change.Objective, change.Reason)
	}
	return e.finish(ctx, "set_objective", id, err)
}

// UpdateData changes the name or image of fund id.
func (e *Editor) UpdateData(ctx context.Context, id string, change DataChange) error {
	if err := checkEdit(id, change.Reason); err != nil {
		return err
	}
	if strings.TrimSpace(change.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidChange)
	}

	err := e.source.UpdateFundData(ctx, uuid.NewString(), id, remote.FundDataUpdate{
		Name:         strings.TrimSpace(change.Name),
		ImageType:    change.ImageType,
		ImageValue:   change.ImageValue,
		ChangeReason: change.Reason,
	})
	return e.finish(ctx, "update_data", id, err)
}

func (e *Editor) finish(ctx context.Context, op, id string, err error) error {
	if err != nil {
		e.logger.Warn("fund edit failed", zap.String("op", op), zap.String("fund", id), zap.Error(err))
		return err
	}
	if e.inv != nil {
		e.inv.Invalidate(ctx, invalidate.ListScope(), invalidate.DetailScope(id), invalidate.HistoryScope(id))
	}
	e.logger.Info("fund edited", zap.String("op", op), zap.String("fund", id))
	return nil
}

func checkEdit(id, reason string) error {
	if strings.TrimSpace(id) == "" {
		return ErrMissingFund
	}
	if strings.TrimSpace(reason) == "" {
		return ErrMissingReason
	}
	return nil
}
