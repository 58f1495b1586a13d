package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"fundwizard/pkg/draft"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func amountOf(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestContributionStrategy(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok-9", r.Header.Get(IdempotencyHeader))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"contribution": map[string]any{
				"id": "c1", "status": "completed",
				"created_at": "2024-01-01T10:00:00Z", "transaction_id": "t1",
			},
		})
	})

	d := draft.Draft{Kind: draft.KindContribution, FundID: "f1", Amount: amountOf("250"), PaymentMethod: "pix"}
	rec, err := ContributionStrategy{Client: c}.Create(context.Background(), d, "tok-9")
	require.NoError(t, err)

	assert.Equal(t, "t1", rec.Reference)
	assert.Equal(t, "c1", rec.RemoteID)
	assert.Equal(t, "completed", rec.RemoteStatus)
	assert.Equal(t, "f1", rec.FundID)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), rec.CreatedAt.UTC())
}

func TestFundCreationStrategy_UsesNewFundID(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/funds", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusCreated, map[string]any{"id": "new-fund", "name": "Viagem"})
	})

	d := draft.Draft{
		Kind:   draft.KindFundCreation,
		Amount: amountOf("5000"),
		Fund: &draft.FundProfile{
			Name:                "Viagem",
			Objective:           "Viagem de fim de ano",
			ImageValue:          "✈️",
			ContributionRate:    decimal.RequireFromString("1.5"),
			IsOpenForNewMembers: true,
		},
	}
	rec, err := FundCreationStrategy{Client: c}.Create(context.Background(), d, "tok")
	require.NoError(t, err)

	assert.Equal(t, "new-fund", rec.FundID)
	assert.Equal(t, "Viagem de fim de ano", body["objective"])
	assert.Equal(t, float64(5000), body["targetAmount"])
	assert.NotContains(t, body, "description")
	assert.Equal(t, 1.5, body["contributionRate"])
	assert.Equal(t, "✈️", body["fundImageValue"])
	assert.Equal(t, true, body["isOpenForNewMembers"])
}

func TestFundCreationStrategy_NeedsProfile(t *testing.T) {
	_, err := FundCreationStrategy{}.Create(context.Background(), draft.Draft{Amount: amountOf("1")}, "tok")
	assert.ErrorIs(t, err, ErrDraftUnusable)
}

func TestCapitalRequestStrategy_SendsSchedule(t *testing.T) {
	var body struct {
		Amount float64     `json:"amount"`
		Reason string      `json:"reason"`
		Plan   PlanPayload `json:"plan"`
	}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/funds/f1/capital-requests", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"request": map[string]any{"id": "r1", "status": "pending", "reference": "REQ-1"},
		})
	})

	d := draft.Draft{
		Kind:   draft.KindCapitalRequest,
		FundID: "f1",
		Amount: amountOf("100"),
		Reason: "reforma da cozinha",
		Plan: &draft.Plan{
			Type:         draft.PlanAutomatic,
			Installments: 3,
			StartDate:    time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	rec, err := CapitalRequestStrategy{Client: c}.Create(context.Background(), d, "tok")
	require.NoError(t, err)

	assert.Equal(t, "REQ-1", rec.Reference)
	assert.Equal(t, "pending", rec.RemoteStatus)
	assert.Equal(t, float64(100), body.Amount)
	require.Len(t, body.Plan.Schedule, 3)
	assert.Equal(t, "2024-02-01", body.Plan.StartDate)
	assert.Equal(t, json.Number("33.34"), body.Plan.Schedule[2].Amount)
	assert.Equal(t, "2024-04-01", body.Plan.Schedule[2].DueDate)
}

func TestSimulated(t *testing.T) {
	ctx := context.Background()

	rec, err := Simulated{}.Create(ctx, draft.Draft{Kind: draft.KindContribution, FundID: "f1"}, "tok")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rec.Reference, "SIM-"))
	assert.Equal(t, "f1", rec.FundID)
	assert.Equal(t, "completed", rec.RemoteStatus)

	rec, err = Simulated{}.Create(ctx, draft.Draft{Kind: draft.KindFundCreation}, "tok")
	require.NoError(t, err)
	assert.Equal(t, rec.RemoteID, rec.FundID)

	boom := errors.New("boom")
	_, err = Simulated{Err: boom}.Create(ctx, draft.Draft{}, "tok")
	assert.ErrorIs(t, err, boom)

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	_, err = Simulated{Delay: time.Hour}.Create(short, draft.Draft{}, "tok")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStrategies(t *testing.T) {
	s := NewStrategies(nil, []draft.Kind{draft.KindCapitalRequest}, time.Second)

	st, err := s.For(draft.KindCapitalRequest)
	require.NoError(t, err)
	assert.IsType(t, Simulated{}, st)

	st, err = s.For(draft.KindContribution)
	require.NoError(t, err)
	assert.IsType(t, ContributionStrategy{}, st)

	_, err = s.For(draft.Kind("loan"))
	assert.Error(t, err)
}
