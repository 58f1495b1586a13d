package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"fundwizard/pkg/cache"
	"fundwizard/pkg/metrics"
	"fundwizard/pkg/resilience"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", Guard: resilience.DefaultConfig()}, srv.Client(), nil, nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestProcessContribution_Success(t *testing.T) {
	var gotBody map[string]any
	var gotKey string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/contributions/process", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		gotKey = r.Header.Get(IdempotencyHeader)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"contribution": map[string]any{
				"id": "c1", "status": "completed",
				"created_at": "2024-01-01T10:00:00Z", "transaction_id": "t1",
			},
		})
	})

	got, err := c.ProcessContribution(context.Background(), "tok-1", ContributionRequest{
		FundID:        "f1",
		Amount:        Number(decimal.NewFromInt(250)),
		PaymentMethod: "pix",
	})
	require.NoError(t, err)

	assert.Equal(t, "t1", got.TransactionID)
	assert.Equal(t, "c1", got.ID)
	assert.Equal(t, "tok-1", gotKey)
	assert.Equal(t, "f1", gotBody["fundId"])
	assert.Equal(t, float64(250), gotBody["amount"], "amount travels as a JSON number")
	assert.Equal(t, "pix", gotBody["paymentMethod"])
}

func TestProcessContribution_ApplicationFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "Saldo insuficiente"})
	})

	_, err := c.ProcessContribution(context.Background(), "tok", ContributionRequest{FundID: "f1"})
	require.Error(t, err)
	assert.True(t, IsRemoteFailure(err))
	assert.Equal(t, "Saldo insuficiente", Message(err))
}

func TestErrorMessageExtraction(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"message field", http.StatusBadRequest, `{"message":"Valor inválido"}`, "Valor inválido"},
		{"error field", http.StatusConflict, `{"error":"Fundo fechado"}`, "Fundo fechado"},
		{"message preferred", http.StatusBadRequest, `{"error":"x","message":"y"}`, "y"},
		{"non-string error", http.StatusBadRequest, `{"error":{"code":1}}`, ""},
		{"plain text", http.StatusInternalServerError, `oops`, ""},
		{"empty", http.StatusBadGateway, ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := c.GetFund(context.Background(), "f1")
			var re *RemoteError
			require.True(t, errors.As(err, &re), "got %v", err)
			assert.Equal(t, tt.status, re.StatusCode)
			assert.Equal(t, tt.want, re.Message)
			assert.Equal(t, tt.want, Message(err))
			assert.Contains(t, err.Error(), strconv.Itoa(tt.status))
		})
	}
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusBadRequest)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	cfg := Config{BaseURL: srv.URL, Guard: resilience.Config{
		Timeout: time.Second,
		Breaker: resilience.BreakerConfig{MaxRequests: 1, OpenTimeout: time.Hour, ConsecutiveFailures: 2},
	}}
	c := NewClient(cfg, srv.Client(), nil, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := c.GetFund(ctx, "f1")
		require.True(t, IsRemoteFailure(err))
	}
	assert.Equal(t, metrics.CircuitClosed, c.Guard().State())

	status.Store(http.StatusInternalServerError)
	for i := 0; i < 2; i++ {
		_, _ = c.GetFund(ctx, "f1")
	}
	assert.Equal(t, metrics.CircuitOpen, c.Guard().State())

	_, err := c.GetFund(ctx, "f1")
	assert.True(t, cache.IsCircuitOpen(err), "got %v", err)
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := Config{BaseURL: srv.URL, Guard: resilience.DefaultConfig().WithTimeout(50 * time.Millisecond)}
	c := NewClient(cfg, srv.Client(), nil, nil)

	_, err := c.GetFund(context.Background(), "f1")
	assert.True(t, cache.IsTimeout(err), "got %v", err)
}

func TestListFunds(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"array", `[{"id":"f1","name":"Viagem","balance":120.5},{"id":"f2"}]`, 2},
		{"funds envelope", `{"funds":[{"id":"f1"}]}`, 1},
		{"data envelope", `{"data":[]}`, 0},
		{"null", `null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var query string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				query = r.URL.Query().Get("accountId")
				_, _ = io.WriteString(w, tt.body)
			})

			funds, err := c.ListFunds(context.Background(), "acc 1")
			require.NoError(t, err)
			assert.Len(t, funds, tt.want)
			assert.Equal(t, "acc 1", query)
		})
	}
}

func TestCreateFund_RequiresID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"name": "Viagem"})
	})

	_, err := c.CreateFund(context.Background(), "tok", CreateFundRequest{Name: "Viagem"})
	assert.True(t, IsRemoteFailure(err))
	assert.Empty(t, Message(err), "protocol errors carry no user-facing message")
	assert.Contains(t, err.Error(), "created fund has no id")
}

func TestCreateFund_WireBody(t *testing.T) {
	var raw []byte
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ = io.ReadAll(r.Body)
		writeJSON(w, http.StatusCreated, map[string]any{"id": "f9"})
	})

	_, err := c.CreateFund(context.Background(), "tok", CreateFundRequest{
		Name:                          "Viagem",
		Objective:                     "Viagem de fim de ano",
		TargetAmount:                  "5000",
		ImageValue:                    "✈️",
		ContributionRate:              "1.5",
		RetributionRate:               "0",
		IsOpenForNewMembers:           true,
		RequiresApprovalForNewMembers: false,
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"name": "Viagem",
		"objective": "Viagem de fim de ano",
		"targetAmount": 5000,
		"fundImageValue": "✈️",
		"contributionRate": 1.5,
		"retributionRate": 0,
		"isOpenForNewMembers": true,
		"requiresApprovalForNewMembers": false
	}`, string(raw))
}

func TestMissingRecordHasNoMessage(t *testing.T) {
	tests := []struct {
		name string
		call func(*Client) error
	}{
		{"contribution", func(c *Client) error {
			_, err := c.ProcessContribution(context.Background(), "tok", ContributionRequest{FundID: "f1", Amount: "1"})
			return err
		}},
		{"capital request", func(c *Client) error {
			_, err := c.CreateCapitalRequest(context.Background(), "tok", "f1", CapitalRequestBody{Amount: "1"})
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"success": true})
			})

			err := tt.call(c)
			require.Error(t, err)
			assert.True(t, IsRemoteFailure(err))
			assert.Empty(t, Message(err))
		})
	}
}

func TestFundEdits(t *testing.T) {
	type seen struct {
		method, path, key string
		body              map[string]any
	}
	var got []seen

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		got = append(got, seen{r.Method, r.URL.Path, r.Header.Get(IdempotencyHeader), body})
		w.WriteHeader(http.StatusNoContent)
	})
	ctx := context.Background()

	require.NoError(t, c.SetStandardObjective(ctx, "k1", "f1", "viagem", "mudança de planos"))
	require.NoError(t, c.SetCustomObjective(ctx, "k2", "f1", "reforma", decimal.NewFromInt(9000), "obra"))
	require.NoError(t, c.UpdateFundData(ctx, "k3", "f1", FundDataUpdate{Name: "Casa", ImageType: "emoji", ImageValue: "🏠", ChangeReason: "novo nome"}))

	require.Len(t, got, 3)
	assert.Equal(t, "/api/funds/f1/objective/standard", got[0].path)
	assert.Equal(t, "mudança de planos", got[0].body["changeReason"])
	assert.NotContains(t, got[0].body, "amount")

	assert.Equal(t, "/api/funds/f1/objective/custom", got[1].path)
	assert.Equal(t, float64(9000), got[1].body["amount"])

	assert.Equal(t, http.MethodPut, got[2].method)
	assert.Equal(t, "/api/funds/f1/data", got[2].path)
	assert.Equal(t, "Casa", got[2].body["name"])
	assert.Equal(t, "k3", got[2].key)
}

func TestFundHistory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/funds/f%201/history", r.URL.EscapedPath())
		_, _ = io.WriteString(w, `[{"id":"h1","type":"contribution","amount":"250.00","created_at":"2024-01-01T10:00:00Z"}]`)
	})

	entries, err := c.FundHistory(context.Background(), "f 1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "contribution", entries[0].Type)
	assert.True(t, entries[0].Amount.Decimal.Equal(decimal.NewFromInt(250)))
}
