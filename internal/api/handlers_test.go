package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/trade-ledger-service/internal/broker"
	"github.com/trogers1052/trade-ledger-service/internal/database"
	"github.com/trogers1052/trade-ledger-service/internal/models"
	"github.com/trogers1052/trade-ledger-service/internal/reconciler"
	"github.com/trogers1052/trade-ledger-service/internal/risk"
	"go.uber.org/zap"
)

type stubTrades struct {
	trades     []*models.Trade
	err        error
	lastStatus models.TradeStatus
}

func (s *stubTrades) ListTrades(ctx context.Context, userID string, status models.TradeStatus) ([]*models.Trade, error) {
	s.lastStatus = status
	return s.trades, s.err
}

func (s *stubTrades) ListClosedTrades(ctx context.Context, userID string) ([]*models.Trade, error) {
	var out []*models.Trade
	for _, t := range s.trades {
		if !t.IsOpen() {
			out = append(out, t)
		}
	}
	return out, s.err
}

type stubAccounts map[string]models.BrokerCredentials

func (s stubAccounts) GetBrokerAccount(ctx context.Context, userID string) (*models.BrokerCredentials, error) {
	c, ok := s[userID]
	if !ok {
		return nil, fmt.Errorf("broker account %s: %w", userID, database.ErrNotFound)
	}
	return &c, nil
}

type stubClient struct {
	account   models.BrokerAccount
	positions []models.BrokerPosition
	err       error
}

func (c *stubClient) GetOrders(ctx context.Context, q broker.OrderQuery) ([]models.Order, error) {
	return nil, c.err
}

func (c *stubClient) GetAccount(ctx context.Context) (*models.BrokerAccount, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &c.account, nil
}

func (c *stubClient) GetPositions(ctx context.Context) ([]models.BrokerPosition, error) {
	return c.positions, c.err
}

type stubReconciler struct {
	result reconciler.Result
	err    error
	calls  int
}

func (s *stubReconciler) ReconcileOnce(ctx context.Context, userID string) (reconciler.Result, error) {
	s.calls++
	return s.result, s.err
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

type fixture struct {
	trades *stubTrades
	client *stubClient
	rec    *stubReconciler
	ping   stubPinger
}

func newFixture() *fixture {
	return &fixture{
		trades: &stubTrades{},
		client: &stubClient{account: models.BrokerAccount{Equity: decimal.NewFromInt(100000)}},
		rec:    &stubReconciler{},
	}
}

func (f *fixture) router() http.Handler {
	accounts := stubAccounts{
		"u1":  {UserID: "u1", Enabled: true},
		"off": {UserID: "off", Enabled: false},
	}
	clients := broker.ClientFactoryFunc(func(creds models.BrokerCredentials) (broker.Client, error) {
		return f.client, nil
	})
	h := NewHandler(f.trades, accounts, clients, f.rec, f.ping, risk.DefaultLimits(), 0.02, zap.NewNop())
	return SetupRoutes(h)
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	f.router().ServeHTTP(w, req)
	return w
}

func closedTrade(id string, pnl float64, exit time.Time) *models.Trade {
	return &models.Trade{
		ID:       id,
		UserID:   "u1",
		Symbol:   "AAPL",
		Side:     models.SideLong,
		Status:   models.TradeStatusClosed,
		ExitTime: &exit,
		Pnl:      decimal.NewNullDecimal(decimal.NewFromFloat(pnl)),
	}
}

func TestHealthCheck(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	f.ping = stubPinger{err: errors.New("db down")}
	w = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListTrades(t *testing.T) {
	t.Run("filters by status", func(t *testing.T) {
		f := newFixture()
		f.trades.trades = []*models.Trade{{ID: "t1", Status: models.TradeStatusOpen}}

		w := f.do(t, http.MethodGet, "/api/v1/users/u1/trades?status=open", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, models.TradeStatusOpen, f.trades.lastStatus)

		var trades []models.Trade
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &trades))
		require.Len(t, trades, 1)
		assert.Equal(t, "t1", trades[0].ID)
	})

	t.Run("empty ledger is an empty array", func(t *testing.T) {
		f := newFixture()
		w := f.do(t, http.MethodGet, "/api/v1/users/u1/trades", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "[]\n", w.Body.String())
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		f := newFixture()
		w := f.do(t, http.MethodGet, "/api/v1/users/u1/trades?status=PENDING", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetPerformance(t *testing.T) {
	t.Run("derives initial equity from realized pnl", func(t *testing.T) {
		f := newFixture()
		day := time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC)
		f.trades.trades = []*models.Trade{
			closedTrade("t1", 600, day),
			closedTrade("t2", -100, day.AddDate(0, 0, 1)),
			{ID: "t3", Status: models.TradeStatusOpen},
		}
		f.client.account.Equity = decimal.NewFromInt(100500)

		w := f.do(t, http.MethodGet, "/api/v1/users/u1/performance", "")
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.InDelta(t, 100000.0, body["initial_equity"], 1e-9)
		assert.InDelta(t, 500.0, body["total_return"], 1e-9)
		assert.Equal(t, true, body["initial_equity_approximated"])
		assert.InDelta(t, 2.0, body["total_trades"], 1e-9)
		assert.InDelta(t, 6.0, body["profit_factor"], 1e-9)
	})

	t.Run("all winners report infinite profit factor as a string", func(t *testing.T) {
		f := newFixture()
		f.trades.trades = []*models.Trade{closedTrade("t1", 100, time.Now())}

		w := f.do(t, http.MethodGet, "/api/v1/users/u1/performance", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"profit_factor":"Infinity"`)
	})

	t.Run("broker error is a bad gateway", func(t *testing.T) {
		f := newFixture()
		f.client.err = &broker.APIError{StatusCode: 500, Body: "down"}

		w := f.do(t, http.MethodGet, "/api/v1/users/u1/performance", "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("unknown user is not found", func(t *testing.T) {
		f := newFixture()
		w := f.do(t, http.MethodGet, "/api/v1/users/nobody/performance", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("disabled account is a configuration error", func(t *testing.T) {
		f := newFixture()
		w := f.do(t, http.MethodGet, "/api/v1/users/off/performance", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetPortfolioHeat(t *testing.T) {
	t.Run("uses stops from the query", func(t *testing.T) {
		f := newFixture()
		f.client.positions = []models.BrokerPosition{{
			Symbol:        "AAPL",
			Qty:           decimal.NewFromInt(100),
			AvgEntryPrice: decimal.NewFromInt(50),
			CurrentPrice:  decimal.NewFromInt(50),
			MarketValue:   decimal.NewFromInt(5000),
		}}

		w := f.do(t, http.MethodGet, "/api/v1/users/u1/risk/heat?stops=aapl:45", "")
		require.Equal(t, http.StatusOK, w.Code)

		var metrics risk.PortfolioRiskMetrics
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metrics))
		assert.Equal(t, 1, metrics.NumberOfPositions)
		assert.InDelta(t, 0.5, metrics.TotalHeat, 1e-9)
	})

	t.Run("malformed stops are rejected", func(t *testing.T) {
		f := newFixture()
		w := f.do(t, http.MethodGet, "/api/v1/users/u1/risk/heat?stops=AAPL", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("zero equity is a computation error", func(t *testing.T) {
		f := newFixture()
		f.client.account.Equity = decimal.Zero
		w := f.do(t, http.MethodGet, "/api/v1/users/u1/risk/heat", "")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestReconcile(t *testing.T) {
	t.Run("returns the result", func(t *testing.T) {
		f := newFixture()
		f.rec.result = reconciler.Result{Fetched: 3, Opened: 1, Closed: 1, Duplicates: 1}

		w := f.do(t, http.MethodPost, "/api/v1/users/u1/reconcile", "")
		require.Equal(t, http.StatusOK, w.Code)

		var res reconciler.Result
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, f.rec.result, res)
	})

	t.Run("persistence failure keeps the partial result", func(t *testing.T) {
		f := newFixture()
		f.rec.result = reconciler.Result{Fetched: 2, Opened: 1, Failed: 1}
		f.rec.err = fmt.Errorf("%w: create trade", reconciler.ErrPersistence)

		w := f.do(t, http.MethodPost, "/api/v1/users/u1/reconcile", "")
		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), `"failed":1`)
		assert.Contains(t, w.Body.String(), "ledger persistence failed")
	})

	t.Run("broker failure is a bad gateway", func(t *testing.T) {
		f := newFixture()
		f.rec.err = fmt.Errorf("failed to fetch orders: %w", broker.ErrBrokerAPI)

		w := f.do(t, http.MethodPost, "/api/v1/users/u1/reconcile", "")
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("GET is not routed", func(t *testing.T) {
		f := newFixture()
		w := f.do(t, http.MethodGet, "/api/v1/users/u1/reconcile", "")
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.Equal(t, 0, f.rec.calls)
	})
}

func TestPositionSize(t *testing.T) {
	t.Run("sizes by risk", func(t *testing.T) {
		f := newFixture()
		w := f.do(t, http.MethodPost, "/api/v1/risk/position-size",
			`{"account_value":100000,"risk_percent":1,"entry_price":50,"stop_price":45}`)
		require.Equal(t, http.StatusOK, w.Code)

		var rec risk.Recommendation
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
		assert.Equal(t, 200.0, rec.Shares)
		assert.InDelta(t, 10000.0, rec.PositionValue, 1e-9)
		assert.InDelta(t, 1000.0, rec.RiskAmount, 1e-9)
		assert.True(t, rec.Valid)
		assert.False(t, rec.Capped)
	})

	t.Run("caps by buying power", func(t *testing.T) {
		f := newFixture()
		w := f.do(t, http.MethodPost, "/api/v1/risk/position-size",
			`{"account_value":100000,"risk_percent":1,"entry_price":50,"stop_price":45,"buying_power":4990}`)
		require.Equal(t, http.StatusOK, w.Code)

		var rec risk.Recommendation
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
		assert.Equal(t, 99.0, rec.Shares)
		assert.True(t, rec.Capped)
	})

	t.Run("zero risk distance is unprocessable", func(t *testing.T) {
		f := newFixture()
		w := f.do(t, http.MethodPost, "/api/v1/risk/position-size",
			`{"account_value":100000,"risk_percent":1,"entry_price":50,"stop_price":50}`)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("bad body", func(t *testing.T) {
		f := newFixture()
		w := f.do(t, http.MethodPost, "/api/v1/risk/position-size", `{`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRiskReward(t *testing.T) {
	f := newFixture()
	w := f.do(t, http.MethodPost, "/api/v1/risk/risk-reward", `{"entry_price":50,"stop_price":45,"target_price":65}`)
	require.Equal(t, http.StatusOK, w.Code)

	var res risk.RiskRewardResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.InDelta(t, 3.0, res.Ratio, 1e-9)

	w = f.do(t, http.MethodPost, "/api/v1/risk/risk-reward", `{"entry_price":50,"stop_price":50,"target_price":65}`)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestParseStops(t *testing.T) {
	stops, err := parseStops(" AAPL:145.5, msft:390")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"AAPL": 145.5, "MSFT": 390}, stops)

	_, err = parseStops("AAPL:abc")
	assert.Error(t, err)
}
