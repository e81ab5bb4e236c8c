package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/trogers1052/trade-ledger-service/internal/analytics"
	"github.com/trogers1052/trade-ledger-service/internal/broker"
	"github.com/trogers1052/trade-ledger-service/internal/database"
	"github.com/trogers1052/trade-ledger-service/internal/models"
	"github.com/trogers1052/trade-ledger-service/internal/reconciler"
	"github.com/trogers1052/trade-ledger-service/internal/risk"
	"go.uber.org/zap"
)

// TradeReader reads the ledger for reporting
type TradeReader interface {
	ListTrades(ctx context.Context, userID string, status models.TradeStatus) ([]*models.Trade, error)
	ListClosedTrades(ctx context.Context, userID string) ([]*models.Trade, error)
}

// AccountReader resolves a user's brokerage credentials
type AccountReader interface {
	GetBrokerAccount(ctx context.Context, userID string) (*models.BrokerCredentials, error)
}

// Reconciler runs an on-demand pass for one user
type Reconciler interface {
	ReconcileOnce(ctx context.Context, userID string) (reconciler.Result, error)
}

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	trades       TradeReader
	accounts     AccountReader
	clients      broker.ClientFactory
	reconciler   Reconciler
	db           Pinger
	limits       risk.Limits
	riskFreeRate float64
	log          *zap.Logger
}

// NewHandler creates a new Handler
func NewHandler(trades TradeReader, accounts AccountReader, clients broker.ClientFactory, rec Reconciler,
	db Pinger, limits risk.Limits, riskFreeRate float64, log *zap.Logger) *Handler {
	return &Handler{
		trades:       trades,
		accounts:     accounts,
		clients:      clients,
		reconciler:   rec,
		db:           db,
		limits:       limits,
		riskFreeRate: riskFreeRate,
		log:          log,
	}
}

type performanceResponse struct {
	analytics.PerformanceMetrics
	InitialEquity             float64 `json:"initial_equity"`
	CurrentEquity             float64 `json:"current_equity"`
	// Initial equity is current equity less realized pnl, which ignores deposits and withdrawals
	InitialEquityApproximated bool    `json:"initial_equity_approximated"`
}

type reconcileResponse struct {
	reconciler.Result
	Error string `json:"error,omitempty"`
}

// ListTrades handles GET /users/{userID}/trades
func (h *Handler) ListTrades(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	status := models.TradeStatus(strings.ToUpper(r.URL.Query().Get("status")))
	if status != "" && status != models.TradeStatusOpen && status != models.TradeStatusClosed {
		http.Error(w, "status must be OPEN or CLOSED", http.StatusBadRequest)
		return
	}

	trades, err := h.trades.ListTrades(r.Context(), userID, status)
	if err != nil {
		h.fail(w, err)
		return
	}
	if trades == nil {
		trades = []*models.Trade{}
	}

	respondJSON(w, http.StatusOK, trades)
}

// GetPerformance handles GET /users/{userID}/performance
func (h *Handler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	client, err := h.clientFor(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}

	account, err := client.GetAccount(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}

	trades, err := h.trades.ListClosedTrades(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}

	current := account.Equity.InexactFloat64()
	initial := analytics.ApproximateInitialEquity(current, trades)

	respondJSON(w, http.StatusOK, performanceResponse{
		PerformanceMetrics:        analytics.CalculateWithRiskFree(trades, initial, current, h.riskFreeRate),
		InitialEquity:             initial,
		CurrentEquity:             current,
		InitialEquityApproximated: true,
	})
}

// GetPortfolioHeat handles GET /users/{userID}/risk/heat?stops=SYM:price,...
func (h *Handler) GetPortfolioHeat(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	stops, err := parseStops(r.URL.Query().Get("stops"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	client, err := h.clientFor(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}

	account, err := client.GetAccount(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}

	positions, err := client.GetPositions(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}

	metrics, err := risk.PortfolioHeat(positions, account.Equity.InexactFloat64(), stops, h.limits)
	if err != nil {
		h.fail(w, err)
		return
	}

	respondJSON(w, http.StatusOK, metrics)
}

// Reconcile handles POST /users/{userID}/reconcile
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	res, err := h.reconciler.ReconcileOnce(r.Context(), userID)
	if err != nil {
		if errors.Is(err, reconciler.ErrPersistence) {
			h.log.Error("on-demand reconciliation lost ledger writes", zap.String("user_id", userID), zap.Error(err))
			respondJSON(w, http.StatusInternalServerError, reconcileResponse{Result: res, Error: err.Error()})
			return
		}
		h.fail(w, err)
		return
	}

	respondJSON(w, http.StatusOK, reconcileResponse{Result: res})
}

// PositionSize handles POST /risk/position-size
func (h *Handler) PositionSize(w http.ResponseWriter, r *http.Request) {
	var req risk.RecommendationInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if _, err := risk.PositionSize(req.AccountValue, req.RiskPercent, req.EntryPrice, req.StopPrice); err != nil {
		h.fail(w, err)
		return
	}

	respondJSON(w, http.StatusOK, risk.RecommendedPositionSize(req, h.limits))
}

// RiskReward handles POST /risk/risk-reward
func (h *Handler) RiskReward(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EntryPrice  float64 `json:"entry_price"`
		StopPrice   float64 `json:"stop_price"`
		TargetPrice float64 `json:"target_price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	result, err := risk.RiskReward(req.EntryPrice, req.StopPrice, req.TargetPrice)
	if err != nil {
		h.fail(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) clientFor(ctx context.Context, userID string) (broker.Client, error) {
	creds, err := h.accounts.GetBrokerAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !creds.Enabled {
		return nil, fmt.Errorf("%w: account %s is disabled", broker.ErrConfiguration, userID)
	}
	return h.clients.ClientFor(*creds)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	http.Error(w, err.Error(), status)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, risk.ErrComputation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, broker.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, broker.ErrBrokerAPI):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// parseStops reads "AAPL:145.5,MSFT:390"
func parseStops(raw string) (map[string]float64, error) {
	stops := make(map[string]float64)
	if raw == "" {
		return stops, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		symbol, price, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || symbol == "" {
			return nil, fmt.Errorf("invalid stop %q, want SYMBOL:price", pair)
		}
		v, err := strconv.ParseFloat(price, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid stop price for %s: %q", symbol, price)
		}
		stops[strings.ToUpper(symbol)] = v
	}
	return stops, nil
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
