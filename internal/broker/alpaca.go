package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/trade-ledger-service/internal/models"
	"go.uber.org/zap"
)

const maxErrorBody = 512

// AlpacaClient talks to an Alpaca-compatible trading REST API
type AlpacaClient struct {
	baseURL   string
	keyID     string
	secretKey string
	http      *http.Client
	log       *zap.Logger
}

// NewAlpacaClient creates a client for one account. Missing credentials are a
// configuration error.
func NewAlpacaClient(baseURL, keyID, secretKey string, timeout time.Duration, log *zap.Logger) (*AlpacaClient, error) {
	if keyID == "" || secretKey == "" {
		return nil, fmt.Errorf("%w: missing API key id or secret", ErrConfiguration)
	}
	if baseURL == "" {
		return nil, fmt.Errorf("%w: missing base URL", ErrConfiguration)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AlpacaClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyID:     keyID,
		secretKey: secretKey,
		http:      &http.Client{Timeout: timeout},
		log:       log,
	}, nil
}

// NewAlpacaFactory returns a factory that falls back to defaultBaseURL when an
// account has no base URL of its own.
func NewAlpacaFactory(defaultBaseURL string, timeout time.Duration, log *zap.Logger) ClientFactory {
	return ClientFactoryFunc(func(creds models.BrokerCredentials) (Client, error) {
		base := creds.BaseURL
		if base == "" {
			base = defaultBaseURL
		}
		c, err := NewAlpacaClient(base, creds.APIKeyID, creds.APISecret, timeout, log.With(zap.String("user_id", creds.UserID)))
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", creds.UserID, err)
		}
		return c, nil
	})
}

type alpacaOrder struct {
	ID             string  `json:"id"`
	Symbol         string  `json:"symbol"`
	Side           string  `json:"side"`
	Type           string  `json:"type"`
	Qty            *string `json:"qty"`
	FilledQty      *string `json:"filled_qty"`
	FilledAvgPrice *string `json:"filled_avg_price"`
	LimitPrice     *string `json:"limit_price"`
	StopPrice      *string `json:"stop_price"`
	FilledAt       *string `json:"filled_at"`
	Status         string  `json:"status"`
}

type alpacaAccount struct {
	Equity      string `json:"equity"`
	BuyingPower string `json:"buying_power"`
	Cash        string `json:"cash"`
}

type alpacaPosition struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	AvgEntryPrice string `json:"avg_entry_price"`
	CurrentPrice  string `json:"current_price"`
	MarketValue   string `json:"market_value"`
	UnrealizedPL  string `json:"unrealized_pl"`
}

// GetOrders lists the most recent orders, newest first
func (c *AlpacaClient) GetOrders(ctx context.Context, q OrderQuery) ([]models.Order, error) {
	params := url.Values{}
	if q.Status != "" {
		params.Set("status", q.Status)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	params.Set("direction", "desc")

	var raw []alpacaOrder
	if err := c.get(ctx, "/v2/orders?"+params.Encode(), &raw); err != nil {
		return nil, err
	}

	orders := make([]models.Order, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, c.convertOrder(o))
	}
	return orders, nil
}

// GetAccount returns the account balances
func (c *AlpacaClient) GetAccount(ctx context.Context) (*models.BrokerAccount, error) {
	var raw alpacaAccount
	if err := c.get(ctx, "/v2/account", &raw); err != nil {
		return nil, err
	}
	return &models.BrokerAccount{
		Equity:      c.decimalField("equity", raw.Equity),
		BuyingPower: c.decimalField("buying_power", raw.BuyingPower),
		Cash:        c.decimalField("cash", raw.Cash),
	}, nil
}

// GetPositions returns every open position in the account
func (c *AlpacaClient) GetPositions(ctx context.Context) ([]models.BrokerPosition, error) {
	var raw []alpacaPosition
	if err := c.get(ctx, "/v2/positions", &raw); err != nil {
		return nil, err
	}

	positions := make([]models.BrokerPosition, 0, len(raw))
	for _, p := range raw {
		positions = append(positions, models.BrokerPosition{
			Symbol:        p.Symbol,
			Qty:           c.decimalField("qty", p.Qty),
			AvgEntryPrice: c.decimalField("avg_entry_price", p.AvgEntryPrice),
			CurrentPrice:  c.decimalField("current_price", p.CurrentPrice),
			MarketValue:   c.decimalField("market_value", p.MarketValue),
			UnrealizedPL:  c.decimalField("unrealized_pl", p.UnrealizedPL),
		})
	}
	return positions, nil
}

func (c *AlpacaClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("APCA-API-KEY-ID", c.keyID)
	req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", ErrBrokerAPI, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode %s: %v", ErrBrokerAPI, path, err)
	}
	return nil
}

// convertOrder never fails: unparseable numeric fields are left unset so the
// reconciler can fall back or reject that single order.
func (c *AlpacaClient) convertOrder(o alpacaOrder) models.Order {
	order := models.Order{
		ID:             o.ID,
		Symbol:         o.Symbol,
		Side:           models.OrderSide(strings.ToLower(o.Side)),
		Type:           models.OrderType(strings.ToLower(o.Type)),
		Qty:            c.nullDecimal(o.ID, "qty", o.Qty),
		FilledQty:      c.nullDecimal(o.ID, "filled_qty", o.FilledQty),
		FilledAvgPrice: c.nullDecimal(o.ID, "filled_avg_price", o.FilledAvgPrice),
		LimitPrice:     c.nullDecimal(o.ID, "limit_price", o.LimitPrice),
		StopPrice:      c.nullDecimal(o.ID, "stop_price", o.StopPrice),
		Status:         strings.ToLower(o.Status),
	}
	if o.FilledAt != nil && *o.FilledAt != "" {
		filledAt, err := time.Parse(time.RFC3339Nano, *o.FilledAt)
		if err != nil {
			c.log.Warn("ignoring malformed filled_at", zap.String("order_id", o.ID), zap.String("value", *o.FilledAt))
		} else {
			order.FilledAt = &filledAt
		}
	}
	return order
}

func (c *AlpacaClient) nullDecimal(orderID, field string, v *string) decimal.NullDecimal {
	if v == nil || *v == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(*v)
	if err != nil {
		c.log.Warn("ignoring malformed order field",
			zap.String("order_id", orderID), zap.String("field", field), zap.String("value", *v))
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func (c *AlpacaClient) decimalField(field, v string) decimal.Decimal {
	if v == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		c.log.Warn("ignoring malformed numeric field", zap.String("field", field), zap.String("value", v))
		return decimal.Zero
	}
	return d
}
