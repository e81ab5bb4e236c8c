package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/trade-ledger-service/internal/broker"
	"github.com/trogers1052/trade-ledger-service/internal/database"
	"github.com/trogers1052/trade-ledger-service/internal/models"
)

// memStore mirrors the ledger's unique order ids and conditional close
type memStore struct {
	mu        sync.Mutex
	trades    []*models.Trade
	nextID    int
	createErr error
	closeErr  error
	findErr   error
	creates   int
	closes    int
}

func (s *memStore) FindTradeByEntryOrderID(ctx context.Context, orderID string) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, t := range s.trades {
		if t.EntryOrderID == orderID {
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindTradeByExitOrderID(ctx context.Context, orderID string) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trades {
		if t.ExitOrderID == orderID {
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memStore) FindOpenTrade(ctx context.Context, userID, symbol string) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []*models.Trade
	for _, t := range s.trades {
		if t.UserID == userID && t.Symbol == symbol && t.IsOpen() {
			open = append(open, t)
		}
	}
	if len(open) == 0 {
		return nil, nil
	}
	sort.SliceStable(open, func(i, j int) bool { return open[i].EntryTime.Before(open[j].EntryTime) })
	c := *open[0]
	return &c, nil
}

func (s *memStore) CreateTrade(ctx context.Context, t *models.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	for _, existing := range s.trades {
		if existing.EntryOrderID == t.EntryOrderID {
			return fmt.Errorf("entry order %s: %w", t.EntryOrderID, database.ErrDuplicateOrder)
		}
	}
	s.nextID++
	t.ID = fmt.Sprintf("t%d", s.nextID)
	c := *t
	s.trades = append(s.trades, &c)
	s.creates++
	return nil
}

func (s *memStore) CloseTrade(ctx context.Context, tradeID string, c models.TradeClose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closeErr != nil {
		return s.closeErr
	}
	for _, t := range s.trades {
		if t.ID == tradeID && t.IsOpen() {
			c.Apply(t)
			s.closes++
			return nil
		}
	}
	return fmt.Errorf("trade %s: %w", tradeID, database.ErrTradeNotOpen)
}

func (s *memStore) all() []models.Trade {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Trade, 0, len(s.trades))
	for _, t := range s.trades {
		out = append(out, *t)
	}
	return out
}

func (s *memStore) counts() (creates, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates, s.closes
}

type memAccounts struct {
	accounts []models.BrokerCredentials
	listErr  error

	mu        sync.Mutex
	listCalls int
}

func (a *memAccounts) ListBrokerAccounts(ctx context.Context) ([]models.BrokerCredentials, error) {
	a.mu.Lock()
	a.listCalls++
	a.mu.Unlock()
	return a.accounts, a.listErr
}

func (a *memAccounts) GetBrokerAccount(ctx context.Context, userID string) (*models.BrokerCredentials, error) {
	for _, acct := range a.accounts {
		if acct.UserID == userID {
			c := acct
			return &c, nil
		}
	}
	return nil, fmt.Errorf("broker account %s: %w", userID, database.ErrNotFound)
}

func (a *memAccounts) ListCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listCalls
}

// fakeClient serves a fixed order list and counts fetches
type fakeClient struct {
	mu      sync.Mutex
	orders  []models.Order
	err     error
	calls   int
	lastQ   broker.OrderQuery
	block   chan struct{}
	started chan struct{}
	panics  bool
}

func (c *fakeClient) GetOrders(ctx context.Context, q broker.OrderQuery) ([]models.Order, error) {
	c.mu.Lock()
	c.calls++
	c.lastQ = q
	orders, err, block, started := c.orders, c.err, c.block, c.started
	c.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if c.panics {
		panic("broker client exploded")
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", broker.ErrBrokerAPI, ctx.Err())
		}
	}
	return orders, err
}

func (c *fakeClient) GetAccount(ctx context.Context) (*models.BrokerAccount, error) {
	return &models.BrokerAccount{}, nil
}

func (c *fakeClient) GetPositions(ctx context.Context) ([]models.BrokerPosition, error) {
	return nil, nil
}

func (c *fakeClient) setOrders(orders ...models.Order) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orders = orders
}

func (c *fakeClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// clientsByUser maps user ids to clients; unknown users are unconfigured
func clientsByUser(clients map[string]*fakeClient) broker.ClientFactory {
	return broker.ClientFactoryFunc(func(creds models.BrokerCredentials) (broker.Client, error) {
		c, ok := clients[creds.UserID]
		if !ok {
			return nil, fmt.Errorf("user %s: %w", creds.UserID, broker.ErrConfiguration)
		}
		return c, nil
	})
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (p *recordingPublisher) PublishTradeOpened(ctx context.Context, trade *models.Trade) error {
	return p.record(models.EventTypeTradeOpened, trade)
}

func (p *recordingPublisher) PublishTradeClosed(ctx context.Context, trade *models.Trade) error {
	return p.record(models.EventTypeTradeClosed, trade)
}

func (p *recordingPublisher) record(eventType string, trade *models.Trade) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType+":"+trade.Symbol)
	return p.err
}

type fakeLocker struct {
	held     map[string]bool
	err      error
	released []string
	mu       sync.Mutex
}

func (l *fakeLocker) TryLock(ctx context.Context, userID string) (func(context.Context) error, bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held[userID] {
		return nil, false, nil
	}
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released = append(l.released, userID)
		return nil
	}, true, nil
}

var errDBDown = errors.New("connection refused")

var fillTime = time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)

func filled(id, symbol string, side models.OrderSide, typ models.OrderType, qty, price string, at time.Time) models.Order {
	o := models.Order{
		ID:        id,
		Symbol:    symbol,
		Side:      side,
		Type:      typ,
		Qty:       decimal.NewNullDecimal(decimal.RequireFromString(qty)),
		FilledQty: decimal.NewNullDecimal(decimal.RequireFromString(qty)),
		Status:    models.OrderStatusFilled,
	}
	if price != "" {
		o.FilledAvgPrice = decimal.NewNullDecimal(decimal.RequireFromString(price))
	}
	if !at.IsZero() {
		o.FilledAt = &at
	}
	return o
}
