// Package reconciler turns brokerage fills into ledger mutations exactly once
// per fill, on a schedule and for pushed fills.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trogers1052/trade-ledger-service/internal/broker"
	"github.com/trogers1052/trade-ledger-service/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultInterval     = 10 * time.Second
	DefaultOrderLimit   = 10
	DefaultFetchTimeout = 15 * time.Second
	DefaultWorkers      = 4

	// Time an account may spend on ledger writes after its fetch returns
	writeBudget = 30 * time.Second
)

var (
	// ErrPersistence marks a failed ledger read or write. A lost exit write
	// leaves a trade incorrectly OPEN, so it always reaches the caller.
	ErrPersistence = errors.New("ledger persistence failed")
	// ErrMissingFillPrice marks an exit fill with neither an average nor a limit price
	ErrMissingFillPrice = errors.New("fill has no usable price")
	// ErrInvalidOrder marks a fill that cannot be booked as given
	ErrInvalidOrder = errors.New("invalid order")

	errLockHeld = errors.New("account lock held by another instance")
)

// TradeStore is the ledger the reconciler writes to
type TradeStore interface {
	FindTradeByEntryOrderID(ctx context.Context, orderID string) (*models.Trade, error)
	FindTradeByExitOrderID(ctx context.Context, orderID string) (*models.Trade, error)
	FindOpenTrade(ctx context.Context, userID, symbol string) (*models.Trade, error)
	CreateTrade(ctx context.Context, t *models.Trade) error
	CloseTrade(ctx context.Context, tradeID string, c models.TradeClose) error
}

// AccountSource lists the accounts with brokerage credentials
type AccountSource interface {
	ListBrokerAccounts(ctx context.Context) ([]models.BrokerCredentials, error)
	GetBrokerAccount(ctx context.Context, userID string) (*models.BrokerCredentials, error)
}

// EventPublisher announces ledger changes
type EventPublisher interface {
	PublishTradeOpened(ctx context.Context, trade *models.Trade) error
	PublishTradeClosed(ctx context.Context, trade *models.Trade) error
}

// Locker is a lease shared across service instances
type Locker interface {
	TryLock(ctx context.Context, userID string) (release func(context.Context) error, acquired bool, err error)
}

// Config controls scheduling and fetch sizes
type Config struct {
	Interval     time.Duration
	OrderLimit   int
	FetchTimeout time.Duration
	Workers      int
}

// Result summarizes one account's reconciliation
type Result struct {
	Fetched    int `json:"fetched"`
	Skipped    int `json:"skipped"`
	Duplicates int `json:"duplicates"`
	Opened     int `json:"opened"`
	Closed     int `json:"closed"`
	Failed     int `json:"failed"`
}

// TickSummary summarizes one pass over every account
type TickSummary struct {
	Accounts  int `json:"accounts"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Option configures optional collaborators
type Option func(*Reconciler)

// WithPublisher publishes TRADE_OPENED and TRADE_CLOSED events
func WithPublisher(p EventPublisher) Option {
	return func(r *Reconciler) { r.publisher = p }
}

// WithLocker takes a cross-instance lease per account before reconciling it
func WithLocker(l Locker) Option {
	return func(r *Reconciler) { r.locker = l }
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// Reconciler owns the recurring reconciliation of every connected account
type Reconciler struct {
	store     TradeStore
	accounts  AccountSource
	clients   broker.ClientFactory
	publisher EventPublisher
	locker    Locker
	log       *zap.Logger
	cfg       Config
	now       func() time.Time

	flight singleflight.Group
	users  userLocks

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a reconciler. Zero config values take the defaults.
func New(store TradeStore, accounts AccountSource, clients broker.ClientFactory, cfg Config, log *zap.Logger, opts ...Option) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.OrderLimit <= 0 {
		cfg.OrderLimit = DefaultOrderLimit
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if log == nil {
		log = zap.NewNop()
	}

	r := &Reconciler{
		store:    store,
		accounts: accounts,
		clients:  clients,
		log:      log,
		cfg:      cfg,
		now:      time.Now,
		users:    userLocks{locks: make(map[string]*sync.Mutex)},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs a pass immediately and then on every interval. Calling Start
// while running does nothing.
func (r *Reconciler) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		r.log.Debug("reconciler already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done

	r.log.Info("starting reconciler",
		zap.Duration("interval", r.cfg.Interval),
		zap.Int("workers", r.cfg.Workers),
		zap.Int("order_limit", r.cfg.OrderLimit))

	go func() {
		defer close(done)

		ticker := time.NewTicker(r.cfg.Interval)
		defer ticker.Stop()

		r.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.tick(ctx)
			}
		}
	}()
}

// Stop cancels future passes and waits for in-flight accounts to finish, or
// for ctx to expire. Stopping a stopped reconciler does nothing.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		r.log.Info("reconciler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("reconciler did not stop in time: %w", ctx.Err())
	}
}

// Running reports whether the schedule is active
func (r *Reconciler) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

func (r *Reconciler) tick(ctx context.Context) {
	start := r.now()
	summary, err := r.RunForAllAccounts(ctx)
	if err != nil {
		r.log.Error("reconciliation pass failed", zap.Error(err))
		return
	}
	r.log.Info("reconciliation pass complete",
		zap.Int("accounts", summary.Accounts),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("elapsed", r.now().Sub(start)))
}

// RunForAllAccounts reconciles every enabled account on a bounded worker
// pool. A call made while a pass is in flight joins that pass instead of
// starting another. Cancelling ctx stops new accounts from starting; accounts
// already started run to completion.
func (r *Reconciler) RunForAllAccounts(ctx context.Context) (TickSummary, error) {
	v, err, shared := r.flight.Do("all-accounts", func() (any, error) {
		return r.runAll(ctx)
	})
	if shared {
		r.log.Debug("joined in-flight reconciliation pass")
	}
	if err != nil {
		return TickSummary{}, err
	}
	return v.(TickSummary), nil
}

func (r *Reconciler) runAll(ctx context.Context) (TickSummary, error) {
	accounts, err := r.accounts.ListBrokerAccounts(ctx)
	if err != nil {
		return TickSummary{}, fmt.Errorf("failed to list broker accounts: %w", err)
	}

	var succeeded, failed, skipped atomic.Int64
	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)

	for _, creds := range accounts {
		if ctx.Err() != nil {
			r.log.Info("stopping pass early", zap.Int("accounts", len(accounts)))
			break
		}

		g.Go(func() error {
			res, err := r.reconcileAccount(context.WithoutCancel(ctx), creds)
			log := r.log.With(zap.String("user_id", creds.UserID))
			switch {
			case err == nil:
				succeeded.Add(1)
				if res.Opened+res.Closed+res.Failed > 0 {
					log.Info("account reconciled",
						zap.Int("opened", res.Opened),
						zap.Int("closed", res.Closed),
						zap.Int("failed", res.Failed))
				}
			case errors.Is(err, errLockHeld):
				skipped.Add(1)
				log.Debug("account locked elsewhere, skipping")
			case errors.Is(err, broker.ErrConfiguration):
				skipped.Add(1)
				log.Warn("account not configured, skipping", zap.Error(err))
			default:
				failed.Add(1)
				log.Error("account reconciliation failed", zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	return TickSummary{
		Accounts:  len(accounts),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
	}, nil
}

// ReconcileOnce fetches the most recent orders for one user and books every
// new fill. Ledger failures are returned joined and wrap ErrPersistence;
// other per-order failures are counted in Result.Failed and logged.
func (r *Reconciler) ReconcileOnce(ctx context.Context, userID string) (Result, error) {
	creds, err := r.accounts.GetBrokerAccount(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load broker account: %w", err)
	}
	if !creds.Enabled {
		return Result{}, fmt.Errorf("%w: account %s is disabled", broker.ErrConfiguration, userID)
	}
	return r.reconcileAccount(ctx, *creds)
}

func (r *Reconciler) reconcileAccount(ctx context.Context, creds models.BrokerCredentials) (res Result, err error) {
	log := r.log.With(zap.String("user_id", creds.UserID))

	defer func() {
		if p := recover(); p != nil {
			log.Error("recovered panic during reconciliation", zap.Any("panic", p), zap.Stack("stack"))
			err = fmt.Errorf("panic reconciling %s: %v", creds.UserID, p)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout+writeBudget)
	defer cancel()

	client, err := r.clients.ClientFor(creds)
	if err != nil {
		return res, err
	}

	if r.locker != nil {
		release, acquired, lockErr := r.locker.TryLock(ctx, creds.UserID)
		switch {
		case lockErr != nil:
			log.Warn("distributed lock unavailable, continuing with local lock", zap.Error(lockErr))
		case !acquired:
			return res, errLockHeld
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					log.Warn("failed to release account lock", zap.Error(err))
				}
			}()
		}
	}

	unlock := r.users.lock(creds.UserID)
	defer unlock()

	fetchCtx, cancelFetch := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	orders, err := client.GetOrders(fetchCtx, broker.OrderQuery{Status: "closed", Limit: r.cfg.OrderLimit})
	cancelFetch()
	if err != nil {
		return res, fmt.Errorf("failed to fetch orders: %w", err)
	}
	res.Fetched = len(orders)

	var persistErrs []error
	for i := range orders {
		order := orders[i]
		if !order.IsFilled() {
			res.Skipped++
			continue
		}

		out, err := r.applyOrder(ctx, creds.UserID, order)
		if err != nil {
			res.Failed++
			if errors.Is(err, ErrPersistence) {
				persistErrs = append(persistErrs, err)
				log.Error("ledger write failed", append(orderFields(order), zap.Error(err))...)
			} else {
				log.Warn("skipping order", append(orderFields(order), zap.Error(err))...)
			}
			continue
		}
		res.record(out)
	}

	return res, errors.Join(persistErrs...)
}

// ApplyFill books one pushed fill under the same per-user lock as polling
func (r *Reconciler) ApplyFill(ctx context.Context, userID string, order models.Order) error {
	if !order.IsFilled() {
		return nil
	}

	unlock := r.users.lock(userID)
	defer unlock()

	out, err := r.applyOrder(ctx, userID, order)
	if err != nil {
		return err
	}
	if out != outcomeDuplicate {
		r.log.Info("applied pushed fill", zap.String("user_id", userID), zap.String("order_id", order.ID), zap.String("outcome", out.String()))
	}
	return nil
}

func (r *Result) record(out outcome) {
	switch out {
	case outcomeDuplicate:
		r.Duplicates++
	case outcomeOpened:
		r.Opened++
	case outcomeClosed:
		r.Closed++
	}
}

// Enough to replay a failed write by hand
func orderFields(o models.Order) []zap.Field {
	fields := []zap.Field{
		zap.String("order_id", o.ID),
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.String("type", string(o.Type)),
		zap.String("qty", o.FillQty().String()),
	}
	if price, ok := o.FillPrice(); ok {
		fields = append(fields, zap.String("price", price.String()))
	}
	if o.FilledAt != nil {
		fields = append(fields, zap.Time("filled_at", *o.FilledAt))
	}
	return fields
}

type userLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (u *userLocks) lock(userID string) (unlock func()) {
	u.mu.Lock()
	l, ok := u.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		u.locks[userID] = l
	}
	u.mu.Unlock()

	l.Lock()
	return l.Unlock
}
