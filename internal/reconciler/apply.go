package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trogers1052/trade-ledger-service/internal/database"
	"github.com/trogers1052/trade-ledger-service/internal/models"
	"github.com/trogers1052/trade-ledger-service/internal/pnl"
	"go.uber.org/zap"
)

type outcome int

const (
	outcomeDuplicate outcome = iota
	outcomeOpened
	outcomeClosed
)

func (o outcome) String() string {
	switch o {
	case outcomeOpened:
		return "opened"
	case outcomeClosed:
		return "closed"
	default:
		return "duplicate"
	}
}

// applyOrder books a single filled order. The order id lookups run before any
// write so a fill seen again is a no-op; the ledger's unique order ids catch
// whatever slips past them.
func (r *Reconciler) applyOrder(ctx context.Context, userID string, order models.Order) (outcome, error) {
	if order.ID == "" {
		return outcomeDuplicate, fmt.Errorf("%w: missing order id", ErrInvalidOrder)
	}

	existing, err := r.store.FindTradeByEntryOrderID(ctx, order.ID)
	if err != nil {
		return outcomeDuplicate, fmt.Errorf("%w: lookup entry order %s: %w", ErrPersistence, order.ID, err)
	}
	if existing != nil {
		return outcomeDuplicate, nil
	}

	existing, err = r.store.FindTradeByExitOrderID(ctx, order.ID)
	if err != nil {
		return outcomeDuplicate, fmt.Errorf("%w: lookup exit order %s: %w", ErrPersistence, order.ID, err)
	}
	if existing != nil {
		return outcomeDuplicate, nil
	}

	open, err := r.store.FindOpenTrade(ctx, userID, order.Symbol)
	if err != nil {
		return outcomeDuplicate, fmt.Errorf("%w: lookup open trade %s: %w", ErrPersistence, order.Symbol, err)
	}

	if open != nil && open.ClosesOn(order.Side) {
		return r.closeTrade(ctx, open, order)
	}
	return r.openTrade(ctx, userID, order)
}

func (r *Reconciler) openTrade(ctx context.Context, userID string, order models.Order) (outcome, error) {
	var side models.Side
	switch order.Side {
	case models.OrderSideBuy:
		side = models.SideLong
	case models.OrderSideSell:
		side = models.SideShort
	default:
		return outcomeDuplicate, fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, order.Side)
	}

	// Zero when neither price is present
	entryPrice, _ := order.FillPrice()

	trade := &models.Trade{
		UserID:       userID,
		Symbol:       order.Symbol,
		Side:         side,
		Qty:          order.FillQty(),
		EntryPrice:   entryPrice,
		EntryTime:    r.fillTime(order),
		EntryOrderID: order.ID,
		Status:       models.TradeStatusOpen,
	}

	if err := r.store.CreateTrade(ctx, trade); err != nil {
		if errors.Is(err, database.ErrDuplicateOrder) {
			return outcomeDuplicate, nil
		}
		return outcomeDuplicate, fmt.Errorf("%w: create trade for order %s: %w", ErrPersistence, order.ID, err)
	}

	r.log.Info("opened trade",
		zap.String("user_id", userID),
		zap.String("trade_id", trade.ID),
		zap.String("symbol", trade.Symbol),
		zap.String("side", string(trade.Side)),
		zap.String("qty", trade.Qty.String()),
		zap.String("entry_price", trade.EntryPrice.String()))

	r.publish(ctx, trade, models.EventTypeTradeOpened)
	return outcomeOpened, nil
}

func (r *Reconciler) closeTrade(ctx context.Context, trade *models.Trade, order models.Order) (outcome, error) {
	exitPrice, ok := order.FillPrice()
	if !ok {
		return outcomeDuplicate, fmt.Errorf("order %s: %w", order.ID, ErrMissingFillPrice)
	}

	result := pnl.Compute(trade, exitPrice)
	closeFields := models.TradeClose{
		ExitPrice:   exitPrice,
		ExitTime:    r.fillTime(order),
		ExitOrderID: order.ID,
		ExitReason:  pnl.ClassifyExit(&order, trade),
		Pnl:         result.Pnl,
		PnlPercent:  result.PnlPercent,
	}

	if err := r.store.CloseTrade(ctx, trade.ID, closeFields); err != nil {
		if errors.Is(err, database.ErrTradeNotOpen) || errors.Is(err, database.ErrDuplicateOrder) {
			return outcomeDuplicate, nil
		}
		return outcomeDuplicate, fmt.Errorf("%w: close trade %s with order %s: %w", ErrPersistence, trade.ID, order.ID, err)
	}

	closed := *trade
	closeFields.Apply(&closed)

	r.log.Info("closed trade",
		zap.String("user_id", closed.UserID),
		zap.String("trade_id", closed.ID),
		zap.String("symbol", closed.Symbol),
		zap.String("exit_reason", string(closed.ExitReason)),
		zap.String("pnl", result.Pnl.String()))

	r.publish(ctx, &closed, models.EventTypeTradeClosed)
	return outcomeClosed, nil
}

func (r *Reconciler) fillTime(order models.Order) time.Time {
	if order.FilledAt != nil {
		return order.FilledAt.UTC()
	}
	return r.now().UTC()
}

// Publish failures never roll back the ledger
func (r *Reconciler) publish(ctx context.Context, trade *models.Trade, eventType string) {
	if r.publisher == nil {
		return
	}

	var err error
	switch eventType {
	case models.EventTypeTradeOpened:
		err = r.publisher.PublishTradeOpened(ctx, trade)
	case models.EventTypeTradeClosed:
		err = r.publisher.PublishTradeClosed(ctx, trade)
	}
	if err != nil {
		r.log.Warn("failed to publish trade event",
			zap.String("event_type", eventType),
			zap.String("trade_id", trade.ID),
			zap.Error(err))
	}
}
