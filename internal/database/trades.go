package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trogers1052/trade-ledger-service/internal/id"
	"github.com/trogers1052/trade-ledger-service/internal/models"
)

const tradeColumns = `
	id, user_id, symbol, side, qty, entry_price, entry_time, entry_order_id,
	exit_price, exit_time, exit_order_id, exit_reason, pnl, pnl_percent,
	status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateTrade inserts a new OPEN trade. An entry order id that is already
// booked yields ErrDuplicateOrder.
func (db *DB) CreateTrade(ctx context.Context, t *models.Trade) error {
	if t.ID == "" {
		t.ID = id.NewTradeID()
	}
	if t.Status == "" {
		t.Status = models.TradeStatusOpen
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO trades (
			id, user_id, symbol, side, qty, entry_price, entry_time, entry_order_id,
			status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`
	_, err := db.conn.ExecContext(ctx, query,
		t.ID, t.UserID, t.Symbol, t.Side, t.Qty, t.EntryPrice, t.EntryTime, t.EntryOrderID,
		t.Status, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("entry order %s: %w", t.EntryOrderID, ErrDuplicateOrder)
		}
		return fmt.Errorf("failed to create trade: %w", err)
	}

	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

// CloseTrade writes every exit field in one statement. Only an OPEN trade can
// be closed; anything else yields ErrTradeNotOpen.
func (db *DB) CloseTrade(ctx context.Context, tradeID string, c models.TradeClose) error {
	query := `
		UPDATE trades
		SET exit_price = $2, exit_time = $3, exit_order_id = $4, exit_reason = $5,
		    pnl = $6, pnl_percent = $7, status = 'CLOSED', updated_at = $8
		WHERE id = $1 AND status = 'OPEN'
	`
	result, err := db.conn.ExecContext(ctx, query,
		tradeID, c.ExitPrice, c.ExitTime, c.ExitOrderID, c.ExitReason,
		c.Pnl, c.PnlPercent, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("exit order %s: %w", c.ExitOrderID, ErrDuplicateOrder)
		}
		return fmt.Errorf("failed to close trade: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("trade %s: %w", tradeID, ErrTradeNotOpen)
	}
	return nil
}

// GetTrade retrieves a trade by ID
func (db *DB) GetTrade(ctx context.Context, tradeID string) (*models.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = $1`
	t, err := scanTrade(db.conn.QueryRowContext(ctx, query, tradeID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trade %s: %w", tradeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return t, nil
}

// FindTradeByEntryOrderID returns the trade opened by an order, or nil
func (db *DB) FindTradeByEntryOrderID(ctx context.Context, orderID string) (*models.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE entry_order_id = $1`
	return db.findOne(ctx, query, orderID)
}

// FindTradeByExitOrderID returns the trade closed by an order, or nil
func (db *DB) FindTradeByExitOrderID(ctx context.Context, orderID string) (*models.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE exit_order_id = $1`
	return db.findOne(ctx, query, orderID)
}

// FindOpenTrade returns the oldest OPEN trade for a user and symbol, or nil
func (db *DB) FindOpenTrade(ctx context.Context, userID, symbol string) (*models.Trade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM trades
		WHERE user_id = $1 AND symbol = $2 AND status = 'OPEN'
		ORDER BY entry_time ASC, id ASC
		LIMIT 1`
	return db.findOne(ctx, query, userID, symbol)
}

// ListTrades returns a user's trades, newest entry first. An empty status
// lists every trade.
func (db *DB) ListTrades(ctx context.Context, userID string, status models.TradeStatus) ([]*models.Trade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM trades
		WHERE user_id = $1 AND ($2::text = '' OR status = $2)
		ORDER BY entry_time DESC, id DESC`
	return db.list(ctx, query, userID, string(status))
}

// ListClosedTrades returns a user's closed trades in exit order
func (db *DB) ListClosedTrades(ctx context.Context, userID string) ([]*models.Trade, error) {
	query := `SELECT ` + tradeColumns + `
		FROM trades
		WHERE user_id = $1 AND status = 'CLOSED'
		ORDER BY exit_time ASC, id ASC`
	return db.list(ctx, query, userID)
}

func (db *DB) findOne(ctx context.Context, query string, args ...any) (*models.Trade, error) {
	t, err := scanTrade(db.conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find trade: %w", err)
	}
	return t, nil
}

func (db *DB) list(ctx context.Context, query string, args ...any) ([]*models.Trade, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	var trades []*models.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trades: %w", err)
	}
	return trades, nil
}

func scanTrade(row rowScanner) (*models.Trade, error) {
	var t models.Trade
	var side, status string
	var exitTime sql.NullTime
	var exitOrderID, exitReason sql.NullString

	err := row.Scan(
		&t.ID, &t.UserID, &t.Symbol, &side, &t.Qty, &t.EntryPrice, &t.EntryTime, &t.EntryOrderID,
		&t.ExitPrice, &exitTime, &exitOrderID, &exitReason, &t.Pnl, &t.PnlPercent,
		&status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Side = models.Side(side)
	t.Status = models.TradeStatus(status)
	if exitTime.Valid {
		et := exitTime.Time
		t.ExitTime = &et
	}
	if exitOrderID.Valid {
		t.ExitOrderID = exitOrderID.String
	}
	if exitReason.Valid {
		t.ExitReason = models.ExitReason(exitReason.String)
	}
	return &t, nil
}
