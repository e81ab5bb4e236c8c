package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/trade-ledger-service/internal/models"
)

var tradeRowColumns = []string{
	"id", "user_id", "symbol", "side", "qty", "entry_price", "entry_time", "entry_order_id",
	"exit_price", "exit_time", "exit_order_id", "exit_reason", "pnl", "pnl_percent",
	"status", "created_at", "updated_at",
}

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return &DB{conn: sqlDB}, mock
}

func TestCreateTrade_AssignsIDAndTimestamps(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO trades").WillReturnResult(sqlmock.NewResult(0, 1))

	trade := newOpenTrade("u1", "AAPL", "o1", time.Now())
	require.NoError(t, db.CreateTrade(context.Background(), trade))

	assert.NotEmpty(t, trade.ID)
	assert.Equal(t, models.TradeStatusOpen, trade.Status)
	assert.False(t, trade.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTrade_UniqueViolationIsDuplicate(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO trades").WillReturnError(&pq.Error{Code: "23505"})

	err := db.CreateTrade(context.Background(), newOpenTrade("u1", "AAPL", "o1", time.Now()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateOrder))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTrade_OtherErrorsAreWrapped(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO trades").WillReturnError(errors.New("connection reset"))

	err := db.CreateTrade(context.Background(), newOpenTrade("u1", "AAPL", "o1", time.Now()))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrDuplicateOrder))
	assert.Contains(t, err.Error(), "failed to create trade")
}

func TestCloseTrade_NoRowsIsNotOpen(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("UPDATE trades").WillReturnResult(sqlmock.NewResult(0, 0))

	err := db.CloseTrade(context.Background(), "t1", models.TradeClose{ExitOrderID: "o2"})
	assert.True(t, errors.Is(err, ErrTradeNotOpen))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseTrade_Success(t *testing.T) {
	db, mock := newMockDB(t)

	exitTime := time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE trades").
		WithArgs("t1", decimal.NewFromInt(185), exitTime, "o2", models.ExitReasonManual,
			decimal.NewFromInt(67), decimal.NewFromInt(3), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := db.CloseTrade(context.Background(), "t1", models.TradeClose{
		ExitPrice:   decimal.NewFromInt(185),
		ExitTime:    exitTime,
		ExitOrderID: "o2",
		ExitReason:  models.ExitReasonManual,
		Pnl:         decimal.NewFromInt(67),
		PnlPercent:  decimal.NewFromInt(3),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindTradeByEntryOrderID(t *testing.T) {
	t.Run("no row returns nil without error", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("FROM trades WHERE entry_order_id").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(tradeRowColumns))

		got, err := db.FindTradeByEntryOrderID(context.Background(), "missing")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("scans nullable exit columns", func(t *testing.T) {
		db, mock := newMockDB(t)
		entry := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
		mock.ExpectQuery("FROM trades WHERE entry_order_id").
			WithArgs("o1").
			WillReturnRows(sqlmock.NewRows(tradeRowColumns).AddRow(
				"t1", "u1", "AAPL", "LONG", "10", "178.50", entry, "o1",
				nil, nil, nil, nil, nil, nil,
				"OPEN", entry, entry,
			))

		got, err := db.FindTradeByEntryOrderID(context.Background(), "o1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, models.SideLong, got.Side)
		assert.True(t, got.IsOpen())
		assert.True(t, got.Qty.Equal(decimal.NewFromInt(10)))
		assert.False(t, got.ExitPrice.Valid)
		assert.Nil(t, got.ExitTime)
		assert.Empty(t, got.ExitOrderID)
	})

	t.Run("query error is returned", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("FROM trades WHERE entry_order_id").WillReturnError(errors.New("boom"))

		_, err := db.FindTradeByEntryOrderID(context.Background(), "o1")
		assert.Error(t, err)
	})
}

func TestListClosedTrades_ScansRows(t *testing.T) {
	db, mock := newMockDB(t)
	entry := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	exit := entry.Add(24 * time.Hour)

	mock.ExpectQuery("FROM trades").
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(tradeRowColumns).AddRow(
			"t1", "u1", "AAPL", "LONG", "10", "178.50", entry, "o1",
			"185.20", exit, "o2", "MANUAL", "67", "3.75",
			"CLOSED", entry, exit,
		))

	trades, err := db.ListClosedTrades(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, models.ExitReasonManual, trades[0].ExitReason)
	assert.Equal(t, "o2", trades[0].ExitOrderID)
	require.NotNil(t, trades[0].ExitTime)
	assert.True(t, trades[0].ExitTime.Equal(exit))
	assert.True(t, trades[0].Pnl.Decimal.Equal(decimal.NewFromInt(67)))
}
