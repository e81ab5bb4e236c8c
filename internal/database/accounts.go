package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trogers1052/trade-ledger-service/internal/models"
)

// ListBrokerAccounts returns every enabled brokerage account
func (db *DB) ListBrokerAccounts(ctx context.Context) ([]models.BrokerCredentials, error) {
	query := `
		SELECT user_id, api_key_id, api_secret, base_url, enabled, created_at, updated_at
		FROM broker_accounts
		WHERE enabled = TRUE
		ORDER BY user_id
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list broker accounts: %w", err)
	}
	defer rows.Close()

	var accounts []models.BrokerCredentials
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan broker account: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate broker accounts: %w", err)
	}
	return accounts, nil
}

// GetBrokerAccount returns the account for a user, enabled or not
func (db *DB) GetBrokerAccount(ctx context.Context, userID string) (*models.BrokerCredentials, error) {
	query := `
		SELECT user_id, api_key_id, api_secret, base_url, enabled, created_at, updated_at
		FROM broker_accounts
		WHERE user_id = $1
	`
	a, err := scanAccount(db.conn.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("broker account %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get broker account: %w", err)
	}
	return &a, nil
}

// UpsertBrokerAccount creates or replaces a user's brokerage credentials
func (db *DB) UpsertBrokerAccount(ctx context.Context, a *models.BrokerCredentials) error {
	query := `
		INSERT INTO broker_accounts (user_id, api_key_id, api_secret, base_url, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			api_key_id = EXCLUDED.api_key_id,
			api_secret = EXCLUDED.api_secret,
			base_url = EXCLUDED.base_url,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`
	baseURL := sql.NullString{String: a.BaseURL, Valid: a.BaseURL != ""}
	err := db.conn.QueryRowContext(ctx, query,
		a.UserID, a.APIKeyID, a.APISecret, baseURL, a.Enabled, time.Now().UTC(),
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert broker account: %w", err)
	}
	return nil
}

func scanAccount(row rowScanner) (models.BrokerCredentials, error) {
	var a models.BrokerCredentials
	var baseURL sql.NullString
	err := row.Scan(&a.UserID, &a.APIKeyID, &a.APISecret, &baseURL, &a.Enabled, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return a, err
	}
	a.BaseURL = baseURL.String
	return a, nil
}
