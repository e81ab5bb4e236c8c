package models

import "time"

// BrokerCredentials identifies one user's connected brokerage account
type BrokerCredentials struct {
	UserID    string    `json:"user_id"`
	APIKeyID  string    `json:"-"`
	APISecret string    `json:"-"`
	BaseURL   string    `json:"base_url,omitempty"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
