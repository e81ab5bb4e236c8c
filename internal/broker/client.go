// Package broker is the boundary to the brokerage execution API.
package broker

import (
	"context"
	"errors"
	"fmt"

	"github.com/trogers1052/trade-ledger-service/internal/models"
)

var (
	// ErrConfiguration marks an account without usable brokerage credentials
	ErrConfiguration = errors.New("brokerage account is not configured")
	// ErrBrokerAPI marks transport failures and non-2xx responses from the brokerage
	ErrBrokerAPI = errors.New("brokerage API error")
)

// APIError is a non-2xx brokerage response
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("brokerage API returned %d: %s", e.StatusCode, e.Body)
}

// Unwrap lets errors.Is match ErrBrokerAPI
func (e *APIError) Unwrap() error {
	return ErrBrokerAPI
}

// OrderQuery filters the order listing
type OrderQuery struct {
	Status string
	Limit  int
}

// Client is bound to one user's brokerage account
type Client interface {
	GetOrders(ctx context.Context, q OrderQuery) ([]models.Order, error)
	GetAccount(ctx context.Context) (*models.BrokerAccount, error)
	GetPositions(ctx context.Context) ([]models.BrokerPosition, error)
}

// ClientFactory builds a client for a connected account
type ClientFactory interface {
	ClientFor(creds models.BrokerCredentials) (Client, error)
}

// ClientFactoryFunc adapts a function to ClientFactory
type ClientFactoryFunc func(creds models.BrokerCredentials) (Client, error)

// ClientFor implements ClientFactory
func (f ClientFactoryFunc) ClientFor(creds models.BrokerCredentials) (Client, error) {
	return f(creds)
}
