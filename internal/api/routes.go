package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()

	// Ledger and analytics per user
	api.HandleFunc("/users/{userID}/trades", handler.ListTrades).Methods("GET")
	api.HandleFunc("/users/{userID}/performance", handler.GetPerformance).Methods("GET")
	api.HandleFunc("/users/{userID}/risk/heat", handler.GetPortfolioHeat).Methods("GET")
	api.HandleFunc("/users/{userID}/reconcile", handler.Reconcile).Methods("POST")

	// Stateless calculators
	api.HandleFunc("/risk/position-size", handler.PositionSize).Methods("POST")
	api.HandleFunc("/risk/risk-reward", handler.RiskReward).Methods("POST")

	return r
}
