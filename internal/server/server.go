// Package server wires the HTTP surface: routes, auth, CORS.
package server

import (
	"context"
	"net/http"

	"github.com/rumor-ml/commons.systems/fintrack/internal/forecast"
	"github.com/rumor-ml/commons.systems/fintrack/internal/handlers"
	"github.com/rumor-ml/commons.systems/fintrack/internal/ledger"
	"github.com/rumor-ml/commons.systems/fintrack/internal/middleware"
	"github.com/rumor-ml/commons.systems/fintrack/internal/store"
)

// Server represents the fintrack API server
type Server struct {
	client *store.Client
	mux    *http.ServeMux
}

// New creates a new server instance backed by Firestore.
func New(ctx context.Context, projectID, credentialsFile string, policy *forecast.Policy) (*Server, error) {
	client, err := store.NewClient(ctx, projectID, credentialsFile)
	if err != nil {
		return nil, err
	}

	s := &Server{
		client: client,
		mux:    http.NewServeMux(),
	}
	auth := middleware.NewAuth(middleware.NewFirebaseVerifier(client.Auth()))
	s.setupRoutes(ledger.NewService(client, policy.AlertThreshold), forecast.NewEngine(client, policy), auth)
	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(svc *ledger.Service, engine *forecast.Engine, auth *middleware.Auth) {
	// Health check (no auth required)
	s.mux.HandleFunc("GET /health", handlers.HealthCheck)

	api := handlers.NewAPIHandler(svc, engine)
	protected := func(pattern string, fn http.HandlerFunc) {
		s.mux.Handle(pattern, auth.Require(fn))
	}

	protected("GET /api/categories", api.ListCategories)

	protected("POST /api/expenses", api.CreateExpense)
	protected("GET /api/expenses", api.SearchExpenses)
	protected("GET /api/expenses/{id}", api.GetExpense)
	protected("PUT /api/expenses/{id}", api.UpdateExpense)
	protected("DELETE /api/expenses/{id}", api.DeleteExpense)

	protected("POST /api/incomes", api.RegisterIncome)
	protected("GET /api/incomes", api.ListIncomes)

	protected("GET /api/balance", api.GetBalance)
	protected("GET /api/balance/history", api.GetBalanceHistory)
	protected("POST /api/balance/movements", api.RecordMovement)

	protected("GET /api/summary", api.GetMonthlySummary)
	protected("POST /api/summary/recompute", api.RecomputeMonthlySummary)
	protected("PUT /api/summary/savings-target", api.SetSavingsTarget)

	protected("GET /api/budgets", api.ListBudgets)
	protected("POST /api/budgets/forecast", api.ForecastBudgets)

	protected("GET /api/notifications", api.ListNotifications)
	protected("POST /api/notifications/{id}/read", api.MarkNotificationRead)

	protected("POST /api/subscriptions", api.CreateSubscription)
	protected("GET /api/subscriptions", api.ListSubscriptions)
	protected("POST /api/subscriptions/{id}/cancel", api.CancelSubscription)

	protected("DELETE /api/user/data", api.ResetUserData)
	protected("POST /api/import/ofx", api.ImportOFX)
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return middleware.CORS(s.mux)
}

// Close closes the server resources
func (s *Server) Close() error {
	return s.client.Close()
}
