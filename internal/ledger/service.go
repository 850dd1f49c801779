package ledger

import (
	"context"

	"github.com/rumor-ml/commons.systems/fintrack/internal/domain"
	"github.com/rumor-ml/commons.systems/fintrack/internal/store"
)

// Service bundles every ledger component behind one constructor so callers
// wire a single dependency.
type Service struct {
	Categories    *Registry
	Balances      *BalanceLedger
	Expenses      *ExpenseManager
	Incomes       *IncomeManager
	Monthly       *Compiler
	Notifications *Notifications
	Subscriptions *Subscriptions

	st store.Store
}

// NewService wires the ledger components over one store. alertThreshold is
// the budget fraction (0..1] at which spending triggers an alert.
func NewService(st store.Store, alertThreshold float64) *Service {
	registry := NewRegistry(st)
	balances := NewBalanceLedger(st)
	notifications := NewNotifications(st)
	compiler := NewCompiler(st)
	expenses := NewExpenseManager(st, registry, balances, notifications, alertThreshold)

	return &Service{
		Categories:    registry,
		Balances:      balances,
		Expenses:      expenses,
		Incomes:       NewIncomeManager(st, balances, compiler),
		Monthly:       compiler,
		Notifications: notifications,
		Subscriptions: NewSubscriptions(st, expenses, notifications),
		st:            st,
	}
}

// ResetUserData wipes all of the user's documents atomically.
func (s *Service) ResetUserData(ctx context.Context, userID string) (*ResetReport, error) {
	return ResetUserData(ctx, s.st, userID)
}

// BudgetsForPeriod lists the user's budgets for one month.
func (s *Service) BudgetsForPeriod(ctx context.Context, userID string, year, month int) ([]*domain.Budget, error) {
	docs, err := s.st.Query(ctx, domain.CollBudgets,
		store.Where("user_id", store.Equal, userID),
		store.Where("year", store.Equal, year),
		store.Where("month", store.Equal, month),
	)
	if err != nil {
		return nil, err
	}
	budgets := make([]*domain.Budget, 0, len(docs))
	for _, d := range docs {
		budgets = append(budgets, domain.BudgetFromDoc(d.ID, d.Data))
	}
	return budgets, nil
}
