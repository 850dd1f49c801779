package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/fintrack/internal/domain"
	"github.com/rumor-ml/commons.systems/fintrack/internal/errs"
	"github.com/rumor-ml/commons.systems/fintrack/internal/store"
)

// ExpenseManager creates, updates, deletes, and searches expenses. Each
// mutation is one atomic transaction covering the expense document, lazy
// category creation, the category summary delta, the balance snapshot, and,
// when a budget exists for the period, its spent_so_far counter plus the
// over-threshold alert notification.
type ExpenseManager struct {
	st             store.Store
	registry       *Registry
	summaries      Aggregator
	balances       *BalanceLedger
	notifications  *Notifications
	alertThreshold float64
	now            func() time.Time
}

// NewExpenseManager wires an expense manager from its collaborators.
// alertThreshold is the budget fraction that triggers an alert notification.
func NewExpenseManager(st store.Store, registry *Registry, balances *BalanceLedger, notifications *Notifications, alertThreshold float64) *ExpenseManager {
	return &ExpenseManager{
		st:             st,
		registry:       registry,
		balances:       balances,
		notifications:  notifications,
		alertThreshold: alertThreshold,
		now:            time.Now,
	}
}

// CreateResult carries everything the create transaction touched.
type CreateResult struct {
	Expense      *domain.Expense
	Category     *domain.Category
	Summary      *domain.CategorySummary
	Budget       *domain.Budget
	Notification *domain.Notification
}

// Create persists an expense atomically together with category resolution,
// the summary delta, the balance snapshot, and budget spent tracking.
func (m *ExpenseManager) Create(ctx context.Context, userID string, e *domain.Expense) (*CreateResult, error) {
	if userID == "" {
		return nil, errs.Validationf("user id is required")
	}
	if e.Amount < 0 {
		return nil, errs.Validationf("expense amount cannot be negative")
	}

	now := m.now()
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now
	}
	year, month := e.OccurredAt.Year(), int(e.OccurredAt.Month())

	var res *CreateResult
	err := m.st.RunTransaction(ctx, func(tx store.Tx) error {
		// Reads.
		cat, catCreated, err := m.registry.ResolveOrCreate(tx, e.CategoryID, e.CategoryName)
		if err != nil {
			return err
		}
		if cat != nil {
			e.CategoryID = cat.ID
			e.CategoryName = cat.Name
		}

		existingSum, err := m.summaries.Read(tx, userID, e.CategoryID, year, month)
		if err != nil {
			return err
		}

		budget, err := readBudget(tx, userID, e.CategoryID, year, month)
		if err != nil {
			return err
		}

		prevBalance, err := m.balances.readLatest(tx, userID)
		if err != nil {
			return err
		}

		// Writes.
		if catCreated {
			if err := m.registry.Create(tx, cat); err != nil {
				return err
			}
		}

		e.ID = m.st.NewID(domain.UserExpenses(userID))
		e.UserID = userID
		e.CreatedAt = now
		e.UpdatedAt = now
		e.CreatedBy = userID
		e.UpdatedBy = userID
		if err := tx.Set(domain.UserExpenses(userID), e.ID, domain.ExpenseDoc(e)); err != nil {
			return err
		}

		sum, err := m.summaries.Apply(tx, userID, e.CategoryID, e.CategoryName, year, month, existingSum, e.Amount, now)
		if err != nil {
			return err
		}

		var note *domain.Notification
		if budget != nil {
			budget.SpentSoFar = domain.Round2(budget.SpentSoFar + e.Amount)
			budget.UpdatedAt = now
			if err := tx.Update(domain.CollBudgets, budget.ID, map[string]any{
				"spent_so_far": budget.SpentSoFar,
				"updated_at":   now,
			}); err != nil {
				return err
			}
			if budget.Limit > 0 && budget.SpentSoFar >= m.alertThreshold*budget.Limit {
				percent := budget.SpentSoFar / budget.Limit * 100
				note, err = m.notifications.stageBudgetAlert(tx, userID, e.CategoryName, percent)
				if err != nil {
					return err
				}
			}
		}

		if _, err := m.balances.append(tx, prevBalance, userID, e.Amount, domain.MovementExpense, e.ID, "Expense: "+e.Description); err != nil {
			return err
		}

		res = &CreateResult{Expense: e, Category: cat, Summary: sum, Budget: budget, Notification: note}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Get returns one expense by id.
func (m *ExpenseManager) Get(ctx context.Context, userID, expenseID string) (*domain.Expense, error) {
	if userID == "" || expenseID == "" {
		return nil, errs.Validationf("user id and expense id are required")
	}
	doc, err := m.st.Get(ctx, domain.UserExpenses(userID), expenseID)
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.NotFound("expense", expenseID)
		}
		return nil, err
	}
	return domain.ExpenseFromDoc(doc.ID, doc.Data), nil
}

// Update persists the updated expense and, when amount, category, or date
// changed, reverses the old period's summary delta and applies the new one.
// Same-period changes collapse to a single net delta. The returned old and
// new summaries are nil when no summary was touched; for a net delta only the
// new summary is set.
func (m *ExpenseManager) Update(ctx context.Context, userID string, updated *domain.Expense) (*domain.Expense, *domain.CategorySummary, *domain.CategorySummary, error) {
	if userID == "" {
		return nil, nil, nil, errs.Validationf("user id is required")
	}
	if updated.ID == "" {
		return nil, nil, nil, errs.Validationf("expense id is required")
	}
	if updated.Amount < 0 {
		return nil, nil, nil, errs.Validationf("expense amount cannot be negative")
	}

	now := m.now()
	var oldSum, newSum *domain.CategorySummary

	err := m.st.RunTransaction(ctx, func(tx store.Tx) error {
		oldSum, newSum = nil, nil

		// Reads.
		doc, err := tx.Get(domain.UserExpenses(userID), updated.ID)
		if err != nil {
			if errs.IsNotFound(err) {
				return errs.NotFound("expense", updated.ID)
			}
			return err
		}
		old := domain.ExpenseFromDoc(doc.ID, doc.Data)

		categoryChanged := old.CategoryID != updated.CategoryID || old.CategoryName != updated.CategoryName
		var cat *domain.Category
		var catCreated bool
		if categoryChanged && (updated.CategoryID != "" || updated.CategoryName != "") {
			cat, catCreated, err = m.registry.ResolveOrCreate(tx, updated.CategoryID, updated.CategoryName)
			if err != nil {
				return err
			}
			if cat != nil {
				updated.CategoryID = cat.ID
				updated.CategoryName = cat.Name
			}
		}

		if updated.OccurredAt.IsZero() {
			updated.OccurredAt = old.OccurredAt
		}
		amountChanged := old.Amount != updated.Amount
		dateChanged := !old.OccurredAt.Equal(updated.OccurredAt)
		summaryTouched := amountChanged || categoryChanged || dateChanged

		oldYear, oldMonth := old.OccurredAt.Year(), int(old.OccurredAt.Month())
		newYear, newMonth := updated.OccurredAt.Year(), int(updated.OccurredAt.Month())
		oldKey := domain.SummaryID(userID, old.CategoryID, oldYear, oldMonth)
		newKey := domain.SummaryID(userID, updated.CategoryID, newYear, newMonth)

		var oldExisting, newExisting *domain.CategorySummary
		if summaryTouched {
			oldExisting, err = m.summaries.Read(tx, userID, old.CategoryID, oldYear, oldMonth)
			if err != nil {
				return err
			}
			if newKey != oldKey {
				newExisting, err = m.summaries.Read(tx, userID, updated.CategoryID, newYear, newMonth)
				if err != nil {
					return err
				}
			}
		}

		// Writes.
		if catCreated {
			if err := m.registry.Create(tx, cat); err != nil {
				return err
			}
		}

		updated.UserID = userID
		updated.CreatedAt = old.CreatedAt
		updated.CreatedBy = old.CreatedBy
		updated.UpdatedAt = now
		updated.UpdatedBy = userID
		if err := tx.Set(domain.UserExpenses(userID), updated.ID, domain.ExpenseDoc(updated)); err != nil {
			return err
		}

		if !summaryTouched {
			return nil
		}

		if newKey == oldKey {
			newSum, err = m.summaries.Apply(tx, userID, updated.CategoryID, updated.CategoryName, newYear, newMonth, oldExisting, updated.Amount-old.Amount, now)
			return err
		}

		oldSum, err = m.summaries.Apply(tx, userID, old.CategoryID, old.CategoryName, oldYear, oldMonth, oldExisting, -old.Amount, now)
		if err != nil {
			return err
		}
		newSum, err = m.summaries.Apply(tx, userID, updated.CategoryID, updated.CategoryName, newYear, newMonth, newExisting, updated.Amount, now)
		return err
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return updated, oldSum, newSum, nil
}

// Delete removes an expense and reverses its summary delta. A missing
// expense is an idempotent no-op reported as false, not an error.
func (m *ExpenseManager) Delete(ctx context.Context, userID, expenseID string) (bool, error) {
	if userID == "" || expenseID == "" {
		return false, errs.Validationf("user id and expense id are required")
	}

	deleted := false
	err := m.st.RunTransaction(ctx, func(tx store.Tx) error {
		deleted = false

		doc, err := tx.Get(domain.UserExpenses(userID), expenseID)
		if err != nil {
			if errs.IsNotFound(err) {
				return nil
			}
			return err
		}
		e := domain.ExpenseFromDoc(doc.ID, doc.Data)
		year, month := e.OccurredAt.Year(), int(e.OccurredAt.Month())

		if _, err := m.summaries.ApplyDelta(tx, userID, e.CategoryID, e.CategoryName, year, month, -e.Amount, m.now()); err != nil {
			return err
		}
		if err := tx.Delete(domain.UserExpenses(userID), expenseID); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// SearchFilters are the accepted expense search criteria. Category, date
// range, payment method, and the two boolean flags are pushed down to the
// store; amount range, tag membership, and free-text match are applied in
// memory because the store's query layer cannot express them.
type SearchFilters struct {
	CategoryID    string
	Start         *time.Time
	End           *time.Time
	PaymentMethod string
	Recurring     *bool
	Installment   *bool
	MinAmount     *float64
	MaxAmount     *float64
	Tags          []string
	Text          string
}

// Search returns the user's expenses matching all filters.
func (m *ExpenseManager) Search(ctx context.Context, userID string, f SearchFilters) ([]*domain.Expense, error) {
	if userID == "" {
		return nil, errs.Validationf("user id is required")
	}

	var preds []store.Predicate
	if f.CategoryID != "" {
		preds = append(preds, store.Where("category_id", store.Equal, f.CategoryID))
	}
	if f.Start != nil {
		preds = append(preds, store.Where("occurred_at", store.GreaterOrEqual, *f.Start))
	}
	if f.End != nil {
		preds = append(preds, store.Where("occurred_at", store.LessOrEqual, *f.End))
	}
	if f.PaymentMethod != "" {
		preds = append(preds, store.Where("payment_method", store.Equal, f.PaymentMethod))
	}
	if f.Recurring != nil {
		preds = append(preds, store.Where("recurring", store.Equal, *f.Recurring))
	}
	if f.Installment != nil {
		preds = append(preds, store.Where("installment", store.Equal, *f.Installment))
	}

	docs, err := m.st.Query(ctx, domain.UserExpenses(userID), preds...)
	if err != nil {
		return nil, err
	}

	var out []*domain.Expense
	for _, d := range docs {
		e := domain.ExpenseFromDoc(d.ID, d.Data)
		if matchesMemoryFilters(e, f) {
			out = append(out, e)
		}
	}
	return out, nil
}

func matchesMemoryFilters(e *domain.Expense, f SearchFilters) bool {
	if f.MinAmount != nil && e.Amount < *f.MinAmount {
		return false
	}
	if f.MaxAmount != nil && e.Amount > *f.MaxAmount {
		return false
	}
	if len(f.Tags) > 0 && !hasAnyTag(e.Tags, f.Tags) {
		return false
	}
	if f.Text != "" {
		needle := strings.ToLower(f.Text)
		if !strings.Contains(strings.ToLower(e.Description), needle) &&
			!strings.Contains(strings.ToLower(e.Notes), needle) {
			return false
		}
	}
	return true
}

func hasAnyTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// readBudget returns the budget for (user, category, period) inside tx, or
// nil when none exists. Manually created budgets may carry a store-assigned
// id, so lookup goes through a field query rather than the composite key.
func readBudget(tx store.Tx, userID, categoryID string, year, month int) (*domain.Budget, error) {
	docs, err := tx.Query(domain.CollBudgets,
		store.Where("user_id", store.Equal, userID),
		store.Where("category_id", store.Equal, categoryID),
		store.Where("year", store.Equal, year),
		store.Where("month", store.Equal, month),
	)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return domain.BudgetFromDoc(docs[0].ID, docs[0].Data), nil
}
