package ledger

import (
	"context"
	"time"

	"github.com/rumor-ml/commons.systems/fintrack/internal/domain"
	"github.com/rumor-ml/commons.systems/fintrack/internal/errs"
	"github.com/rumor-ml/commons.systems/fintrack/internal/store"
)

// Compiler rolls a month's expenses and incomes into one MonthlySummary
// document. Recompute is idempotent: it derives everything from the source
// events and overwrites the stored summary, preserving only the user-set
// savings target.
type Compiler struct {
	st  store.Store
	now func() time.Time
}

func NewCompiler(st store.Store) *Compiler {
	return &Compiler{st: st, now: time.Now}
}

// Recompute rebuilds the summary for (user, year, month) from scratch.
func (c *Compiler) Recompute(ctx context.Context, userID string, year, month int) (*domain.MonthlySummary, error) {
	if userID == "" {
		return nil, errs.Validationf("user id is required")
	}
	if month < 1 || month > 12 {
		return nil, errs.Validationf("month must be between 1 and 12")
	}

	var out *domain.MonthlySummary
	err := c.st.RunTransaction(ctx, func(tx store.Tx) error {
		expenses, incomes, opening, target, err := c.readMonthInputs(tx, userID, year, month)
		if err != nil {
			return err
		}
		out = compileMonthly(userID, year, month, expenses, incomes, opening, c.now())
		out.TargetSavings = target
		return tx.Set(domain.CollMonthly, out.ID, domain.MonthlyDoc(out))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns the stored summary for the period, or NotFoundError.
func (c *Compiler) Get(ctx context.Context, userID string, year, month int) (*domain.MonthlySummary, error) {
	id := domain.MonthlyID(userID, year, month)
	doc, err := c.st.Get(ctx, domain.CollMonthly, id)
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.NotFound("monthly summary", id)
		}
		return nil, err
	}
	return domain.MonthlyFromDoc(doc.ID, doc.Data), nil
}

// SetSavingsTarget stores the user's savings goal, recomputing actual
// savings against fresh month totals in the same transaction.
func (c *Compiler) SetSavingsTarget(ctx context.Context, userID string, year, month int, target float64) (*domain.MonthlySummary, error) {
	if userID == "" {
		return nil, errs.Validationf("user id is required")
	}
	if target < 0 {
		return nil, errs.Validationf("savings target cannot be negative")
	}

	var out *domain.MonthlySummary
	err := c.st.RunTransaction(ctx, func(tx store.Tx) error {
		expenses, incomes, opening, _, err := c.readMonthInputs(tx, userID, year, month)
		if err != nil {
			return err
		}
		out = compileMonthly(userID, year, month, expenses, incomes, opening, c.now())
		out.TargetSavings = target
		return tx.Set(domain.CollMonthly, out.ID, domain.MonthlyDoc(out))
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// readMonthInputs gathers everything a summary rebuild needs in one pass of
// transaction reads: the month's events, the opening balance, and the stored
// savings target to carry over.
func (c *Compiler) readMonthInputs(tx store.Tx, userID string, year, month int) ([]*domain.Expense, []*domain.Income, float64, float64, error) {
	start, end := domain.MonthBounds(year, month)

	expDocs, err := tx.Query(domain.UserExpenses(userID),
		store.Where("occurred_at", store.GreaterOrEqual, start),
		store.Where("occurred_at", store.LessOrEqual, end),
	)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	expenses := make([]*domain.Expense, 0, len(expDocs))
	for _, d := range expDocs {
		expenses = append(expenses, domain.ExpenseFromDoc(d.ID, d.Data))
	}

	incDocs, err := tx.Query(domain.CollIncomes,
		store.Where("user_id", store.Equal, userID),
		store.Where("occurred_at", store.GreaterOrEqual, start),
		store.Where("occurred_at", store.LessOrEqual, end),
	)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	incomes := make([]*domain.Income, 0, len(incDocs))
	for _, d := range incDocs {
		incomes = append(incomes, domain.IncomeFromDoc(d.ID, d.Data))
	}

	balDocs, err := tx.Query(domain.CollBalances,
		store.Where("user_id", store.Equal, userID),
	)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	var opening float64
	if prev := latestBefore(snapshotsFromDocs(balDocs), start); prev != nil {
		opening = prev.Amount
	}

	var target float64
	id := domain.MonthlyID(userID, year, month)
	doc, err := tx.Get(domain.CollMonthly, id)
	if err != nil && !errs.IsNotFound(err) {
		return nil, nil, 0, 0, err
	}
	if err == nil {
		target = domain.MonthlyFromDoc(doc.ID, doc.Data).TargetSavings
	}

	return expenses, incomes, opening, target, nil
}

// compileMonthly is the pure aggregation core: totals, per-category
// breakdowns, and the closing balance derived from the opening balance plus
// the month's net flow.
func compileMonthly(userID string, year, month int, expenses []*domain.Expense, incomes []*domain.Income, opening float64, now time.Time) *domain.MonthlySummary {
	s := &domain.MonthlySummary{
		ID:                domain.MonthlyID(userID, year, month),
		UserID:            userID,
		Year:              year,
		Month:             month,
		OpeningBalance:    domain.Round2(opening),
		IncomeByCategory:  map[string]float64{},
		ExpenseByCategory: map[string]float64{},
		UpdatedAt:         now,
	}

	for _, e := range expenses {
		s.TotalExpense += e.Amount
		key := e.CategoryID
		if key == "" {
			key = "uncategorized"
		}
		s.ExpenseByCategory[key] = domain.Round2(s.ExpenseByCategory[key] + e.Amount)
	}
	for _, in := range incomes {
		s.TotalIncome += in.Amount
		key := in.CategoryID
		if key == "" {
			key = "uncategorized"
		}
		s.IncomeByCategory[key] = domain.Round2(s.IncomeByCategory[key] + in.Amount)
	}

	s.TotalExpense = domain.Round2(s.TotalExpense)
	s.TotalIncome = domain.Round2(s.TotalIncome)
	s.ActualSavings = domain.Round2(s.TotalIncome - s.TotalExpense)
	s.ClosingBalance = domain.Round2(opening + s.TotalIncome - s.TotalExpense)
	return s
}
