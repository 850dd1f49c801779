package ledger

import (
	"context"
	"time"

	"github.com/rumor-ml/commons.systems/fintrack/internal/domain"
	"github.com/rumor-ml/commons.systems/fintrack/internal/errs"
	"github.com/rumor-ml/commons.systems/fintrack/internal/store"
)

// IncomeManager registers money-in events. Register is one transaction
// covering the income document, the balance snapshot, and the refreshed
// monthly summary, so a reader never observes an income without its
// downstream effects.
type IncomeManager struct {
	st       store.Store
	balances *BalanceLedger
	compiler *Compiler
	now      func() time.Time
}

func NewIncomeManager(st store.Store, balances *BalanceLedger, compiler *Compiler) *IncomeManager {
	return &IncomeManager{st: st, balances: balances, compiler: compiler, now: time.Now}
}

// Register persists the income and folds it into the balance ledger and the
// month's summary atomically.
func (m *IncomeManager) Register(ctx context.Context, userID string, in *domain.Income) (*domain.Income, *domain.MonthlySummary, error) {
	if userID == "" {
		return nil, nil, errs.Validationf("user id is required")
	}
	if in.Amount < 0 {
		return nil, nil, errs.Validationf("income amount cannot be negative")
	}

	now := m.now()
	if in.OccurredAt.IsZero() {
		in.OccurredAt = now
	}
	year, month := in.OccurredAt.Year(), int(in.OccurredAt.Month())

	var monthly *domain.MonthlySummary
	err := m.st.RunTransaction(ctx, func(tx store.Tx) error {
		// Reads. The month's stored events do not yet include this income,
		// so it is appended to the compile input by hand below.
		expenses, incomes, opening, target, err := m.compiler.readMonthInputs(tx, userID, year, month)
		if err != nil {
			return err
		}
		prev, err := m.balances.readLatest(tx, userID)
		if err != nil {
			return err
		}

		// Writes.
		in.ID = m.st.NewID(domain.CollIncomes)
		in.UserID = userID
		in.CreatedAt = now
		if err := tx.Set(domain.CollIncomes, in.ID, domain.IncomeDoc(in)); err != nil {
			return err
		}

		if _, err := m.balances.append(tx, prev, userID, in.Amount, domain.MovementIncome, in.ID, "Income: "+in.Description); err != nil {
			return err
		}

		monthly = compileMonthly(userID, year, month, expenses, append(incomes, in), opening, now)
		monthly.TargetSavings = target
		return tx.Set(domain.CollMonthly, monthly.ID, domain.MonthlyDoc(monthly))
	})
	if err != nil {
		return nil, nil, err
	}
	return in, monthly, nil
}

// Get returns one income by id, scoped to the user.
func (m *IncomeManager) Get(ctx context.Context, userID, incomeID string) (*domain.Income, error) {
	if userID == "" || incomeID == "" {
		return nil, errs.Validationf("user id and income id are required")
	}
	doc, err := m.st.Get(ctx, domain.CollIncomes, incomeID)
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, errs.NotFound("income", incomeID)
		}
		return nil, err
	}
	in := domain.IncomeFromDoc(doc.ID, doc.Data)
	if in.UserID != userID {
		return nil, errs.NotFound("income", incomeID)
	}
	return in, nil
}

// ListForMonth returns the user's incomes inside the given period.
func (m *IncomeManager) ListForMonth(ctx context.Context, userID string, year, month int) ([]*domain.Income, error) {
	if userID == "" {
		return nil, errs.Validationf("user id is required")
	}
	start, end := domain.MonthBounds(year, month)
	docs, err := m.st.Query(ctx, domain.CollIncomes,
		store.Where("user_id", store.Equal, userID),
		store.Where("occurred_at", store.GreaterOrEqual, start),
		store.Where("occurred_at", store.LessOrEqual, end),
	)
	if err != nil {
		return nil, err
	}
	incomes := make([]*domain.Income, 0, len(docs))
	for _, d := range docs {
		incomes = append(incomes, domain.IncomeFromDoc(d.ID, d.Data))
	}
	return incomes, nil
}
