package ledger

import (
	"context"

	"github.com/rumor-ml/commons.systems/fintrack/internal/domain"
	"github.com/rumor-ml/commons.systems/fintrack/internal/errs"
	"github.com/rumor-ml/commons.systems/fintrack/internal/store"
)

// ResetReport counts what a user-data wipe removed, per collection.
type ResetReport struct {
	Expenses      int
	Incomes       int
	Summaries     int
	Balances      int
	Budgets       int
	Monthly       int
	Notifications int
	Subscriptions int
}

// Total returns the number of deleted documents across all collections.
func (r ResetReport) Total() int {
	return r.Expenses + r.Incomes + r.Summaries + r.Balances +
		r.Budgets + r.Monthly + r.Notifications + r.Subscriptions
}

// ResetUserData wipes every document the user owns in one transaction, so a
// concurrent reader sees either all of the old data or none of it. Shared
// category documents are left alone.
func ResetUserData(ctx context.Context, st store.Store, userID string) (*ResetReport, error) {
	if userID == "" {
		return nil, errs.Validationf("user id is required")
	}

	var report *ResetReport
	err := st.RunTransaction(ctx, func(tx store.Tx) error {
		report = &ResetReport{}

		expDocs, err := tx.Query(domain.UserExpenses(userID))
		if err != nil {
			return err
		}

		owned := store.Where("user_id", store.Equal, userID)
		collections := []struct {
			name  string
			count *int
		}{
			{domain.CollIncomes, &report.Incomes},
			{domain.CollSummaries, &report.Summaries},
			{domain.CollBalances, &report.Balances},
			{domain.CollBudgets, &report.Budgets},
			{domain.CollMonthly, &report.Monthly},
			{domain.CollNotifications, &report.Notifications},
			{domain.CollSubscriptions, &report.Subscriptions},
		}

		// All reads happen before the first delete.
		docsByColl := make([][]store.Doc, len(collections))
		for i, c := range collections {
			docs, err := tx.Query(c.name, owned)
			if err != nil {
				return err
			}
			docsByColl[i] = docs
		}

		for _, d := range expDocs {
			if err := tx.Delete(domain.UserExpenses(userID), d.ID); err != nil {
				return err
			}
			report.Expenses++
		}
		for i, c := range collections {
			for _, d := range docsByColl[i] {
				if err := tx.Delete(c.name, d.ID); err != nil {
					return err
				}
				*c.count++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
