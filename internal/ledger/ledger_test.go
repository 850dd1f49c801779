package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/fintrack/internal/domain"
	"github.com/rumor-ml/commons.systems/fintrack/internal/errs"
	"github.com/rumor-ml/commons.systems/fintrack/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	return NewService(st, 0.8), st
}

func march(day int) time.Time {
	return time.Date(2026, 3, day, 12, 0, 0, 0, time.UTC)
}

func createExpense(t *testing.T, svc *Service, user string, amount float64, category string, at time.Time) *domain.Expense {
	t.Helper()
	res, err := svc.Expenses.Create(context.Background(), user, &domain.Expense{
		Description:  "test expense",
		Amount:       amount,
		CategoryName: category,
		OccurredAt:   at,
	})
	require.NoError(t, err)
	return res.Expense
}

func summaryFor(t *testing.T, st *store.Memory, user, catID string, year, month int) *domain.CategorySummary {
	t.Helper()
	doc, err := st.Get(context.Background(), domain.CollSummaries, domain.SummaryID(user, catID, year, month))
	require.NoError(t, err)
	return domain.SummaryFromDoc(doc.ID, doc.Data)
}

func TestSummaryInvariant(t *testing.T) {
	svc, st := newTestService(t)

	e1 := createExpense(t, svc, "u1", 10, "food", march(1))
	createExpense(t, svc, "u1", 20, "food", march(2))
	createExpense(t, svc, "u1", 30, "food", march(3))

	sum := summaryFor(t, st, "u1", e1.CategoryID, 2026, 3)
	assert.Equal(t, 60.0, sum.RunningTotal)

	// Find the 20 expense and delete it.
	var target string
	expenses, err := svc.Expenses.Search(context.Background(), "u1", SearchFilters{})
	require.NoError(t, err)
	for _, e := range expenses {
		if e.Amount == 20 {
			target = e.ID
		}
	}
	require.NotEmpty(t, target)

	deleted, err := svc.Expenses.Delete(context.Background(), "u1", target)
	require.NoError(t, err)
	assert.True(t, deleted)

	sum = summaryFor(t, st, "u1", e1.CategoryID, 2026, 3)
	assert.Equal(t, 40.0, sum.RunningTotal)
}

func TestDeleteMissingExpenseIsNoOp(t *testing.T) {
	svc, _ := newTestService(t)

	deleted, err := svc.Expenses.Delete(context.Background(), "u1", "no-such-expense")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestCreateExpenseValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Expenses.Create(context.Background(), "", &domain.Expense{Amount: 10})
	assert.True(t, errs.IsValidation(err))

	_, err = svc.Expenses.Create(context.Background(), "u1", &domain.Expense{Amount: -5})
	assert.True(t, errs.IsValidation(err))
}

func TestCategoryLazyCreationAndReuse(t *testing.T) {
	svc, _ := newTestService(t)

	e1 := createExpense(t, svc, "u1", 10, "transporte", march(1))
	e2 := createExpense(t, svc, "u2", 15, "transporte", march(2))
	require.NotEmpty(t, e1.CategoryID)
	assert.Equal(t, e1.CategoryID, e2.CategoryID, "same name resolves to the same category")

	cats, err := svc.Categories.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, cats, 1)
}

func TestBalanceMonotonicity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Balances.RecordMovement(ctx, "u1", 100, domain.MovementIncome, "", "pay")
	require.NoError(t, err)
	bal, err := svc.Balances.CurrentBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, bal)

	_, err = svc.Balances.RecordMovement(ctx, "u1", 40, domain.MovementExpense, "", "groceries")
	require.NoError(t, err)
	bal, err = svc.Balances.CurrentBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 60.0, bal)

	// Adjustment replaces the running amount outright.
	_, err = svc.Balances.RecordMovement(ctx, "u1", 500, domain.MovementAdjustment, "", "correction")
	require.NoError(t, err)
	bal, err = svc.Balances.CurrentBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 500.0, bal)

	history, err := svc.Balances.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 0.0, history[0].PreviousAmount)
	assert.Equal(t, 100.0, history[1].PreviousAmount)
	assert.Equal(t, 60.0, history[2].PreviousAmount)
}

func TestExpenseCreateTouchesBalance(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	createExpense(t, svc, "u1", 25, "food", march(1))
	bal, err := svc.Balances.CurrentBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, -25.0, bal)

	history, err := svc.Balances.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.MovementExpense, history[0].Movement)
	assert.NotEmpty(t, history[0].ReferenceID)
}

func TestUpdateReversalAcrossCategories(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	a := createExpense(t, svc, "u1", 100, "x", march(5))
	sum := summaryFor(t, st, "u1", a.CategoryID, 2026, 3)
	require.Equal(t, 100.0, sum.RunningTotal)

	updated := &domain.Expense{
		ID:           a.ID,
		Description:  a.Description,
		Amount:       150,
		CategoryName: "y",
		OccurredAt:   a.OccurredAt,
	}
	got, oldSum, newSum, err := svc.Expenses.Update(ctx, "u1", updated)
	require.NoError(t, err)
	require.NotNil(t, oldSum)
	require.NotNil(t, newSum)

	assert.Equal(t, 0.0, oldSum.RunningTotal, "old category floors at zero")
	assert.Equal(t, 150.0, newSum.RunningTotal)
	assert.NotEqual(t, a.CategoryID, got.CategoryID)

	// Stored documents agree with the returned summaries.
	assert.Equal(t, 0.0, summaryFor(t, st, "u1", a.CategoryID, 2026, 3).RunningTotal)
	assert.Equal(t, 150.0, summaryFor(t, st, "u1", got.CategoryID, 2026, 3).RunningTotal)
}

func TestUpdateSameKeyCollapsesToNetDelta(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	a := createExpense(t, svc, "u1", 100, "x", march(5))

	updated := &domain.Expense{
		ID:           a.ID,
		Amount:       150,
		CategoryID:   a.CategoryID,
		CategoryName: a.CategoryName,
		OccurredAt:   a.OccurredAt,
	}
	_, oldSum, newSum, err := svc.Expenses.Update(ctx, "u1", updated)
	require.NoError(t, err)
	assert.Nil(t, oldSum, "same composite key needs no reversal write")
	require.NotNil(t, newSum)
	assert.Equal(t, 150.0, newSum.RunningTotal)

	assert.Equal(t, 150.0, summaryFor(t, st, "u1", a.CategoryID, 2026, 3).RunningTotal)
}

func TestUpdateMissingExpense(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, _, err := svc.Expenses.Update(context.Background(), "u1", &domain.Expense{
		ID:     "ghost",
		Amount: 10,
	})
	assert.True(t, errs.IsNotFound(err))
}

func TestBudgetSpentTrackingAndAlert(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	// Seed the category and a 100-limit budget for March.
	first := createExpense(t, svc, "u1", 10, "lazer", march(1))
	budgetID := domain.BudgetID("u1", first.CategoryID, 2026, 3)
	_, err := st.Set(ctx, domain.CollBudgets, budgetID, domain.BudgetDoc(&domain.Budget{
		ID:         budgetID,
		UserID:     "u1",
		CategoryID: first.CategoryID,
		Limit:      100,
		Year:       2026,
		Month:      3,
	}))
	require.NoError(t, err)

	// 70 of 100 spent: below the 0.8 threshold, no alert.
	res, err := svc.Expenses.Create(ctx, "u1", &domain.Expense{
		Amount: 70, CategoryID: first.CategoryID, OccurredAt: march(2),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Budget)
	assert.Equal(t, 70.0, res.Budget.SpentSoFar)
	assert.Nil(t, res.Notification)

	// 85 of 100: alert fires.
	res, err = svc.Expenses.Create(ctx, "u1", &domain.Expense{
		Amount: 15, CategoryID: first.CategoryID, OccurredAt: march(3),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Notification)
	assert.Equal(t, 85.0, res.Budget.SpentSoFar)
	assert.Equal(t, domain.NotificationBudgetAlert, res.Notification.Kind)
	assert.Contains(t, res.Notification.Message, "85%")

	unread, err := svc.Notifications.Unread(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, unread, 1)

	require.NoError(t, svc.Notifications.MarkRead(ctx, "u1", unread[0].ID))
	unread, err = svc.Notifications.Unread(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestMarkReadMissingNotification(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Notifications.MarkRead(context.Background(), "u1", "ghost")
	assert.True(t, errs.IsNotFound(err))
}

func TestRegisterIncomeAtomicEffects(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	createExpense(t, svc, "u1", 200, "moradia", march(1))

	in, monthly, err := svc.Incomes.Register(ctx, "u1", &domain.Income{
		Kind:        "salary",
		Amount:      1000,
		OccurredAt:  march(5),
		Description: "paycheck",
	})
	require.NoError(t, err)
	require.NotEmpty(t, in.ID)

	bal, err := svc.Balances.CurrentBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 800.0, bal)

	require.NotNil(t, monthly)
	assert.Equal(t, 1000.0, monthly.TotalIncome)
	assert.Equal(t, 200.0, monthly.TotalExpense)
	assert.Equal(t, 800.0, monthly.ActualSavings)
	assert.Equal(t, 1000.0, monthly.IncomeByCategory["uncategorized"])
}

func TestRecomputeMonthlyIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	createExpense(t, svc, "u1", 300, "food", march(2))
	_, _, err := svc.Incomes.Register(ctx, "u1", &domain.Income{
		Kind: "salary", Amount: 900, OccurredAt: march(1),
	})
	require.NoError(t, err)

	first, err := svc.Monthly.Recompute(ctx, "u1", 2026, 3)
	require.NoError(t, err)
	second, err := svc.Monthly.Recompute(ctx, "u1", 2026, 3)
	require.NoError(t, err)

	assert.Equal(t, first.TotalIncome, second.TotalIncome)
	assert.Equal(t, first.TotalExpense, second.TotalExpense)
	assert.Equal(t, first.ClosingBalance, second.ClosingBalance)
	assert.Equal(t, 600.0, second.ActualSavings)
}

func TestMonthlyBreakdownsKeyedByCategoryID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	food := createExpense(t, svc, "u1", 50, "food", march(2))
	require.NotEmpty(t, food.CategoryID)
	_, _, err := svc.Incomes.Register(ctx, "u1", &domain.Income{
		Kind: "salary", Amount: 100, OccurredAt: march(5), CategoryID: "inc-cat-1",
	})
	require.NoError(t, err)

	monthly, err := svc.Monthly.Recompute(ctx, "u1", 2026, 3)
	require.NoError(t, err)
	assert.Equal(t, 50.0, monthly.ExpenseByCategory[food.CategoryID])
	assert.Equal(t, 100.0, monthly.IncomeByCategory["inc-cat-1"])
	assert.NotContains(t, monthly.ExpenseByCategory, "food")
	assert.NotContains(t, monthly.IncomeByCategory, "salary")
}

func TestRecomputePreservesSavingsTarget(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Monthly.SetSavingsTarget(ctx, "u1", 2026, 3, 250)
	require.NoError(t, err)

	recomputed, err := svc.Monthly.Recompute(ctx, "u1", 2026, 3)
	require.NoError(t, err)
	assert.Equal(t, 250.0, recomputed.TargetSavings)
}

func TestMonthlyOpeningBalanceFromPriorMonth(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// February income sets the opening balance for March. Snapshots are
	// stamped with the ledger clock, so pin it inside February first.
	feb := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	svc.Balances.now = func() time.Time { return feb }
	_, _, err := svc.Incomes.Register(ctx, "u1", &domain.Income{
		Kind: "salary", Amount: 500, OccurredAt: feb,
	})
	require.NoError(t, err)

	svc.Balances.now = func() time.Time { return march(3) }
	createExpense(t, svc, "u1", 100, "food", march(3))

	monthly, err := svc.Monthly.Recompute(ctx, "u1", 2026, 3)
	require.NoError(t, err)
	assert.Equal(t, 500.0, monthly.OpeningBalance)
	assert.Equal(t, 400.0, monthly.ClosingBalance)
}

func TestSearchExpenses(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	createExpense(t, svc, "u1", 10, "food", march(1))
	createExpense(t, svc, "u1", 50, "food", march(10))
	res, err := svc.Expenses.Create(ctx, "u1", &domain.Expense{
		Description:   "monthly bus pass",
		Amount:        30,
		CategoryName:  "transporte",
		OccurredAt:    march(15),
		PaymentMethod: "card",
		Tags:          []string{"commute"},
		Recurring:     true,
	})
	require.NoError(t, err)

	byCategory, err := svc.Expenses.Search(ctx, "u1", SearchFilters{CategoryID: res.Expense.CategoryID})
	require.NoError(t, err)
	assert.Len(t, byCategory, 1)

	min := 20.0
	byAmount, err := svc.Expenses.Search(ctx, "u1", SearchFilters{MinAmount: &min})
	require.NoError(t, err)
	assert.Len(t, byAmount, 2)

	start, end := march(5), march(20)
	byDate, err := svc.Expenses.Search(ctx, "u1", SearchFilters{Start: &start, End: &end})
	require.NoError(t, err)
	assert.Len(t, byDate, 2)

	byText, err := svc.Expenses.Search(ctx, "u1", SearchFilters{Text: "BUS"})
	require.NoError(t, err)
	require.Len(t, byText, 1)
	assert.Equal(t, "monthly bus pass", byText[0].Description)

	byTag, err := svc.Expenses.Search(ctx, "u1", SearchFilters{Tags: []string{"commute", "other"}})
	require.NoError(t, err)
	assert.Len(t, byTag, 1)

	recurring := true
	byFlag, err := svc.Expenses.Search(ctx, "u1", SearchFilters{Recurring: &recurring})
	require.NoError(t, err)
	assert.Len(t, byFlag, 1)
}

func TestSubscriptionBooksFirstExpense(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sub, first, err := svc.Subscriptions.CreateWithExpense(ctx, "u1", &domain.Subscription{
		ServiceName:  "StreamCo",
		Amount:       19.90,
		RenewsAt:     time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		Frequency:    "monthly",
		CategoryName: "lazer",
	})
	require.NoError(t, err)
	assert.True(t, sub.Active)
	require.NotNil(t, first)
	assert.True(t, first.Recurring)
	assert.Equal(t, 19.90, first.Amount)

	subs, err := svc.Subscriptions.ActiveForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, subs, 1)

	// Renewal reminder staged alongside.
	notes, err := svc.Notifications.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.NotificationSubscriptionRenews, notes[0].Kind)

	require.NoError(t, svc.Subscriptions.Cancel(ctx, "u1", sub.ID))
	subs, err = svc.Subscriptions.ActiveForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestResetUserDataRemovesEverything(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	createExpense(t, svc, "u1", 10, "food", march(1))
	_, _, err := svc.Incomes.Register(ctx, "u1", &domain.Income{Kind: "salary", Amount: 100, OccurredAt: march(2)})
	require.NoError(t, err)
	createExpense(t, svc, "other-user", 5, "food", march(1))

	report, err := svc.ResetUserData(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expenses)
	assert.Equal(t, 1, report.Incomes)
	assert.GreaterOrEqual(t, report.Total(), 5)

	expenses, err := svc.Expenses.Search(ctx, "u1", SearchFilters{})
	require.NoError(t, err)
	assert.Empty(t, expenses)

	bal, err := svc.Balances.CurrentBalance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0.0, bal)

	// Other users' data survives.
	others, err := svc.Expenses.Search(ctx, "other-user", SearchFilters{})
	require.NoError(t, err)
	assert.Len(t, others, 1)

	// Shared categories survive.
	docs, err := st.Query(ctx, domain.CollCategories)
	require.NoError(t, err)
	assert.NotEmpty(t, docs)
}
