package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompositeKeys(t *testing.T) {
	assert.Equal(t, "u1_c9_2026_03", SummaryID("u1", "c9", 2026, 3))
	assert.Equal(t, "u1_c9_2026_11", BudgetID("u1", "c9", 2026, 11))
	assert.Equal(t, "u1_2026_03", MonthlyID("u1", 2026, 3))
}

func TestMonthBounds(t *testing.T) {
	start, end := MonthBounds(2026, 3)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.True(t, end.Before(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, end.After(time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)))

	// December wraps into the next year.
	start, end = MonthBounds(2026, 12)
	assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), start)
	assert.True(t, end.Before(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestMonthKey(t *testing.T) {
	assert.Equal(t, "2026-03", MonthKey(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2026-12", MonthKey(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 10.56, Round2(10.555))
	assert.Equal(t, 10.0, Round2(10.0))
	assert.Equal(t, -3.33, Round2(-3.334))
	assert.Equal(t, 0.1, Round2(0.1))
}

func TestValidateMovementType(t *testing.T) {
	assert.True(t, ValidateMovementType(MovementIncome))
	assert.True(t, ValidateMovementType(MovementExpense))
	assert.True(t, ValidateMovementType(MovementAdjustment))
	assert.False(t, ValidateMovementType("transfer"))
}

func TestUserExpensesPath(t *testing.T) {
	assert.Equal(t, "users/u1/expenses", UserExpenses("u1"))
}

func TestExpenseCodecRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	e := &Expense{
		ID:           "e1",
		UserID:       "u1",
		Description:  "groceries",
		Amount:       45.90,
		OccurredAt:   at,
		CategoryID:   "c1",
		CategoryName: "food",
		Tags:         []string{"market", "weekly"},
		Recurring:    true,
	}

	got := ExpenseFromDoc("e1", ExpenseDoc(e))
	assert.Equal(t, e, got)
}

func TestCodecToleratesIntegerWidths(t *testing.T) {
	// Firestore hands back int64 for numbers written as int.
	doc := map[string]any{
		"user_id":       "u1",
		"category_id":   "c1",
		"running_total": int64(60),
		"year":          int64(2026),
		"month":         int64(3),
	}
	s := SummaryFromDoc("u1_c1_2026_03", doc)
	assert.Equal(t, 60.0, s.RunningTotal)
	assert.Equal(t, 2026, s.Year)
	assert.Equal(t, 3, s.Month)
}

func TestCodecIgnoresUnknownFields(t *testing.T) {
	doc := NotificationDoc(&Notification{UserID: "u1", Message: "hi", Kind: NotificationBudgetAlert})
	doc["legacy_field"] = "whatever"

	n := NotificationFromDoc("n1", doc)
	require.NotNil(t, n)
	assert.Equal(t, "hi", n.Message)
}
