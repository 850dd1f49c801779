// Package domain defines the persisted entities of the finance ledger and
// their document encoding. Every entity is stored as a flat document; ids are
// either store-assigned or deterministic composite keys so that upserts stay
// idempotent.
package domain

import (
	"fmt"
	"math"
	"time"
)

// Collection names. Expenses live in a per-user partition; everything else is
// a top-level collection filtered by user_id.
const (
	CollCategories    = "categories"
	CollSummaries     = "category_summaries"
	CollBalances      = "balances"
	CollBudgets       = "budgets"
	CollIncomes       = "incomes"
	CollMonthly       = "monthly_summaries"
	CollNotifications = "notifications"
	CollSubscriptions = "subscriptions"
)

// UserExpenses returns the per-user expense collection path.
func UserExpenses(userID string) string {
	return "users/" + userID + "/expenses"
}

// MovementType classifies a balance movement.
// Use ValidateMovementType to ensure validity before use.
type MovementType string

const (
	MovementIncome     MovementType = "income"
	MovementExpense    MovementType = "expense"
	MovementAdjustment MovementType = "adjustment"
)

var validMovements = map[MovementType]struct{}{
	MovementIncome: {}, MovementExpense: {}, MovementAdjustment: {},
}

// ValidateMovementType checks if the movement type is valid.
func ValidateMovementType(m MovementType) bool {
	_, ok := validMovements[m]
	return ok
}

// Notification kinds produced by the services.
const (
	NotificationBudgetAlert        = "budget_alert"
	NotificationSubscriptionRenews = "subscription_renewal"
)

// Category is a global spend category, created lazily on first reference by
// name. The id is immutable once created.
type Category struct {
	ID           string
	Name         string
	Description  string
	Color        string
	Icon         string
	MonthlyLimit float64
	DisplayOrder int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expense is a single spend event owned by one user.
type Expense struct {
	ID               string
	UserID           string
	Description      string
	Amount           float64
	OccurredAt       time.Time
	CategoryID       string
	CategoryName     string // denormalized copy of the category's live name
	PaymentMethod    string
	Notes            string
	ReceiptURL       string
	Tags             []string
	Recurring        bool
	Installment      bool
	InstallmentCount int
	InstallmentIndex int
	CreatedAt        time.Time
	UpdatedAt        time.Time
	CreatedBy        string
	UpdatedBy        string
}

// Income is a single money-in event.
type Income struct {
	ID             string
	UserID         string
	Kind           string
	Amount         float64
	OccurredAt     time.Time
	Description    string
	Recurring      bool
	Frequency      string
	NextExpectedAt time.Time
	CategoryID     string
	CategoryName   string
	ReceiptURL     string
	CreatedAt      time.Time
}

// CategorySummary is the maintained running total of expense amounts for one
// (user, category, year, month). Keyed by SummaryID.
type CategorySummary struct {
	ID           string
	UserID       string
	CategoryID   string
	CategoryName string
	RunningTotal float64
	Year         int
	Month        int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Balance is one immutable snapshot of a user's balance plus the movement
// that produced it. Seq increases by one per user snapshot and breaks ties
// between equal RecordedAt values.
type Balance struct {
	ID             string
	UserID         string
	Amount         float64
	RecordedAt     time.Time
	Movement       MovementType
	ReferenceID    string
	PreviousAmount float64
	Description    string
	Seq            int64
}

// Budget is a spending limit for one (user, category, year, month). Keyed by
// BudgetID for forecast upserts; manually created budgets may carry a
// store-assigned id instead.
type Budget struct {
	ID                   string
	UserID               string
	CategoryID           string
	CategoryName         string
	Limit                float64
	SpentSoFar           float64
	Period               string
	Year                 int
	Month                int
	IsForecast           bool
	Confidence           float64
	SuggestedSavingsRate float64
	DataSourceNote       string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// CompositeID returns the deterministic budget document id.
func (b *Budget) CompositeID() string {
	return BudgetID(b.UserID, b.CategoryID, b.Year, b.Month)
}

// MonthlySummary is the derived income/expense/balance rollup of one calendar
// month. It is a cache: the compiler rebuilds it entirely from the underlying
// Expense, Income, and Balance documents.
type MonthlySummary struct {
	ID                string
	UserID            string
	Year              int
	Month             int
	TotalIncome       float64
	TotalExpense      float64
	OpeningBalance    float64
	ClosingBalance    float64
	IncomeByCategory  map[string]float64
	ExpenseByCategory map[string]float64
	TargetSavings     float64
	ActualSavings     float64
	UpdatedAt         time.Time
}

// Notification is a side-effect record surfaced to the user.
type Notification struct {
	ID        string
	UserID    string
	Message   string
	Kind      string
	Read      bool
	CreatedAt time.Time
}

// Subscription is a recurring charge tracked for the user.
type Subscription struct {
	ID           string
	UserID       string
	ServiceName  string
	Amount       float64
	RenewsAt     time.Time
	Frequency    string
	CategoryID   string
	CategoryName string
	Active       bool
	CreatedAt    time.Time
}

// SummaryID returns the composite key for a category summary document.
// Format: {user_id}_{category_id}_{year}_{zero-padded month}.
func SummaryID(userID, categoryID string, year, month int) string {
	return fmt.Sprintf("%s_%s_%d_%02d", userID, categoryID, year, month)
}

// BudgetID returns the composite key for a budget document.
func BudgetID(userID, categoryID string, year, month int) string {
	return fmt.Sprintf("%s_%s_%d_%02d", userID, categoryID, year, month)
}

// MonthlyID returns the composite key for a monthly summary document.
func MonthlyID(userID string, year, month int) string {
	return fmt.Sprintf("%s_%d_%02d", userID, year, month)
}

// MonthBounds returns the inclusive [start, end] instants of a calendar month
// in UTC. End is the last representable instant before the next month.
func MonthBounds(year, month int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0).Add(-time.Nanosecond)
	return start, end
}

// MonthKey returns the "YYYY-MM" bucket key for an instant.
func MonthKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// Round2 rounds an amount to currency precision (2 decimal places).
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
