package forecast

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rumor-ml/commons.systems/fintrack/internal/domain"
	"github.com/rumor-ml/commons.systems/fintrack/internal/errs"
	"github.com/rumor-ml/commons.systems/fintrack/internal/store"
)

// Engine projects per-category budget limits for a coming month from the
// user's recent expense history.
type Engine struct {
	st     store.Store
	policy *Policy
	now    func() time.Time
}

// NewEngine builds an engine over a store with the given policy.
func NewEngine(st store.Store, policy *Policy) *Engine {
	return &Engine{st: st, policy: policy, now: time.Now}
}

// categoryStats is the per-category aggregate over the history window.
type categoryStats struct {
	total       float64
	count       int
	amounts     []float64
	monthTotals map[string]float64
}

// Forecast computes a projected Budget for every known category except the
// policy-excluded ones. Empty history degrades to zero limits with zero
// confidence rather than failing.
//
// The history window is an approximation: it ends on the last instant of the
// month preceding the target and reaches back 30 days per history month, not
// calendar-exact months. That keeps projections stable across month-length
// variation.
func (e *Engine) Forecast(ctx context.Context, userID string, targetYear, targetMonth int) ([]*domain.Budget, error) {
	if userID == "" {
		return nil, errs.Validationf("user id is required")
	}
	if targetMonth < 1 || targetMonth > 12 {
		return nil, errs.Validationf("month must be between 1 and 12")
	}

	targetStart := time.Date(targetYear, time.Month(targetMonth), 1, 0, 0, 0, 0, time.UTC)
	historyEnd := targetStart.Add(-time.Nanosecond)
	historyStart := historyEnd.AddDate(0, 0, -30*e.policy.HistoryMonths)

	catDocs, err := e.st.Query(ctx, domain.CollCategories)
	if err != nil {
		return nil, err
	}
	categories := make([]*domain.Category, 0, len(catDocs))
	for _, d := range catDocs {
		categories = append(categories, domain.CategoryFromDoc(d.ID, d.Data))
	}

	expDocs, err := e.st.Query(ctx, domain.UserExpenses(userID),
		store.Where("occurred_at", store.GreaterOrEqual, historyStart),
		store.Where("occurred_at", store.LessOrEqual, historyEnd),
	)
	if err != nil {
		return nil, err
	}

	stats := make(map[string]*categoryStats)
	distinctMonths := make(map[string]bool)
	for _, d := range expDocs {
		exp := domain.ExpenseFromDoc(d.ID, d.Data)
		monthKey := domain.MonthKey(exp.OccurredAt)
		distinctMonths[monthKey] = true

		s := stats[exp.CategoryID]
		if s == nil {
			s = &categoryStats{monthTotals: map[string]float64{}}
			stats[exp.CategoryID] = s
		}
		s.total += exp.Amount
		s.count++
		s.amounts = append(s.amounts, exp.Amount)
		s.monthTotals[monthKey] += exp.Amount
	}
	windowMonths := make([]string, 0, len(distinctMonths))
	for k := range distinctMonths {
		windowMonths = append(windowMonths, k)
	}
	sort.Strings(windowMonths)

	now := e.now()
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })

	budgets := make([]*domain.Budget, 0, len(categories))
	for _, cat := range categories {
		if e.policy.Excluded(cat.Name) {
			continue
		}
		s := stats[cat.ID]
		if s == nil {
			s = &categoryStats{monthTotals: map[string]float64{}}
		}

		limit := e.projectLimit(s, windowMonths)
		budgets = append(budgets, &domain.Budget{
			ID:                   domain.BudgetID(userID, cat.ID, targetYear, targetMonth),
			UserID:               userID,
			CategoryID:           cat.ID,
			CategoryName:         cat.Name,
			Limit:                limit,
			Period:               fmt.Sprintf("%d-%02d", targetYear, targetMonth),
			Year:                 targetYear,
			Month:                targetMonth,
			IsForecast:           true,
			Confidence:           e.confidence(s),
			SuggestedSavingsRate: e.policy.SavingsRate(cat.Name),
			DataSourceNote:       fmt.Sprintf("forecast from %d expenses over %d months of history", s.count, e.policy.HistoryMonths),
			CreatedAt:            now,
		})
	}
	return budgets, nil
}

// projectLimit turns a category's history into a next-month limit.
// windowMonths is the sorted list of calendar months with any expense
// activity in the window, across all categories; dividing by its length
// rather than by the category's own active months keeps sporadic categories
// from looking like steady monthly spend, and reading the trend off the last
// two window months means an inactive month counts as zero spend.
func (e *Engine) projectLimit(s *categoryStats, windowMonths []string) float64 {
	var mean float64
	if len(windowMonths) > 0 {
		mean = s.total / float64(len(windowMonths))
	}

	trend := 0.0
	if n := len(windowMonths); n >= 2 {
		last := s.monthTotals[windowMonths[n-1]]
		prev := s.monthTotals[windowMonths[n-2]]
		if prev > 0 {
			trend = (last - prev) / prev
		}
	}
	if trend > e.policy.TrendClamp {
		trend = e.policy.TrendClamp
	} else if trend < -e.policy.TrendClamp {
		trend = -e.policy.TrendClamp
	}

	projected := mean * (1 + trend)
	if s.count < e.policy.SparseObservationThreshold {
		var maxMonth float64
		for _, v := range s.monthTotals {
			if v > maxMonth {
				maxMonth = v
			}
		}
		if floor := maxMonth * e.policy.SparseMaxFactor; floor > projected {
			projected = floor
		}
	}
	return domain.Round2(projected)
}

// confidence scores how much history backs a projection. Uses population
// standard deviation over the individual expense amounts.
func (e *Engine) confidence(s *categoryStats) float64 {
	switch {
	case s.count == 0:
		return 0
	case s.count == 1:
		return 0.3
	}

	var sum float64
	for _, v := range s.amounts {
		sum += v
	}
	mean := sum / float64(len(s.amounts))

	// Neutral dispersion when the variance input is degenerate.
	cv := 0.5
	if mean != 0 {
		var variance float64
		for _, v := range s.amounts {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(len(s.amounts))
		cv = math.Sqrt(variance) / mean
	}

	conf := 0.7*math.Min(float64(s.count)/10, 1.0) + 0.3*math.Max(1-cv, 0)
	if conf > 1 {
		conf = 1
	}
	return domain.Round2(conf)
}

// Apply persists forecasted budgets. Existing budgets for the same period
// are left alone unless overwrite is set; each write is transactional so a
// concurrent manual budget edit is not clobbered mid-check.
func (e *Engine) Apply(ctx context.Context, userID string, budgets []*domain.Budget, overwrite bool) ([]*domain.Budget, error) {
	if userID == "" {
		return nil, errs.Validationf("user id is required")
	}

	applied := make([]*domain.Budget, 0, len(budgets))
	err := e.st.RunTransaction(ctx, func(tx store.Tx) error {
		applied = applied[:0]

		// Manually created budgets may live under store-assigned ids, so
		// existence goes through a field query, not the composite key.
		existing := make([]string, len(budgets))
		for i, b := range budgets {
			docs, err := tx.Query(domain.CollBudgets,
				store.Where("user_id", store.Equal, userID),
				store.Where("category_id", store.Equal, b.CategoryID),
				store.Where("year", store.Equal, b.Year),
				store.Where("month", store.Equal, b.Month),
			)
			if err != nil {
				return err
			}
			if len(docs) > 0 {
				existing[i] = docs[0].ID
			}
		}

		for i, b := range budgets {
			if existing[i] != "" && !overwrite {
				continue
			}
			if existing[i] != "" {
				b.ID = existing[i]
			}
			b.IsForecast = true
			if err := tx.Set(domain.CollBudgets, b.ID, domain.BudgetDoc(b)); err != nil {
				return err
			}
			applied = append(applied, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}
