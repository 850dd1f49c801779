package ledger

import (
	"time"

	"github.com/rumor-ml/commons.systems/fintrack/internal/domain"
	"github.com/rumor-ml/commons.systems/fintrack/internal/errs"
	"github.com/rumor-ml/commons.systems/fintrack/internal/store"
)

// Aggregator maintains per-(user, category, year, month) running totals of
// expense amounts. All mutations happen inside the transaction that writes
// the originating expense.
type Aggregator struct{}

// Read returns the summary for the composite key, or nil when none exists
// yet. It is the read half of an apply; callers split read and write when
// their transaction performs further reads in between.
func (Aggregator) Read(tx store.Tx, userID, categoryID string, year, month int) (*domain.CategorySummary, error) {
	id := domain.SummaryID(userID, categoryID, year, month)
	doc, err := tx.Get(domain.CollSummaries, id)
	if err != nil {
		if errs.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return domain.SummaryFromDoc(doc.ID, doc.Data), nil
}

// Apply stages the summary write for a delta against the state read earlier.
// A negative delta is clamped so the running total never goes below zero,
// which keeps one drifted document from corrupting later reversals.
func (Aggregator) Apply(tx store.Tx, userID, categoryID, categoryName string, year, month int, existing *domain.CategorySummary, delta float64, at time.Time) (*domain.CategorySummary, error) {
	id := domain.SummaryID(userID, categoryID, year, month)

	if existing == nil {
		total := domain.Round2(delta)
		if total < 0 {
			total = 0
		}
		sum := &domain.CategorySummary{
			ID:           id,
			UserID:       userID,
			CategoryID:   categoryID,
			CategoryName: categoryName,
			RunningTotal: total,
			Year:         year,
			Month:        month,
			CreatedAt:    at,
			UpdatedAt:    at,
		}
		if err := tx.Set(domain.CollSummaries, id, domain.SummaryDoc(sum)); err != nil {
			return nil, err
		}
		return sum, nil
	}

	total := domain.Round2(existing.RunningTotal + delta)
	if delta < 0 && total < 0 {
		total = 0
	}
	if err := tx.Update(domain.CollSummaries, id, map[string]any{
		"running_total": total,
		"updated_at":    at,
	}); err != nil {
		return nil, err
	}

	updated := *existing
	updated.RunningTotal = total
	updated.UpdatedAt = at
	return &updated, nil
}

// ApplyDelta reads and applies in one call, for transactions that perform no
// reads after this point.
func (a Aggregator) ApplyDelta(tx store.Tx, userID, categoryID, categoryName string, year, month int, delta float64, at time.Time) (*domain.CategorySummary, error) {
	existing, err := a.Read(tx, userID, categoryID, year, month)
	if err != nil {
		return nil, err
	}
	return a.Apply(tx, userID, categoryID, categoryName, year, month, existing, delta, at)
}
