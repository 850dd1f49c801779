package ledger

import (
	"context"
	"time"

	"github.com/rumor-ml/commons.systems/fintrack/internal/domain"
	"github.com/rumor-ml/commons.systems/fintrack/internal/errs"
	"github.com/rumor-ml/commons.systems/fintrack/internal/store"
)

// Subscriptions tracks recurring services. Creating one also books its first
// charge as a recurring expense so the ledger reflects the money immediately.
type Subscriptions struct {
	st            store.Store
	expenses      *ExpenseManager
	notifications *Notifications
	now           func() time.Time
}

func NewSubscriptions(st store.Store, expenses *ExpenseManager, notifications *Notifications) *Subscriptions {
	return &Subscriptions{st: st, expenses: expenses, notifications: notifications, now: time.Now}
}

// CreateWithExpense stores the subscription and books its first charge. The
// expense goes through the full expense pipeline, so summaries, budget spent
// tracking, and the balance all pick it up.
func (s *Subscriptions) CreateWithExpense(ctx context.Context, userID string, sub *domain.Subscription) (*domain.Subscription, *domain.Expense, error) {
	if userID == "" {
		return nil, nil, errs.Validationf("user id is required")
	}
	if sub.ServiceName == "" {
		return nil, nil, errs.Validationf("service name is required")
	}
	if sub.Amount < 0 {
		return nil, nil, errs.Validationf("subscription amount cannot be negative")
	}

	now := s.now()
	sub.ID = s.st.NewID(domain.CollSubscriptions)
	sub.UserID = userID
	sub.Active = true
	sub.CreatedAt = now
	if _, err := s.st.Set(ctx, domain.CollSubscriptions, sub.ID, domain.SubscriptionDoc(sub)); err != nil {
		return nil, nil, err
	}

	first := &domain.Expense{
		Description:  sub.ServiceName,
		Amount:       sub.Amount,
		OccurredAt:   now,
		CategoryID:   sub.CategoryID,
		CategoryName: sub.CategoryName,
		Recurring:    true,
	}
	res, err := s.expenses.Create(ctx, userID, first)
	if err != nil {
		return nil, nil, err
	}

	if !sub.RenewsAt.IsZero() {
		err := s.st.RunTransaction(ctx, func(tx store.Tx) error {
			_, err := s.notifications.StageSubscriptionRenewal(tx, userID, sub.ServiceName, sub.RenewsAt)
			return err
		})
		if err != nil {
			return nil, nil, err
		}
	}
	return sub, res.Expense, nil
}

// ActiveForUser returns the user's active subscriptions.
func (s *Subscriptions) ActiveForUser(ctx context.Context, userID string) ([]*domain.Subscription, error) {
	if userID == "" {
		return nil, errs.Validationf("user id is required")
	}
	docs, err := s.st.Query(ctx, domain.CollSubscriptions,
		store.Where("user_id", store.Equal, userID),
		store.Where("active", store.Equal, true),
	)
	if err != nil {
		return nil, err
	}
	subs := make([]*domain.Subscription, 0, len(docs))
	for _, d := range docs {
		subs = append(subs, domain.SubscriptionFromDoc(d.ID, d.Data))
	}
	return subs, nil
}

// Cancel deactivates a subscription without touching past expenses.
func (s *Subscriptions) Cancel(ctx context.Context, userID, subscriptionID string) error {
	if userID == "" || subscriptionID == "" {
		return errs.Validationf("user id and subscription id are required")
	}
	return s.st.RunTransaction(ctx, func(tx store.Tx) error {
		doc, err := tx.Get(domain.CollSubscriptions, subscriptionID)
		if err != nil {
			if errs.IsNotFound(err) {
				return errs.NotFound("subscription", subscriptionID)
			}
			return err
		}
		sub := domain.SubscriptionFromDoc(doc.ID, doc.Data)
		if sub.UserID != userID {
			return errs.NotFound("subscription", subscriptionID)
		}
		return tx.Update(domain.CollSubscriptions, subscriptionID, map[string]any{"active": false})
	})
}
