package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rumor-ml/commons.systems/fintrack/internal/domain"
	"github.com/rumor-ml/commons.systems/fintrack/internal/errs"
	"github.com/rumor-ml/commons.systems/fintrack/internal/store"
)

// Notifications manages per-user alert documents.
type Notifications struct {
	st  store.Store
	now func() time.Time
}

func NewNotifications(st store.Store) *Notifications {
	return &Notifications{st: st, now: time.Now}
}

// stageBudgetAlert writes a budget-threshold notification inside tx.
func (n *Notifications) stageBudgetAlert(tx store.Tx, userID, categoryName string, percent float64) (*domain.Notification, error) {
	note := &domain.Notification{
		ID:        n.st.NewID(domain.CollNotifications),
		UserID:    userID,
		Message:   fmt.Sprintf("You have used %.0f%% of your %s budget.", percent, categoryName),
		Kind:      domain.NotificationBudgetAlert,
		Read:      false,
		CreatedAt: n.now(),
	}
	if err := tx.Set(domain.CollNotifications, note.ID, domain.NotificationDoc(note)); err != nil {
		return nil, err
	}
	return note, nil
}

// StageSubscriptionRenewal records a renewal reminder inside tx.
func (n *Notifications) StageSubscriptionRenewal(tx store.Tx, userID, serviceName string, renewsAt time.Time) (*domain.Notification, error) {
	note := &domain.Notification{
		ID:        n.st.NewID(domain.CollNotifications),
		UserID:    userID,
		Message:   fmt.Sprintf("Your %s subscription renews on %s.", serviceName, renewsAt.Format("2006-01-02")),
		Kind:      domain.NotificationSubscriptionRenews,
		Read:      false,
		CreatedAt: n.now(),
	}
	if err := tx.Set(domain.CollNotifications, note.ID, domain.NotificationDoc(note)); err != nil {
		return nil, err
	}
	return note, nil
}

// Unread returns the user's unread notifications, newest first.
func (n *Notifications) Unread(ctx context.Context, userID string) ([]*domain.Notification, error) {
	if userID == "" {
		return nil, errs.Validationf("user id is required")
	}
	docs, err := n.st.Query(ctx, domain.CollNotifications,
		store.Where("user_id", store.Equal, userID),
		store.Where("read", store.Equal, false),
	)
	if err != nil {
		return nil, err
	}
	notes := make([]*domain.Notification, 0, len(docs))
	for _, d := range docs {
		notes = append(notes, domain.NotificationFromDoc(d.ID, d.Data))
	}
	sortNotifications(notes)
	return notes, nil
}

// ListForUser returns all of the user's notifications, newest first.
func (n *Notifications) ListForUser(ctx context.Context, userID string) ([]*domain.Notification, error) {
	if userID == "" {
		return nil, errs.Validationf("user id is required")
	}
	docs, err := n.st.Query(ctx, domain.CollNotifications,
		store.Where("user_id", store.Equal, userID),
	)
	if err != nil {
		return nil, err
	}
	notes := make([]*domain.Notification, 0, len(docs))
	for _, d := range docs {
		notes = append(notes, domain.NotificationFromDoc(d.ID, d.Data))
	}
	sortNotifications(notes)
	return notes, nil
}

// MarkRead flags one notification as read.
func (n *Notifications) MarkRead(ctx context.Context, userID, notificationID string) error {
	if userID == "" || notificationID == "" {
		return errs.Validationf("user id and notification id are required")
	}
	return n.st.RunTransaction(ctx, func(tx store.Tx) error {
		doc, err := tx.Get(domain.CollNotifications, notificationID)
		if err != nil {
			if errs.IsNotFound(err) {
				return errs.NotFound("notification", notificationID)
			}
			return err
		}
		note := domain.NotificationFromDoc(doc.ID, doc.Data)
		if note.UserID != userID {
			return errs.NotFound("notification", notificationID)
		}
		return tx.Update(domain.CollNotifications, notificationID, map[string]any{"read": true})
	})
}

func sortNotifications(notes []*domain.Notification) {
	sort.Slice(notes, func(i, j int) bool {
		return notes[i].CreatedAt.After(notes[j].CreatedAt)
	})
}
