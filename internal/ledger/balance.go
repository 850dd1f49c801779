package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/rumor-ml/commons.systems/fintrack/internal/domain"
	"github.com/rumor-ml/commons.systems/fintrack/internal/errs"
	"github.com/rumor-ml/commons.systems/fintrack/internal/store"
)

// BalanceLedger maintains the append-only sequence of balance snapshots per
// user. The current balance is the snapshot with the greatest recorded_at;
// equal timestamps are broken by the per-user sequence number so "latest" is
// always deterministic.
type BalanceLedger struct {
	st  store.Store
	now func() time.Time
}

// NewBalanceLedger creates a balance ledger over the given store.
func NewBalanceLedger(st store.Store) *BalanceLedger {
	return &BalanceLedger{st: st, now: time.Now}
}

// CurrentBalance returns the user's balance as of the latest snapshot, or 0
// when no snapshot exists.
func (l *BalanceLedger) CurrentBalance(ctx context.Context, userID string) (float64, error) {
	if userID == "" {
		return 0, errs.Validationf("user id is required")
	}
	docs, err := l.st.Query(ctx, domain.CollBalances, store.Where("user_id", store.Equal, userID))
	if err != nil {
		return 0, err
	}
	latest := latestSnapshot(snapshotsFromDocs(docs))
	if latest == nil {
		return 0, nil
	}
	return latest.Amount, nil
}

// History returns all snapshots for the user in ascending (recorded_at, seq)
// order.
func (l *BalanceLedger) History(ctx context.Context, userID string) ([]*domain.Balance, error) {
	if userID == "" {
		return nil, errs.Validationf("user id is required")
	}
	docs, err := l.st.Query(ctx, domain.CollBalances, store.Where("user_id", store.Equal, userID))
	if err != nil {
		return nil, err
	}
	snaps := snapshotsFromDocs(docs)
	sortSnapshots(snaps)
	return snaps, nil
}

// RecordMovement appends a snapshot for a movement in its own transaction.
// Income adds to the current balance, expense subtracts, and adjustment
// replaces it outright.
func (l *BalanceLedger) RecordMovement(ctx context.Context, userID string, amount float64, movement domain.MovementType, referenceID, description string) (*domain.Balance, error) {
	if userID == "" {
		return nil, errs.Validationf("user id is required")
	}
	if !domain.ValidateMovementType(movement) {
		return nil, errs.Validationf("invalid movement type: %s", movement)
	}
	if amount < 0 && movement != domain.MovementAdjustment {
		return nil, errs.Validationf("movement amount cannot be negative")
	}

	var snap *domain.Balance
	err := l.st.RunTransaction(ctx, func(tx store.Tx) error {
		prev, err := l.readLatest(tx, userID)
		if err != nil {
			return err
		}
		snap, err = l.append(tx, prev, userID, amount, movement, referenceID, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// readLatest is the read half of an append, for use inside a larger
// transaction before its first write.
func (l *BalanceLedger) readLatest(tx store.Tx, userID string) (*domain.Balance, error) {
	docs, err := tx.Query(domain.CollBalances, store.Where("user_id", store.Equal, userID))
	if err != nil {
		return nil, err
	}
	return latestSnapshot(snapshotsFromDocs(docs)), nil
}

// append stages the snapshot write against the previously read latest
// snapshot (nil when the user has none).
func (l *BalanceLedger) append(tx store.Tx, prev *domain.Balance, userID string, amount float64, movement domain.MovementType, referenceID, description string) (*domain.Balance, error) {
	var current float64
	var seq int64
	if prev != nil {
		current = prev.Amount
		seq = prev.Seq
	}

	next := current
	switch movement {
	case domain.MovementIncome:
		next = current + amount
	case domain.MovementExpense:
		next = current - amount
	case domain.MovementAdjustment:
		next = amount
	default:
		return nil, errs.Validationf("invalid movement type: %s", movement)
	}

	snap := &domain.Balance{
		ID:             l.st.NewID(domain.CollBalances),
		UserID:         userID,
		Amount:         domain.Round2(next),
		RecordedAt:     l.now(),
		Movement:       movement,
		ReferenceID:    referenceID,
		PreviousAmount: current,
		Description:    description,
		Seq:            seq + 1,
	}
	if err := tx.Set(domain.CollBalances, snap.ID, domain.BalanceDoc(snap)); err != nil {
		return nil, err
	}
	return snap, nil
}

func snapshotsFromDocs(docs []store.Doc) []*domain.Balance {
	snaps := make([]*domain.Balance, 0, len(docs))
	for _, d := range docs {
		snaps = append(snaps, domain.BalanceFromDoc(d.ID, d.Data))
	}
	return snaps
}

// latestSnapshot returns the snapshot with the greatest (recorded_at, seq),
// or nil for an empty slice.
func latestSnapshot(snaps []*domain.Balance) *domain.Balance {
	var latest *domain.Balance
	for _, s := range snaps {
		if latest == nil || snapshotAfter(s, latest) {
			latest = s
		}
	}
	return latest
}

// latestBefore returns the latest snapshot recorded strictly before cutoff,
// or nil. Used for opening balances of a period.
func latestBefore(snaps []*domain.Balance, cutoff time.Time) *domain.Balance {
	var latest *domain.Balance
	for _, s := range snaps {
		if !s.RecordedAt.Before(cutoff) {
			continue
		}
		if latest == nil || snapshotAfter(s, latest) {
			latest = s
		}
	}
	return latest
}

func snapshotAfter(a, b *domain.Balance) bool {
	if !a.RecordedAt.Equal(b.RecordedAt) {
		return a.RecordedAt.After(b.RecordedAt)
	}
	return a.Seq > b.Seq
}

func sortSnapshots(snaps []*domain.Balance) {
	sort.Slice(snaps, func(i, j int) bool {
		return snapshotAfter(snaps[j], snaps[i])
	})
}
