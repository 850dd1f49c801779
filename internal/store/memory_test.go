package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/fintrack/internal/errs"
)

func TestMemory_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id, err := m.Set(ctx, "things", "", map[string]any{"name": "first"})
	require.NoError(t, err)
	require.NotEmpty(t, id, "empty id should be auto-assigned")

	doc, err := m.Get(ctx, "things", id)
	require.NoError(t, err)
	assert.Equal(t, "first", doc.Data["name"])

	require.NoError(t, m.Delete(ctx, "things", id))
	_, err = m.Get(ctx, "things", id)
	assert.True(t, errs.IsNotFound(err))

	// Deleting again is a no-op.
	assert.NoError(t, m.Delete(ctx, "things", id))
}

func TestMemory_Update(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Set(ctx, "things", "a", map[string]any{"name": "one", "count": 1})
	require.NoError(t, err)

	require.NoError(t, m.Update(ctx, "things", "a", map[string]any{"count": 2}))

	doc, err := m.Get(ctx, "things", "a")
	require.NoError(t, err)
	assert.Equal(t, "one", doc.Data["name"], "untouched fields survive a merge")
	assert.Equal(t, 2, doc.Data["count"])

	// Merge-style update creates an absent document.
	require.NoError(t, m.Update(ctx, "things", "missing", map[string]any{"count": 1}))
	doc, err = m.Get(ctx, "things", "missing")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Data["count"])
}

func TestMemory_QueryPredicates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, amount := range []float64{10, 20, 30} {
		_, err := m.Set(ctx, "events", "", map[string]any{
			"user_id": "u1",
			"amount":  amount,
			"at":      base.AddDate(0, 0, i),
		})
		require.NoError(t, err)
	}
	_, err := m.Set(ctx, "events", "", map[string]any{
		"user_id": "u2",
		"amount":  99.0,
		"at":      base,
	})
	require.NoError(t, err)

	docs, err := m.Query(ctx, "events", Where("user_id", Equal, "u1"))
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	docs, err = m.Query(ctx, "events",
		Where("user_id", Equal, "u1"),
		Where("at", GreaterOrEqual, base.AddDate(0, 0, 1)),
		Where("at", LessOrEqual, base.AddDate(0, 0, 1)),
	)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 20.0, docs[0].Data["amount"])
}

func TestMemory_TransactionCommit(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	err := m.RunTransaction(ctx, func(tx Tx) error {
		if err := tx.Set("things", "a", map[string]any{"n": 1}); err != nil {
			return err
		}
		// Transaction-local read-your-writes.
		doc, err := tx.Get("things", "a")
		if err != nil {
			return err
		}
		assert.Equal(t, 1, doc.Data["n"])
		return nil
	})
	require.NoError(t, err)

	doc, err := m.Get(ctx, "things", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Data["n"])
}

func TestMemory_TransactionRollback(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Set(ctx, "things", "a", map[string]any{"n": 1})
	require.NoError(t, err)

	boom := assert.AnError
	err = m.RunTransaction(ctx, func(tx Tx) error {
		if err := tx.Set("things", "a", map[string]any{"n": 2}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	doc, err := m.Get(ctx, "things", "a")
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Data["n"], "failed transaction must not leak writes")
}

func TestMemory_CloneIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	data := map[string]any{"tags": []string{"a"}}
	_, err := m.Set(ctx, "things", "a", data)
	require.NoError(t, err)

	// Mutating the caller's map after Set must not change the stored doc.
	data["tags"].([]string)[0] = "mutated"

	doc, err := m.Get(ctx, "things", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, doc.Data["tags"])
}
