package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rumor-ml/commons.systems/fintrack/internal/errs"
)

// Memory is an in-memory Store for tests and local development. Queries
// return documents in insertion order, and transactions run serialized
// against a scratch copy of the data, giving read-your-writes semantics
// without conflicts.
type Memory struct {
	mu   sync.RWMutex
	cols map[string]*memCollection
}

var _ Store = (*Memory)(nil)

type memCollection struct {
	docs  map[string]map[string]any
	order []string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{cols: map[string]*memCollection{}}
}

// Get retrieves a document by id.
func (m *Memory) Get(ctx context.Context, collection, id string) (Doc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return getFrom(m.cols, collection, id)
}

// Query returns matching documents in insertion order.
func (m *Memory) Query(ctx context.Context, collection string, preds ...Predicate) ([]Doc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return queryFrom(m.cols, collection, preds)
}

// Set writes a document, allocating a random id when none is given.
func (m *Memory) Set(ctx context.Context, collection, id string, data map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return setIn(m.cols, collection, id, data)
}

// Update merges fields into a document, creating it when absent.
func (m *Memory) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return updateIn(m.cols, collection, id, fields)
}

// Delete removes a document; absent documents are a no-op.
func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleteIn(m.cols, collection, id)
	return nil
}

// NewID allocates a fresh document id.
func (m *Memory) NewID(collection string) string {
	return uuid.NewString()
}

// RunTransaction runs fn against a scratch copy of the store and commits the
// copy on success. Transactions are serialized, so conflicts cannot occur.
func (m *Memory) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	scratch := cloneCols(m.cols)
	if err := fn(&memTx{cols: scratch}); err != nil {
		return err
	}
	m.cols = scratch
	return nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}

// memTx operates directly on the transaction's scratch copy.
type memTx struct {
	cols map[string]*memCollection
}

func (tx *memTx) Get(collection, id string) (Doc, error) {
	return getFrom(tx.cols, collection, id)
}

func (tx *memTx) Query(collection string, preds ...Predicate) ([]Doc, error) {
	return queryFrom(tx.cols, collection, preds)
}

func (tx *memTx) Set(collection, id string, data map[string]any) error {
	_, err := setIn(tx.cols, collection, id, data)
	return err
}

func (tx *memTx) Update(collection, id string, fields map[string]any) error {
	return updateIn(tx.cols, collection, id, fields)
}

func (tx *memTx) Delete(collection, id string) error {
	deleteIn(tx.cols, collection, id)
	return nil
}

func getFrom(cols map[string]*memCollection, collection, id string) (Doc, error) {
	col, ok := cols[collection]
	if !ok {
		return Doc{}, errs.NotFound(collection, id)
	}
	data, ok := col.docs[id]
	if !ok {
		return Doc{}, errs.NotFound(collection, id)
	}
	return Doc{ID: id, Data: cloneDoc(data)}, nil
}

func queryFrom(cols map[string]*memCollection, collection string, preds []Predicate) ([]Doc, error) {
	col, ok := cols[collection]
	if !ok {
		return nil, nil
	}
	var out []Doc
	for _, id := range col.order {
		data, ok := col.docs[id]
		if !ok {
			continue
		}
		if matchesAll(data, preds) {
			out = append(out, Doc{ID: id, Data: cloneDoc(data)})
		}
	}
	return out, nil
}

func setIn(cols map[string]*memCollection, collection, id string, data map[string]any) (string, error) {
	col, ok := cols[collection]
	if !ok {
		col = &memCollection{docs: map[string]map[string]any{}}
		cols[collection] = col
	}
	if id == "" {
		id = uuid.NewString()
	}
	if _, exists := col.docs[id]; !exists {
		col.order = append(col.order, id)
	}
	col.docs[id] = cloneDoc(data)
	return id, nil
}

func updateIn(cols map[string]*memCollection, collection, id string, fields map[string]any) error {
	col, ok := cols[collection]
	if !ok {
		col = &memCollection{docs: map[string]map[string]any{}}
		cols[collection] = col
	}
	existing, ok := col.docs[id]
	if !ok {
		existing = map[string]any{}
		col.order = append(col.order, id)
		col.docs[id] = existing
	}
	for k, v := range cloneDoc(fields) {
		existing[k] = v
	}
	return nil
}

func deleteIn(cols map[string]*memCollection, collection, id string) {
	col, ok := cols[collection]
	if !ok {
		return
	}
	if _, exists := col.docs[id]; !exists {
		return
	}
	delete(col.docs, id)
	for i, docID := range col.order {
		if docID == id {
			col.order = append(col.order[:i], col.order[i+1:]...)
			break
		}
	}
}

func matchesAll(data map[string]any, preds []Predicate) bool {
	for _, p := range preds {
		cmp, ok := compareValues(data[p.Field], p.Value)
		if !ok {
			return false
		}
		switch p.Op {
		case Equal:
			if cmp != 0 {
				return false
			}
		case GreaterOrEqual:
			if cmp < 0 {
				return false
			}
		case LessOrEqual:
			if cmp > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compareValues orders two document values of the same kind. Numbers compare
// across integer and float widths, like the real store does.
func compareValues(a, b any) (int, bool) {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		switch {
		case at.Before(bt):
			return -1, true
		case at.After(bt):
			return 1, true
		}
		return 0, true
	}

	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		if !ok {
			return 0, false
		}
		switch {
		case as < bs:
			return -1, true
		case as > bs:
			return 1, true
		}
		return 0, true
	}

	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if ab == bb {
			return 0, true
		}
		return 1, true // booleans only support equality checks
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}

	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func cloneDoc(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case []string:
		return append([]string(nil), val...)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]float64:
		out := make(map[string]float64, len(val))
		for k, f := range val {
			out[k] = f
		}
		return out
	case map[string]any:
		return cloneDoc(val)
	}
	return v
}

func cloneCols(cols map[string]*memCollection) map[string]*memCollection {
	out := make(map[string]*memCollection, len(cols))
	for name, col := range cols {
		docs := make(map[string]map[string]any, len(col.docs))
		for id, data := range col.docs {
			docs[id] = cloneDoc(data)
		}
		out[name] = &memCollection{
			docs:  docs,
			order: append([]string(nil), col.order...),
		}
	}
	return out
}
