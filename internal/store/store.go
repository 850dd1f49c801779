// Package store abstracts the document store behind the ledger: keyed
// get/set/update/delete, equality/range queries, and an atomic transaction
// primitive with bounded retry. The Firestore-backed Client is the production
// implementation; Memory is a deterministic fake for tests.
package store

import "context"

// Op is a query comparison operator. The store's query layer supports only
// these three; anything richer is filtered in memory by the caller.
type Op string

const (
	Equal          Op = "=="
	GreaterOrEqual Op = ">="
	LessOrEqual    Op = "<="
)

// Predicate is a single field comparison pushed down to the store.
type Predicate struct {
	Field string
	Op    Op
	Value any
}

// Where builds a predicate.
func Where(field string, op Op, value any) Predicate {
	return Predicate{Field: field, Op: op, Value: value}
}

// Doc is a raw document: its id plus the stored field map.
type Doc struct {
	ID   string
	Data map[string]any
}

// Tx mirrors the non-transactional operations inside an atomic transaction.
// The Firestore implementation requires every read (Get, Query) to happen
// before the first write; services are structured around that constraint.
type Tx interface {
	Get(collection, id string) (Doc, error)
	Query(collection string, preds ...Predicate) ([]Doc, error)
	Set(collection, id string, data map[string]any) error
	Update(collection, id string, fields map[string]any) error
	Delete(collection, id string) error
}

// Store is the document store interface the services are built against.
type Store interface {
	// Get returns the document or a NotFoundError.
	Get(ctx context.Context, collection, id string) (Doc, error)
	// Query returns all documents matching every predicate.
	Query(ctx context.Context, collection string, preds ...Predicate) ([]Doc, error)
	// Set writes a document, assigning an id when the given one is empty,
	// and returns the document id.
	Set(ctx context.Context, collection, id string, data map[string]any) (string, error)
	// Update merges the given fields into a document, creating it when
	// absent.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	// Delete removes a document. Deleting an absent document is a no-op.
	Delete(ctx context.Context, collection, id string) error
	// NewID allocates a fresh document id without writing anything, so ids
	// can be assigned to documents staged inside a transaction.
	NewID(collection string) string
	// RunTransaction runs fn atomically, retrying a bounded number of times
	// on write conflict before surfacing a ConflictError.
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
