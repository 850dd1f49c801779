// Package ledger implements the consistency core of the finance backend: the
// transaction managers that keep Expense, Income, Balance, CategorySummary,
// and Budget documents mutually consistent. Every multi-document mutation runs
// inside a single store transaction; because the store requires all reads to
// precede the first write within a transaction, each manager performs its
// reads up front and stages writes afterwards.
package ledger

import (
	"context"
	"time"

	"github.com/rumor-ml/commons.systems/fintrack/internal/domain"
	"github.com/rumor-ml/commons.systems/fintrack/internal/errs"
	"github.com/rumor-ml/commons.systems/fintrack/internal/store"
)

// Registry resolves categories by id or name, creating missing ones lazily.
// Resolution happens inside the caller's transaction so that two concurrent
// first uses of a new name cannot both commit a duplicate.
type Registry struct {
	st  store.Store
	now func() time.Time
}

// NewRegistry creates a category registry over the given store.
func NewRegistry(st store.Store) *Registry {
	return &Registry{st: st, now: time.Now}
}

// List returns every known category.
func (r *Registry) List(ctx context.Context) ([]*domain.Category, error) {
	docs, err := r.st.Query(ctx, domain.CollCategories)
	if err != nil {
		return nil, err
	}
	cats := make([]*domain.Category, 0, len(docs))
	for _, d := range docs {
		cats = append(cats, domain.CategoryFromDoc(d.ID, d.Data))
	}
	return cats, nil
}

// GetByName returns the category with the exact (case-sensitive) name, or a
// NotFoundError.
func (r *Registry) GetByName(ctx context.Context, name string) (*domain.Category, error) {
	docs, err := r.st.Query(ctx, domain.CollCategories, store.Where("name", store.Equal, name))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, errs.NotFound("category", name)
	}
	return domain.CategoryFromDoc(docs[0].ID, docs[0].Data), nil
}

// ResolveOrCreate resolves a category by id, falling back to exact-name
// lookup, inside tx. It performs reads only: when the category does not exist
// yet, the returned category carries a freshly allocated id and created is
// true, and the caller must stage the write with Create once all of its
// transaction reads are done. Both identifiers empty resolves to no category.
func (r *Registry) ResolveOrCreate(tx store.Tx, categoryID, categoryName string) (cat *domain.Category, created bool, err error) {
	if categoryID != "" {
		doc, err := tx.Get(domain.CollCategories, categoryID)
		if err == nil {
			return domain.CategoryFromDoc(doc.ID, doc.Data), false, nil
		}
		if !errs.IsNotFound(err) {
			return nil, false, err
		}
		// Stale id; fall back to the name, if any.
	}

	if categoryName == "" {
		return nil, false, nil
	}

	docs, err := tx.Query(domain.CollCategories, store.Where("name", store.Equal, categoryName))
	if err != nil {
		return nil, false, err
	}
	if len(docs) > 0 {
		return domain.CategoryFromDoc(docs[0].ID, docs[0].Data), false, nil
	}

	now := r.now()
	return &domain.Category{
		ID:        r.st.NewID(domain.CollCategories),
		Name:      categoryName,
		CreatedAt: now,
		UpdatedAt: now,
	}, true, nil
}

// Create stages the write for a category returned by ResolveOrCreate with
// created=true.
func (r *Registry) Create(tx store.Tx, cat *domain.Category) error {
	return tx.Set(domain.CollCategories, cat.ID, domain.CategoryDoc(cat))
}
