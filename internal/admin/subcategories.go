package admin

import (
	"context"
	"slices"
	"sync"

	"storefront-admin/internal/broadcast"
	"storefront-admin/internal/domain"
	"storefront-admin/internal/localstore"

	"go.uber.org/zap"
)

// Subcategories owns the category name to subcategory names mapping.
// Clearing product references to removed subcategories is left to the caller.
type Subcategories struct {
	persister

	mu            sync.RWMutex
	subcategories domain.SubcategoryMap
}

func NewSubcategories(ctx context.Context, store *localstore.Store, bus *broadcast.Channel, logger *zap.Logger) *Subcategories {
	m := &Subcategories{persister: persister{store: store, bus: bus, logger: logger}}
	m.ReloadFromStorage(ctx)
	return m
}

func (m *Subcategories) All() domain.SubcategoryMap {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subcategories.Clone()
}

func (m *Subcategories) For(category string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.subcategories[category])
}

// Set replaces the list of one category and returns the names it dropped
func (m *Subcategories) Set(ctx context.Context, category string, names []string) []string {
	if names == nil {
		names = []string{}
	}

	m.writeMu.Lock()
	m.mu.Lock()
	removed := m.subcategories.Removed(category, names)
	next := m.subcategories.Clone()
	next[category] = slices.Clone(names)
	m.subcategories = next
	m.mu.Unlock()

	m.commit(ctx, localstore.KeySubcategories, broadcast.EventSubcategoriesUpdated, next)
	m.writeMu.Unlock()
	return removed
}

// Add appends name to category unless it is already listed
func (m *Subcategories) Add(ctx context.Context, category, name string) bool {
	m.writeMu.Lock()
	m.mu.Lock()
	if slices.Contains(m.subcategories[category], name) {
		m.mu.Unlock()
		m.writeMu.Unlock()
		return false
	}
	next := m.subcategories.Clone()
	next[category] = append(next[category], name)
	m.subcategories = next
	m.mu.Unlock()

	m.commit(ctx, localstore.KeySubcategories, broadcast.EventSubcategoriesUpdated, next)
	m.writeMu.Unlock()
	return true
}

// Remove drops name from category and reports whether it was listed
func (m *Subcategories) Remove(ctx context.Context, category, name string) bool {
	m.writeMu.Lock()
	m.mu.Lock()
	current := m.subcategories[category]
	idx := slices.Index(current, name)
	if idx < 0 {
		m.mu.Unlock()
		m.writeMu.Unlock()
		return false
	}
	next := m.subcategories.Clone()
	next[category] = slices.Delete(next[category], idx, idx+1)
	m.subcategories = next
	m.mu.Unlock()

	m.commit(ctx, localstore.KeySubcategories, broadcast.EventSubcategoriesUpdated, next)
	m.writeMu.Unlock()
	return true
}

// Merge replaces the lists of every category present in subcategories
func (m *Subcategories) Merge(ctx context.Context, subcategories domain.SubcategoryMap) {
	m.writeMu.Lock()
	m.mu.Lock()
	next := m.subcategories.Clone()
	for category, names := range subcategories {
		next[category] = slices.Clone(names)
	}
	m.subcategories = next
	m.mu.Unlock()

	m.commit(ctx, localstore.KeySubcategories, broadcast.EventSubcategoriesUpdated, next)
	m.writeMu.Unlock()
}

func (m *Subcategories) ReloadFromStorage(ctx context.Context) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	subcategories := localstore.Load(ctx, m.store, localstore.KeySubcategories, domain.SubcategoryMap{})
	if subcategories == nil {
		subcategories = domain.SubcategoryMap{}
	}

	m.mu.Lock()
	m.subcategories = subcategories
	m.mu.Unlock()
}
