package admin

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"storefront-admin/internal/broadcast"
	"storefront-admin/internal/domain"
	"storefront-admin/internal/localstore"
	"storefront-admin/internal/repository"

	"go.uber.org/zap"
)

// Products owns the product catalog. Mutations are pushed to the hosted
// database after the local commit; failed pushes keep the local change.
type Products struct {
	persister
	remote   repository.ProductRepository
	resolver ImageResolver
	now      func() time.Time

	mu       sync.RWMutex
	products []domain.Product
}

func NewProducts(
	ctx context.Context,
	store *localstore.Store,
	bus *broadcast.Channel,
	remote repository.ProductRepository,
	resolver ImageResolver,
	logger *zap.Logger,
) *Products {
	m := &Products{
		persister: persister{store: store, bus: bus, logger: logger},
		remote:    remote,
		resolver:  resolver,
		now:       func() time.Time { return time.Now().UTC() },
	}
	m.ReloadFromStorage(ctx)
	return m
}

func (m *Products) All() []domain.Product {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.products)
}

func (m *Products) Get(id string) (domain.Product, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx := m.indexOf(id)
	if idx < 0 {
		return domain.Product{}, false
	}
	return m.products[idx], true
}

// Create adds a product with a fresh UUID when its id is missing or invalid
func (m *Products) Create(ctx context.Context, product domain.Product) (domain.Product, error) {
	product.EnsureID()
	product.Normalize()
	if err := m.resolveImages(ctx, &product); err != nil {
		return domain.Product{}, err
	}
	now := m.now()
	product.CreatedAt = now
	product.UpdatedAt = now

	m.writeMu.Lock()
	m.mu.Lock()
	next := append(slices.Clone(m.products), product)
	m.products = next
	m.mu.Unlock()

	m.commit(ctx, localstore.KeyProducts, broadcast.EventProductsUpdated, next)
	m.writeMu.Unlock()

	return product, m.push(ctx, product)
}

// Update replaces the product with the same id, keeping its creation time
func (m *Products) Update(ctx context.Context, product domain.Product) (domain.Product, error) {
	product.Normalize()
	if err := m.resolveImages(ctx, &product); err != nil {
		return domain.Product{}, err
	}

	m.writeMu.Lock()
	m.mu.Lock()
	idx := m.indexOf(product.ID)
	if idx < 0 {
		m.mu.Unlock()
		m.writeMu.Unlock()
		return domain.Product{}, ErrProductNotFound
	}
	product.CreatedAt = m.products[idx].CreatedAt
	product.UpdatedAt = m.now()
	next := slices.Clone(m.products)
	next[idx] = product
	m.products = next
	m.mu.Unlock()

	m.commit(ctx, localstore.KeyProducts, broadcast.EventProductsUpdated, next)
	m.writeMu.Unlock()

	return product, m.push(ctx, product)
}

func (m *Products) Delete(ctx context.Context, id string) error {
	m.writeMu.Lock()
	m.mu.Lock()
	idx := m.indexOf(id)
	if idx < 0 {
		m.mu.Unlock()
		m.writeMu.Unlock()
		return ErrProductNotFound
	}
	next := slices.Delete(slices.Clone(m.products), idx, idx+1)
	m.products = next
	m.mu.Unlock()

	m.commit(ctx, localstore.KeyProducts, broadcast.EventProductsUpdated, next)
	m.writeMu.Unlock()

	if err := m.remote.DeleteProduct(ctx, id); err != nil && !errors.Is(err, repository.ErrProductNotFound) {
		m.logger.Warn("Product removed locally, remote delete failed", zap.String("id", id), zap.Error(err))
		return remotePushError(domain.CollectionProducts, err)
	}
	return nil
}

// ReplaceAll discards every product and adds products in their place,
// mirroring the deletion and re-insert on the hosted database
func (m *Products) ReplaceAll(ctx context.Context, products []domain.Product) ([]domain.Product, error) {
	next := make([]domain.Product, 0, len(products))
	now := m.now()
	for _, p := range products {
		p.EnsureID()
		p.Normalize()
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		next = append(next, p)
	}

	m.writeMu.Lock()
	m.mu.Lock()
	previous := m.products
	m.products = next
	m.mu.Unlock()

	m.commit(ctx, localstore.KeyProducts, broadcast.EventProductsUpdated, next)
	m.writeMu.Unlock()

	var errs []error
	for _, old := range previous {
		if err := m.remote.DeleteProduct(ctx, old.ID); err != nil && !errors.Is(err, repository.ErrProductNotFound) {
			errs = append(errs, err)
		}
	}
	if err := m.remote.UpsertProducts(ctx, next); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		m.logger.Warn("Products replaced locally, remote push failed", zap.Int("count", len(next)), zap.Error(err))
		return slices.Clone(next), remotePushError(domain.CollectionProducts, err)
	}

	return slices.Clone(next), nil
}

// ClearSubcategory unsets subcategory on every product of category that uses it
// and returns the number of products changed
func (m *Products) ClearSubcategory(ctx context.Context, category, subcategory string) (int, error) {
	m.writeMu.Lock()
	m.mu.Lock()
	next := slices.Clone(m.products)
	var changed []domain.Product
	now := m.now()
	for i := range next {
		if next[i].Category == category && next[i].Subcategory == subcategory {
			next[i].Subcategory = ""
			next[i].UpdatedAt = now
			changed = append(changed, next[i])
		}
	}
	if len(changed) == 0 {
		m.mu.Unlock()
		m.writeMu.Unlock()
		return 0, nil
	}
	m.products = next
	m.mu.Unlock()

	m.commit(ctx, localstore.KeyProducts, broadcast.EventProductsUpdated, next)
	m.writeMu.Unlock()

	if err := m.remote.UpsertProducts(ctx, changed); err != nil {
		m.logger.Warn("Subcategory cleared locally, remote push failed",
			zap.String("category", category),
			zap.String("subcategory", subcategory),
			zap.Error(err),
		)
		return len(changed), remotePushError(domain.CollectionProducts, err)
	}

	return len(changed), nil
}

func (m *Products) ReloadFromStorage(ctx context.Context) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	products := localstore.Load(ctx, m.store, localstore.KeyProducts, []domain.Product{})
	if products == nil {
		products = []domain.Product{}
	}

	m.mu.Lock()
	m.products = products
	m.mu.Unlock()
}

func (m *Products) push(ctx context.Context, product domain.Product) error {
	if err := m.remote.UpsertProducts(ctx, []domain.Product{product}); err != nil {
		m.logger.Warn("Product kept locally, remote push failed", zap.String("id", product.ID), zap.Error(err))
		return remotePushError(domain.CollectionProducts, err)
	}
	return nil
}

func (m *Products) resolveImages(ctx context.Context, product *domain.Product) error {
	product.Images = slices.Clone(product.Images)
	for i, ref := range product.Images {
		resolved, err := resolveImage(ctx, m.resolver, ref)
		if err != nil {
			return err
		}
		product.Images[i] = resolved
	}
	return nil
}

func (m *Products) indexOf(id string) int {
	return slices.IndexFunc(m.products, func(p domain.Product) bool { return p.ID == id })
}
