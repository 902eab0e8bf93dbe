package repository

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"storefront-admin/internal/domain"
)

// ErrBackendUnavailable is returned by MemoryBackend while marked unavailable
var ErrBackendUnavailable = errors.New("backend unavailable")

// MemoryBackend is an in-process Backend used for local development when no
// database credentials are configured, and as a fake in tests.
type MemoryBackend struct {
	mu             sync.RWMutex
	products       map[string]domain.Product
	coupons        map[string]domain.Coupon
	categoryImages domain.CategoryImageMap
	subcategories  domain.SubcategoryMap

	unavailable error
	failing     map[string]error
	calls       map[string]int
}

// NewMemoryBackend creates an empty MemoryBackend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		products:       make(map[string]domain.Product),
		coupons:        make(map[string]domain.Coupon),
		categoryImages: domain.CategoryImageMap{},
		subcategories:  domain.SubcategoryMap{},
		failing:        make(map[string]error),
		calls:          make(map[string]int),
	}
}

// SetUnavailable makes every call fail with err; nil restores the backend
func (m *MemoryBackend) SetUnavailable(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = err
}

// FailCollection makes reads and writes of one collection fail with err
func (m *MemoryBackend) FailCollection(collection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failing, collection)
		return
	}
	m.failing[collection] = err
}

// Calls returns how many times an operation was invoked
func (m *MemoryBackend) Calls(op string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

func (m *MemoryBackend) check(op, collection string) error {
	m.calls[op]++
	if m.unavailable != nil {
		return m.unavailable
	}
	return m.failing[collection]
}

func (m *MemoryBackend) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.check("Ping", "")
}

func (m *MemoryBackend) Close() error {
	return nil
}

func (m *MemoryBackend) ListProducts(ctx context.Context) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListProducts", domain.CollectionProducts); err != nil {
		return nil, err
	}

	products := make([]domain.Product, 0, len(m.products))
	for _, p := range m.products {
		products = append(products, cloneProduct(p))
	}
	sort.SliceStable(products, func(i, j int) bool {
		if products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].ID < products[j].ID
		}
		return products[i].CreatedAt.Before(products[j].CreatedAt)
	})
	return products, nil
}

func (m *MemoryBackend) UpsertProducts(ctx context.Context, products []domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("UpsertProducts", domain.CollectionProducts); err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, p := range products {
		p = cloneProduct(p)
		if existing, ok := m.products[p.ID]; ok && !existing.CreatedAt.IsZero() {
			p.CreatedAt = existing.CreatedAt
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
		m.products[p.ID] = p
	}
	return nil
}

func (m *MemoryBackend) DeleteProduct(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("DeleteProduct", domain.CollectionProducts); err != nil {
		return err
	}
	if _, ok := m.products[id]; !ok {
		return ErrProductNotFound
	}
	delete(m.products, id)
	return nil
}

func (m *MemoryBackend) LatestProductChange(ctx context.Context) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("LatestProductChange", domain.CollectionProducts); err != nil {
		return time.Time{}, err
	}

	var latest time.Time
	for _, p := range m.products {
		if changed := p.LastChange(); changed.After(latest) {
			latest = changed
		}
	}
	return latest, nil
}

func (m *MemoryBackend) ListCoupons(ctx context.Context) ([]domain.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListCoupons", domain.CollectionCoupons); err != nil {
		return nil, err
	}

	coupons := make([]domain.Coupon, 0, len(m.coupons))
	for _, c := range m.coupons {
		coupons = append(coupons, c)
	}
	sort.Slice(coupons, func(i, j int) bool { return coupons[i].ID < coupons[j].ID })
	return coupons, nil
}

func (m *MemoryBackend) UpsertCoupons(ctx context.Context, coupons []domain.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("UpsertCoupons", domain.CollectionCoupons); err != nil {
		return err
	}
	for _, c := range coupons {
		m.coupons[c.ID] = c
	}
	return nil
}

func (m *MemoryBackend) DeleteCoupon(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("DeleteCoupon", domain.CollectionCoupons); err != nil {
		return err
	}
	if _, ok := m.coupons[id]; !ok {
		return ErrCouponNotFound
	}
	delete(m.coupons, id)
	return nil
}

func (m *MemoryBackend) ListCategoryImages(ctx context.Context) (domain.CategoryImageMap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListCategoryImages", domain.CollectionCategoryImages); err != nil {
		return nil, err
	}
	return m.categoryImages.Clone(), nil
}

func (m *MemoryBackend) UpsertCategoryImages(ctx context.Context, images domain.CategoryImageMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("UpsertCategoryImages", domain.CollectionCategoryImages); err != nil {
		return err
	}
	for slug, image := range images {
		m.categoryImages[slug] = image
	}
	return nil
}

func (m *MemoryBackend) DeleteCategoryImage(ctx context.Context, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("DeleteCategoryImage", domain.CollectionCategoryImages); err != nil {
		return err
	}
	delete(m.categoryImages, slug)
	return nil
}

func (m *MemoryBackend) ListSubcategories(ctx context.Context) (domain.SubcategoryMap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("ListSubcategories", domain.CollectionSubcategories); err != nil {
		return nil, err
	}
	return m.subcategories.Clone(), nil
}

func (m *MemoryBackend) UpsertSubcategories(ctx context.Context, subcategories domain.SubcategoryMap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("UpsertSubcategories", domain.CollectionSubcategories); err != nil {
		return err
	}
	for category, names := range subcategories {
		m.subcategories[category] = slices.Clone(names)
	}
	return nil
}

func cloneProduct(p domain.Product) domain.Product {
	p.Images = slices.Clone(p.Images)
	p.Specifications = slices.Clone(p.Specifications)
	p.Reviews = slices.Clone(p.Reviews)
	p.Normalize()
	return p
}
