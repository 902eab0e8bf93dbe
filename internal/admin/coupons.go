package admin

import (
	"context"
	"slices"
	"sync"

	"storefront-admin/internal/broadcast"
	"storefront-admin/internal/domain"
	"storefront-admin/internal/localstore"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Coupons owns the coupon list. Input is validated by the caller.
type Coupons struct {
	persister

	mu      sync.RWMutex
	coupons []domain.Coupon
}

func NewCoupons(ctx context.Context, store *localstore.Store, bus *broadcast.Channel, logger *zap.Logger) *Coupons {
	m := &Coupons{persister: persister{store: store, bus: bus, logger: logger}}
	m.ReloadFromStorage(ctx)
	return m
}

func (m *Coupons) All() []domain.Coupon {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.coupons)
}

func (m *Coupons) Get(id string) (domain.Coupon, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.coupons {
		if c.ID == id {
			return c, true
		}
	}
	return domain.Coupon{}, false
}

// Create stores a new coupon, assigning a UUID when the id is missing or invalid
func (m *Coupons) Create(ctx context.Context, coupon domain.Coupon) domain.Coupon {
	if !domain.IsUUID(coupon.ID) {
		coupon.ID = uuid.NewString()
	}

	m.writeMu.Lock()
	m.mu.Lock()
	next := append(slices.Clone(m.coupons), coupon)
	m.coupons = next
	m.mu.Unlock()

	m.commit(ctx, localstore.KeyCoupons, broadcast.EventCouponsUpdated, next)
	m.writeMu.Unlock()
	return coupon
}

// Update replaces the coupon with the same id
func (m *Coupons) Update(ctx context.Context, coupon domain.Coupon) error {
	m.writeMu.Lock()
	m.mu.Lock()
	idx := slices.IndexFunc(m.coupons, func(c domain.Coupon) bool { return c.ID == coupon.ID })
	if idx < 0 {
		m.mu.Unlock()
		m.writeMu.Unlock()
		return ErrCouponNotFound
	}
	next := slices.Clone(m.coupons)
	next[idx] = coupon
	m.coupons = next
	m.mu.Unlock()

	m.commit(ctx, localstore.KeyCoupons, broadcast.EventCouponsUpdated, next)
	m.writeMu.Unlock()
	return nil
}

func (m *Coupons) Delete(ctx context.Context, id string) error {
	m.writeMu.Lock()
	m.mu.Lock()
	idx := slices.IndexFunc(m.coupons, func(c domain.Coupon) bool { return c.ID == id })
	if idx < 0 {
		m.mu.Unlock()
		m.writeMu.Unlock()
		return ErrCouponNotFound
	}
	next := slices.Delete(slices.Clone(m.coupons), idx, idx+1)
	m.coupons = next
	m.mu.Unlock()

	m.commit(ctx, localstore.KeyCoupons, broadcast.EventCouponsUpdated, next)
	m.writeMu.Unlock()
	return nil
}

// Validate finds an active coupon whose code matches case-insensitively
func (m *Coupons) Validate(code string) (domain.Coupon, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.coupons {
		if c.Active && c.Matches(code) {
			return c, true
		}
	}
	return domain.Coupon{}, false
}

// Merge upserts coupons by id. Coupons without a valid UUID get a new one.
func (m *Coupons) Merge(ctx context.Context, coupons []domain.Coupon) {
	m.writeMu.Lock()
	m.mu.Lock()
	next := slices.Clone(m.coupons)
	for _, coupon := range coupons {
		if !domain.IsUUID(coupon.ID) {
			coupon.ID = uuid.NewString()
		}
		idx := slices.IndexFunc(next, func(c domain.Coupon) bool { return c.ID == coupon.ID })
		if idx >= 0 {
			next[idx] = coupon
		} else {
			next = append(next, coupon)
		}
	}
	m.coupons = next
	m.mu.Unlock()

	m.commit(ctx, localstore.KeyCoupons, broadcast.EventCouponsUpdated, next)
	m.writeMu.Unlock()
}

func (m *Coupons) ReloadFromStorage(ctx context.Context) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	coupons := localstore.Load(ctx, m.store, localstore.KeyCoupons, []domain.Coupon{})
	if coupons == nil {
		coupons = []domain.Coupon{}
	}

	m.mu.Lock()
	m.coupons = coupons
	m.mu.Unlock()
}
