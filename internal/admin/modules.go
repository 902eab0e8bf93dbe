package admin

import (
	"context"
	"time"

	"storefront-admin/internal/domain"
)

// Modules groups the four collection owners of one process
type Modules struct {
	Products       *Products
	CategoryImages *CategoryImages
	Subcategories  *Subcategories
	Coupons        *Coupons
}

// ReloadFromStorage re-hydrates every module from the local store
func (m Modules) ReloadFromStorage(ctx context.Context) {
	m.Products.ReloadFromStorage(ctx)
	m.CategoryImages.ReloadFromStorage(ctx)
	m.Subcategories.ReloadFromStorage(ctx)
	m.Coupons.ReloadFromStorage(ctx)
}

// Snapshot captures the in-memory value of every collection
func (m Modules) Snapshot() domain.Snapshot {
	return domain.Snapshot{
		Version:        domain.SnapshotVersion,
		Timestamp:      time.Now().UTC(),
		Products:       m.Products.All(),
		CategoryImages: m.CategoryImages.All(),
		Subcategories:  m.Subcategories.All(),
		Coupons:        m.Coupons.All(),
	}
}
