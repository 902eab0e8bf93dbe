package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"storefront-admin/internal/domain"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrCouponNotFound  = errors.New("coupon not found")
)

// ProductRepository defines product access on the hosted database
type ProductRepository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	UpsertProducts(ctx context.Context, products []domain.Product) error
	DeleteProduct(ctx context.Context, id string) error
	// LatestProductChange returns the newest updated_at (or created_at when
	// updated_at is unset) across all products; zero when there are none.
	LatestProductChange(ctx context.Context) (time.Time, error)
}

// CouponRepository defines coupon access on the hosted database
type CouponRepository interface {
	ListCoupons(ctx context.Context) ([]domain.Coupon, error)
	UpsertCoupons(ctx context.Context, coupons []domain.Coupon) error
	DeleteCoupon(ctx context.Context, id string) error
}

// CategoryRepository defines access to category images and subcategories,
// both keyed by their natural key (slug, category name)
type CategoryRepository interface {
	ListCategoryImages(ctx context.Context) (domain.CategoryImageMap, error)
	UpsertCategoryImages(ctx context.Context, images domain.CategoryImageMap) error
	DeleteCategoryImage(ctx context.Context, slug string) error
	ListSubcategories(ctx context.Context) (domain.SubcategoryMap, error)
	UpsertSubcategories(ctx context.Context, subcategories domain.SubcategoryMap) error
}

// Backend is the hosted database holding the authoritative admin data
type Backend interface {
	ProductRepository
	CouponRepository
	CategoryRepository
	Ping(ctx context.Context) error
	Close() error
}

type postgresBackend struct {
	ProductRepository
	CouponRepository
	CategoryRepository
	db *sql.DB
}

// NewPostgresBackend creates a Backend over the products, coupons,
// category_images and subcategories tables
func NewPostgresBackend(db *sql.DB) Backend {
	return &postgresBackend{
		ProductRepository:  NewProductRepository(db),
		CouponRepository:   NewCouponRepository(db),
		CategoryRepository: NewCategoryRepository(db),
		db:                 db,
	}
}

func (b *postgresBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

func (b *postgresBackend) Close() error {
	return b.db.Close()
}
