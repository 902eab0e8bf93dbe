package service

import (
	"context"
	"errors"
	"fmt"

	"storefront-admin/internal/admin"
	"storefront-admin/internal/domain"

	"go.uber.org/zap"
)

var ErrUnsupportedSnapshot = errors.New("unsupported snapshot")

// ImportResult counts what an import applied
type ImportResult struct {
	Products       int `json:"products"`
	CategoryImages int `json:"categoryImages"`
	Subcategories  int `json:"subcategories"`
	Coupons        int `json:"coupons"`
}

// CatalogService coordinates operations that span more than one collection
type CatalogService interface {
	UpdateSubcategories(ctx context.Context, category string, names []string) (cleared int, err error)
	RemoveSubcategory(ctx context.Context, category, name string) (cleared int, err error)
	ValidateCoupon(code string) (domain.Coupon, bool)
	Export() domain.Snapshot
	Import(ctx context.Context, snapshot domain.Snapshot) (ImportResult, error)
}

type catalogService struct {
	modules admin.Modules
	logger  *zap.Logger
}

func NewCatalogService(modules admin.Modules, logger *zap.Logger) CatalogService {
	return &catalogService{modules: modules, logger: logger}
}

// UpdateSubcategories replaces the subcategory list of category and clears
// the subcategory of every product that used a removed name
func (s *catalogService) UpdateSubcategories(ctx context.Context, category string, names []string) (int, error) {
	removed := s.modules.Subcategories.Set(ctx, category, names)
	return s.cascade(ctx, category, removed)
}

func (s *catalogService) RemoveSubcategory(ctx context.Context, category, name string) (int, error) {
	if !s.modules.Subcategories.Remove(ctx, category, name) {
		return 0, nil
	}
	return s.cascade(ctx, category, []string{name})
}

func (s *catalogService) cascade(ctx context.Context, category string, removed []string) (int, error) {
	var (
		total int
		errs  []error
	)
	for _, name := range removed {
		n, err := s.modules.Products.ClearSubcategory(ctx, category, name)
		total += n
		if err != nil {
			errs = append(errs, err)
		}
	}

	if total > 0 {
		s.logger.Info("Cleared removed subcategory from products",
			zap.String("category", category),
			zap.Strings("removed", removed),
			zap.Int("products", total),
		)
	}
	return total, errors.Join(errs...)
}

// ValidateCoupon finds an active coupon by case-insensitive code
func (s *catalogService) ValidateCoupon(code string) (domain.Coupon, bool) {
	return s.modules.Coupons.Validate(code)
}

func (s *catalogService) Export() domain.Snapshot {
	return s.modules.Snapshot()
}

// Import replaces every product and merges the other collections by key.
// A failed product push is returned after everything has been applied locally.
func (s *catalogService) Import(ctx context.Context, snapshot domain.Snapshot) (ImportResult, error) {
	if snapshot.Version != "" && snapshot.Version != domain.SnapshotVersion {
		return ImportResult{}, fmt.Errorf("%w: version %s", ErrUnsupportedSnapshot, snapshot.Version)
	}

	products, pushErr := s.modules.Products.ReplaceAll(ctx, snapshot.Products)
	s.modules.CategoryImages.Merge(ctx, snapshot.CategoryImages)
	s.modules.Subcategories.Merge(ctx, snapshot.Subcategories)
	s.modules.Coupons.Merge(ctx, snapshot.Coupons)

	result := ImportResult{
		Products:       len(products),
		CategoryImages: len(snapshot.CategoryImages),
		Subcategories:  len(snapshot.Subcategories),
		Coupons:        len(snapshot.Coupons),
	}

	s.logger.Info("Imported snapshot",
		zap.Int("products", result.Products),
		zap.Int("coupons", result.Coupons),
		zap.Time("exported_at", snapshot.Timestamp),
	)
	return result, pushErr
}
