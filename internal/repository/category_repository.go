package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"storefront-admin/internal/domain"
)

type categoryRepository struct {
	db *sql.DB
}

// NewCategoryRepository creates a new instance of CategoryRepository
func NewCategoryRepository(db *sql.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

// ListCategoryImages retrieves the slug to image mapping
func (r *categoryRepository) ListCategoryImages(ctx context.Context) (domain.CategoryImageMap, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT slug, image FROM category_images ORDER BY slug ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list category images: %w", err)
	}
	defer rows.Close()

	images := domain.CategoryImageMap{}
	for rows.Next() {
		var slug, image string
		if err := rows.Scan(&slug, &image); err != nil {
			return nil, fmt.Errorf("failed to scan category image: %w", err)
		}
		images[slug] = image
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating category images: %w", err)
	}

	return images, nil
}

// UpsertCategoryImages inserts or updates category images keyed by slug
func (r *categoryRepository) UpsertCategoryImages(ctx context.Context, images domain.CategoryImageMap) error {
	if len(images) == 0 {
		return nil
	}

	query := `
		INSERT INTO category_images (slug, image)
		VALUES ($1, $2)
		ON CONFLICT (slug) DO UPDATE SET image = EXCLUDED.image
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for slug, image := range images {
		if _, err := tx.ExecContext(ctx, query, slug, image); err != nil {
			return fmt.Errorf("failed to upsert category image %s: %w", slug, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit category images: %w", err)
	}

	return nil
}

// DeleteCategoryImage removes the image for a slug; missing slugs are ignored
func (r *categoryRepository) DeleteCategoryImage(ctx context.Context, slug string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM category_images WHERE slug = $1`, slug); err != nil {
		return fmt.Errorf("failed to delete category image: %w", err)
	}
	return nil
}

// ListSubcategories retrieves the category to subcategory names mapping
func (r *categoryRepository) ListSubcategories(ctx context.Context) (domain.SubcategoryMap, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT category, names FROM subcategories ORDER BY category ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subcategories: %w", err)
	}
	defer rows.Close()

	subcategories := domain.SubcategoryMap{}
	for rows.Next() {
		var category string
		var raw []byte
		if err := rows.Scan(&category, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan subcategories: %w", err)
		}

		names := []string{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &names); err != nil {
				return nil, fmt.Errorf("failed to decode subcategories of %s: %w", category, err)
			}
		}
		subcategories[category] = names
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating subcategories: %w", err)
	}

	return subcategories, nil
}

// UpsertSubcategories inserts or updates subcategory lists keyed by category name
func (r *categoryRepository) UpsertSubcategories(ctx context.Context, subcategories domain.SubcategoryMap) error {
	if len(subcategories) == 0 {
		return nil
	}

	query := `
		INSERT INTO subcategories (category, names)
		VALUES ($1, $2)
		ON CONFLICT (category) DO UPDATE SET names = EXCLUDED.names
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for category, names := range subcategories {
		if names == nil {
			names = []string{}
		}
		raw, err := json.Marshal(names)
		if err != nil {
			return fmt.Errorf("failed to encode subcategories of %s: %w", category, err)
		}
		if _, err := tx.ExecContext(ctx, query, category, string(raw)); err != nil {
			return fmt.Errorf("failed to upsert subcategories of %s: %w", category, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit subcategories: %w", err)
	}

	return nil
}
