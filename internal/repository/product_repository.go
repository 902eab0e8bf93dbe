package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"storefront-admin/internal/domain"
)

type productRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db *sql.DB) ProductRepository {
	return &productRepository{db: db}
}

// ListProducts retrieves every product ordered by creation time
func (r *productRepository) ListProducts(ctx context.Context) ([]domain.Product, error) {
	query := `
		SELECT id, name, description, long_description, price, category, subcategory,
		       in_stock, featured, rating, images, specifications, reviews, created_at, updated_at
		FROM products
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		var product domain.Product
		var images, specs, reviews []byte
		var longDescription, subcat sql.NullString
		var updatedAt sql.NullTime

		err := rows.Scan(
			&product.ID,
			&product.Name,
			&product.Description,
			&longDescription,
			&product.Price,
			&product.Category,
			&subcat,
			&product.InStock,
			&product.Featured,
			&product.Rating,
			&images,
			&specs,
			&reviews,
			&product.CreatedAt,
			&updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}

		product.LongDescription = longDescription.String
		product.Subcategory = subcat.String
		if updatedAt.Valid {
			product.UpdatedAt = updatedAt.Time
		}

		if err := decodeJSONColumns(images, &product.Images, specs, &product.Specifications, reviews, &product.Reviews); err != nil {
			return nil, fmt.Errorf("failed to decode product %s: %w", product.ID, err)
		}

		product.Normalize()
		products = append(products, product)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}

	return products, nil
}

// UpsertProducts inserts or updates products keyed by id in one transaction
func (r *productRepository) UpsertProducts(ctx context.Context, products []domain.Product) error {
	if len(products) == 0 {
		return nil
	}

	query := `
		INSERT INTO products (id, name, description, long_description, price, category, subcategory,
		                      in_stock, featured, rating, images, specifications, reviews, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			long_description = EXCLUDED.long_description,
			price = EXCLUDED.price,
			category = EXCLUDED.category,
			subcategory = EXCLUDED.subcategory,
			in_stock = EXCLUDED.in_stock,
			featured = EXCLUDED.featured,
			rating = EXCLUDED.rating,
			images = EXCLUDED.images,
			specifications = EXCLUDED.specifications,
			reviews = EXCLUDED.reviews,
			updated_at = EXCLUDED.updated_at
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare product upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, product := range products {
		product.Normalize()

		images, _ := json.Marshal(product.Images)
		specs, _ := json.Marshal(product.Specifications)
		reviews, _ := json.Marshal(product.Reviews)

		createdAt := product.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		updatedAt := product.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}

		_, err := stmt.ExecContext(
			ctx,
			product.ID,
			product.Name,
			product.Description,
			nullString(product.LongDescription),
			product.Price,
			product.Category,
			nullString(product.Subcategory),
			product.InStock,
			product.Featured,
			product.Rating,
			string(images),
			string(specs),
			string(reviews),
			createdAt,
			updatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert product %s: %w", product.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit product upsert: %w", err)
	}

	return nil
}

// DeleteProduct removes a product from the database using parameterized queries
func (r *productRepository) DeleteProduct(ctx context.Context, id string) error {
	query := `DELETE FROM products WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete product: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrProductNotFound
	}

	return nil
}

// LatestProductChange returns the newest product modification time
func (r *productRepository) LatestProductChange(ctx context.Context) (time.Time, error) {
	query := `SELECT MAX(COALESCE(updated_at, created_at)) FROM products`

	var latest sql.NullTime
	if err := r.db.QueryRowContext(ctx, query).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("failed to read latest product change: %w", err)
	}

	if !latest.Valid {
		return time.Time{}, nil
	}
	return latest.Time, nil
}

func decodeJSONColumns(pairs ...interface{}) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		raw, _ := pairs[i].([]byte)
		if len(raw) == 0 {
			continue
		}
		if err := json.Unmarshal(raw, pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
