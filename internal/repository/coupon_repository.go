package repository

import (
	"context"
	"database/sql"
	"fmt"

	"storefront-admin/internal/domain"
)

type couponRepository struct {
	db *sql.DB
}

// NewCouponRepository creates a new instance of CouponRepository
func NewCouponRepository(db *sql.DB) CouponRepository {
	return &couponRepository{db: db}
}

// ListCoupons retrieves all coupons
func (r *couponRepository) ListCoupons(ctx context.Context) ([]domain.Coupon, error) {
	query := `
		SELECT id, code, discount_percentage, active, description
		FROM coupons
		ORDER BY created_at ASC, code ASC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	defer rows.Close()

	coupons := []domain.Coupon{}
	for rows.Next() {
		var coupon domain.Coupon
		var description sql.NullString

		err := rows.Scan(
			&coupon.ID,
			&coupon.Code,
			&coupon.DiscountPercentage,
			&coupon.Active,
			&description,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan coupon: %w", err)
		}

		coupon.Description = description.String
		coupons = append(coupons, coupon)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coupons: %w", err)
	}

	return coupons, nil
}

// UpsertCoupons inserts or updates coupons keyed by id
func (r *couponRepository) UpsertCoupons(ctx context.Context, coupons []domain.Coupon) error {
	if len(coupons) == 0 {
		return nil
	}

	query := `
		INSERT INTO coupons (id, code, discount_percentage, active, description)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			code = EXCLUDED.code,
			discount_percentage = EXCLUDED.discount_percentage,
			active = EXCLUDED.active,
			description = EXCLUDED.description
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, coupon := range coupons {
		_, err := tx.ExecContext(
			ctx,
			query,
			coupon.ID,
			coupon.Code,
			coupon.DiscountPercentage,
			coupon.Active,
			nullString(coupon.Description),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert coupon %s: %w", coupon.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit coupon upsert: %w", err)
	}

	return nil
}

// DeleteCoupon removes a coupon by id
func (r *couponRepository) DeleteCoupon(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM coupons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete coupon: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrCouponNotFound
	}

	return nil
}
