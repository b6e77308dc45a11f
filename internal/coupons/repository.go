package coupons

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edulist/backend/internal/models"
)

// ErrNotFound is returned when no coupon has the requested code.
var ErrNotFound = errors.New("coupon not found")

const couponColumns = `code, discount_percentage, valid_from, valid_till, max_uses, use_count, is_active,
	for_institutions::text[], min_courses, created_at, updated_at`

// Repository handles coupon and coupon_usages persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a coupons repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanCoupon(row pgx.Row) (*models.Coupon, error) {
	var c models.Coupon
	var institutions []string
	err := row.Scan(&c.Code, &c.DiscountPercentage, &c.ValidFrom, &c.ValidTill, &c.MaxUses, &c.UseCount,
		&c.IsActive, &institutions, &c.MinCourses, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	for _, s := range institutions {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("coupon %s: bad institution id %q: %w", c.Code, s, err)
		}
		c.ForInstitutions = append(c.ForInstitutions, id)
	}
	return &c, nil
}

// GetByCode returns the coupon with the exact (case-sensitive) code.
func (r *Repository) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	c, err := scanCoupon(r.pool.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// HasUsage reports whether the user already redeemed the coupon.
func (r *Repository) HasUsage(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM coupon_usages WHERE user_id = $1 AND coupon_code = $2)`,
		userID, code).Scan(&exists)
	return exists, err
}

// Create inserts a coupon. A duplicate code returns a unique-violation error from the driver.
func (r *Repository) Create(ctx context.Context, c *models.Coupon) error {
	ids := make([]string, 0, len(c.ForInstitutions))
	for _, id := range c.ForInstitutions {
		ids = append(ids, id.String())
	}
	const q = `INSERT INTO coupons (code, discount_percentage, valid_from, valid_till, max_uses, is_active, for_institutions, min_courses)
		VALUES ($1, $2, $3, $4, $5, $6, $7::uuid[], $8)
		RETURNING use_count, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, c.Code, c.DiscountPercentage, c.ValidFrom, c.ValidTill, c.MaxUses, c.IsActive, ids, c.MinCourses).
		Scan(&c.UseCount, &c.CreatedAt, &c.UpdatedAt)
}

// List returns all coupons, newest first.
func (r *Repository) List(ctx context.Context) ([]*models.Coupon, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+couponColumns+` FROM coupons ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// SetActive enables or disables a coupon.
func (r *Repository) SetActive(ctx context.Context, code string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE coupons SET is_active = $2, updated_at = NOW() WHERE code = $1`, code, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Redemption is the result of recording a coupon use at settlement.
type Redemption struct {
	Counted  bool // use_count was incremented
	Recorded bool // a new coupon_usages row was written
}

// RedeemTx records a coupon use inside tx. The counter is bumped with a
// conditional update so use_count never exceeds max_uses, and the usage row
// is unique per (user, coupon).
func RedeemTx(ctx context.Context, tx pgx.Tx, code string, userID uuid.UUID, orderID string) (Redemption, error) {
	var res Redemption
	tag, err := tx.Exec(ctx, `UPDATE coupons SET use_count = use_count + 1, updated_at = NOW()
		WHERE code = $1 AND (max_uses IS NULL OR use_count < max_uses)`, code)
	if err != nil {
		return res, fmt.Errorf("increment coupon use: %w", err)
	}
	res.Counted = tag.RowsAffected() == 1

	tag, err = tx.Exec(ctx, `INSERT INTO coupon_usages (id, user_id, coupon_code, order_id)
		VALUES (gen_random_uuid(), $1, $2, $3)
		ON CONFLICT (user_id, coupon_code) DO NOTHING`, userID, code, orderID)
	if err != nil {
		return res, fmt.Errorf("record coupon usage: %w", err)
	}
	res.Recorded = tag.RowsAffected() == 1
	return res, nil
}
