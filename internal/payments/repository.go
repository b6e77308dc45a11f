package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edulist/backend/internal/coupons"
	"github.com/edulist/backend/internal/models"
)

// ErrAlreadySettled is returned by Settle when an active subscription already
// exists for the order. Nothing is written in that case.
var ErrAlreadySettled = errors.New("order already settled")

const subscriptionColumns = `id, institution_id, plan_type, status, order_id, COALESCE(payment_id, ''), start_date, end_date, created_at`

// SettleParams is the full set of writes applied for one confirmed payment.
type SettleParams struct {
	OrderID       string
	PaymentID     string
	UserID        uuid.UUID
	InstitutionID uuid.UUID
	PlanType      models.PlanType
	CourseIDs     []uuid.UUID
	CouponCode    string
	StartDate     time.Time
	EndDate       time.Time
}

// SettleResult reports what Settle wrote.
type SettleResult struct {
	SubscriptionID   uuid.UUID
	ActivatedCourses int
	Coupon           coupons.Redemption
}

// Repository handles subscription persistence and the settlement transaction.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a payments repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Settle writes the subscription, activates the courses and redeems the coupon
// in one transaction. The partial unique index on subscriptions(order_id) for
// active rows makes concurrent deliveries of the same order serialize: the
// loser's insert does nothing and it gets ErrAlreadySettled.
func (r *Repository) Settle(ctx context.Context, p SettleParams) (*SettleResult, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var res SettleResult
	err = tx.QueryRow(ctx, `INSERT INTO subscriptions (id, institution_id, plan_type, status, order_id, payment_id, start_date, end_date)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id) WHERE status = 'active' DO NOTHING
		RETURNING id`,
		p.InstitutionID, string(p.PlanType), models.SubscriptionStatusActive, p.OrderID, p.PaymentID, p.StartDate, p.EndDate).
		Scan(&res.SubscriptionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlreadySettled
	}
	if err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}

	ids := make([]string, 0, len(p.CourseIDs))
	for _, id := range p.CourseIDs {
		ids = append(ids, id.String())
	}
	tag, err := tx.Exec(ctx, `UPDATE courses
		SET status = $1, subscription_start_date = $2, subscription_end_date = $3, updated_at = NOW()
		WHERE id = ANY($4::uuid[]) AND institution_id = $5`,
		string(models.CourseStatusActive), p.StartDate, p.EndDate, ids, p.InstitutionID)
	if err != nil {
		return nil, fmt.Errorf("activate courses: %w", err)
	}
	res.ActivatedCourses = int(tag.RowsAffected())

	if p.CouponCode != "" {
		res.Coupon, err = coupons.RedeemTx(ctx, tx, p.CouponCode, p.UserID, p.OrderID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &res, nil
}

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var s models.Subscription
	err := row.Scan(&s.ID, &s.InstitutionID, &s.PlanType, &s.Status, &s.OrderID, &s.PaymentID, &s.StartDate, &s.EndDate, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ActiveByOrder returns the active subscription for orderID, or nil.
func (r *Repository) ActiveByOrder(ctx context.Context, orderID string) (*models.Subscription, error) {
	return scanSubscription(r.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE order_id = $1 AND status = $2`,
		orderID, models.SubscriptionStatusActive))
}

// FindForInstitution returns the institution's subscription for orderID, or
// its most recent one when orderID is empty. Returns nil when none exists.
func (r *Repository) FindForInstitution(ctx context.Context, institutionID uuid.UUID, orderID string) (*models.Subscription, error) {
	if orderID == "" {
		return scanSubscription(r.pool.QueryRow(ctx,
			`SELECT `+subscriptionColumns+` FROM subscriptions WHERE institution_id = $1 ORDER BY created_at DESC LIMIT 1`,
			institutionID))
	}
	return scanSubscription(r.pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE institution_id = $1 AND order_id = $2 ORDER BY created_at DESC LIMIT 1`,
		institutionID, orderID))
}
