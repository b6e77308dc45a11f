// Package settlement holds the short-lived record of what a payment order
// activates once the provider confirms it.
package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/edulist/backend/internal/models"
)

// ErrNotFound is returned when no context exists for an order: it expired,
// was never created, or was already consumed.
var ErrNotFound = errors.New("payment context not found")

// StatePending is the only state a stored context can be in; consumption deletes it.
const StatePending = "pending"

// Context is the snapshot taken at order creation. Settlement activates
// exactly CourseIDs regardless of later changes to the institution.
type Context struct {
	OrderID       string          `json:"order_id"`
	UserID        uuid.UUID       `json:"user_id"`
	InstitutionID uuid.UUID       `json:"institution_id"`
	CourseIDs     []uuid.UUID     `json:"course_ids"`
	PlanType      models.PlanType `json:"plan_type"`
	Amount        decimal.Decimal `json:"amount"`
	Discount      decimal.Decimal `json:"discount"`
	Currency      string          `json:"currency"`
	CouponCode    string          `json:"coupon_code,omitempty"`
	State         string          `json:"state"`
	CreatedAt     time.Time       `json:"created_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// Store keeps settlement contexts keyed by provider order id.
type Store interface {
	Save(ctx context.Context, c *Context, ttl time.Duration) error
	Get(ctx context.Context, orderID string) (*Context, error)
	Delete(ctx context.Context, orderID string) error
}
