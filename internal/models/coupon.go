package models

import (
	"time"

	"github.com/google/uuid"
)

// Coupon is a global percentage discount code. Code is case-sensitive.
type Coupon struct {
	Code               string      `json:"code"`
	DiscountPercentage int         `json:"discount_percentage"`
	ValidFrom          *time.Time  `json:"valid_from,omitempty"`
	ValidTill          *time.Time  `json:"valid_till,omitempty"`
	MaxUses            *int        `json:"max_uses,omitempty"`
	UseCount           int         `json:"use_count"`
	IsActive           bool        `json:"is_active"`
	ForInstitutions    []uuid.UUID `json:"for_institutions,omitempty"`
	MinCourses         *int        `json:"min_courses,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// CouponUsage records a single redemption of a coupon by a user.
type CouponUsage struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	CouponCode string    `json:"coupon_code"`
	OrderID    string    `json:"order_id"`
	CreatedAt  time.Time `json:"created_at"`
}
