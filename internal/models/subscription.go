package models

import (
	"time"

	"github.com/google/uuid"
)

// PlanType is the billing tier of a subscription.
type PlanType string

const (
	PlanMonthly PlanType = "monthly"
	PlanYearly  PlanType = "yearly"
)

// SubscriptionStatus values.
const (
	SubscriptionStatusPending = "pending"
	SubscriptionStatusActive  = "active"
)

// Subscription is the settled purchase of a plan for a set of courses.
// At most one active subscription exists per provider order id.
type Subscription struct {
	ID            uuid.UUID `json:"id"`
	InstitutionID uuid.UUID `json:"institution_id"`
	PlanType      PlanType  `json:"plan_type"`
	Status        string    `json:"status"`
	OrderID       string    `json:"order_id"`
	PaymentID     string    `json:"payment_id,omitempty"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	CreatedAt     time.Time `json:"created_at"`
}

// EndDateFrom returns the end of a subscription window starting at start.
func (p PlanType) EndDateFrom(start time.Time) time.Time {
	if p == PlanYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}
