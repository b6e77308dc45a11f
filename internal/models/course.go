package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CourseStatus is Active once a subscription covering the course has been settled.
type CourseStatus string

const (
	CourseStatusActive   CourseStatus = "Active"
	CourseStatusInactive CourseStatus = "Inactive"
)

// Course belongs to one institution. Courses are created Inactive.
type Course struct {
	ID                    uuid.UUID       `json:"id"`
	InstitutionID         uuid.UUID       `json:"institution_id"`
	Name                  string          `json:"name"`
	PriceOfCourse         decimal.Decimal `json:"price_of_course"`
	Status                CourseStatus    `json:"status"`
	SubscriptionStartDate *time.Time      `json:"subscription_start_date,omitempty"`
	SubscriptionEndDate   *time.Time      `json:"subscription_end_date,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}
