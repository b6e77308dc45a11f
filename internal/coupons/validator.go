package coupons

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edulist/backend/internal/models"
)

// Rejection reasons reported by the validator.
const (
	ReasonNotFound      = "coupon not found"
	ReasonInactive      = "coupon inactive"
	ReasonNotYetValid   = "coupon not yet valid"
	ReasonExpired       = "coupon expired"
	ReasonLimitReached  = "coupon usage limit reached"
	ReasonInstitution   = "coupon not valid for institution"
	ReasonAlreadyUsed   = "coupon already used"
	reasonMinCoursesFmt = "minimum %d courses required"
)

// InvalidError is returned when a coupon cannot be applied to a purchase.
type InvalidError struct {
	Reason string
}

func (e *InvalidError) Error() string { return e.Reason }

// IsInvalid reports whether err is a coupon rejection.
func IsInvalid(err error) bool {
	var ie *InvalidError
	return errors.As(err, &ie)
}

// Purchase describes the candidate purchase a coupon is checked against.
type Purchase struct {
	UserID        uuid.UUID
	InstitutionID uuid.UUID
	CourseCount   int
}

// Check runs every rule that only needs the coupon itself, in order, and
// returns the first failure. It has no side effects.
func Check(c *models.Coupon, p Purchase, now time.Time) error {
	if c == nil {
		return &InvalidError{Reason: ReasonNotFound}
	}
	if !c.IsActive {
		return &InvalidError{Reason: ReasonInactive}
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return &InvalidError{Reason: ReasonNotYetValid}
	}
	if c.ValidTill != nil && now.After(*c.ValidTill) {
		return &InvalidError{Reason: ReasonExpired}
	}
	if c.MaxUses != nil && c.UseCount >= *c.MaxUses {
		return &InvalidError{Reason: ReasonLimitReached}
	}
	if len(c.ForInstitutions) > 0 && !containsID(c.ForInstitutions, p.InstitutionID) {
		return &InvalidError{Reason: ReasonInstitution}
	}
	if c.MinCourses != nil && p.CourseCount < *c.MinCourses {
		return &InvalidError{Reason: fmt.Sprintf(reasonMinCoursesFmt, *c.MinCourses)}
	}
	return nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Reader is the read-only view of coupon storage the validator needs.
type Reader interface {
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	HasUsage(ctx context.Context, userID uuid.UUID, code string) (bool, error)
}

// Validator resolves a coupon code and checks it against a purchase.
// It never increments counters or records usage.
type Validator struct {
	repo Reader
}

// NewValidator creates a validator backed by repo.
func NewValidator(repo Reader) *Validator {
	return &Validator{repo: repo}
}

// Validate returns the discount percentage of code for purchase p, or an
// *InvalidError naming the first rule that failed.
func (v *Validator) Validate(ctx context.Context, code string, p Purchase, now time.Time) (int, error) {
	c, err := v.repo.GetByCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		return 0, &InvalidError{Reason: ReasonNotFound}
	}
	if err != nil {
		return 0, fmt.Errorf("load coupon: %w", err)
	}
	if err := Check(c, p, now); err != nil {
		return 0, err
	}
	used, err := v.repo.HasUsage(ctx, p.UserID, c.Code)
	if err != nil {
		return 0, fmt.Errorf("load coupon usage: %w", err)
	}
	if used {
		return 0, &InvalidError{Reason: ReasonAlreadyUsed}
	}
	return c.DiscountPercentage, nil
}
