package coupons

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edulist/backend/internal/models"
)

type fakeReader struct {
	coupons map[string]*models.Coupon
	usages  map[string]bool // user|code
	err     error
}

func (f *fakeReader) GetByCode(_ context.Context, code string) (*models.Coupon, error) {
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.coupons[code]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (f *fakeReader) HasUsage(_ context.Context, userID uuid.UUID, code string) (bool, error) {
	return f.usages[userID.String()+"|"+code], nil
}

func intPtr(n int) *int { return &n }

func timePtr(t time.Time) *time.Time { return &t }

func reasonOf(t *testing.T, err error) string {
	t.Helper()
	var ie *InvalidError
	require.True(t, errors.As(err, &ie), "expected InvalidError, got %v", err)
	return ie.Reason
}

func TestCheckRules(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inst := uuid.New()
	p := Purchase{UserID: uuid.New(), InstitutionID: inst, CourseCount: 2}

	tests := []struct {
		name   string
		coupon *models.Coupon
		want   string
	}{
		{"missing", nil, ReasonNotFound},
		{"inactive", &models.Coupon{Code: "A", DiscountPercentage: 10}, ReasonInactive},
		{"not yet valid", &models.Coupon{Code: "A", DiscountPercentage: 10, IsActive: true, ValidFrom: timePtr(now.Add(time.Hour))}, ReasonNotYetValid},
		{"expired", &models.Coupon{Code: "A", DiscountPercentage: 10, IsActive: true, ValidTill: timePtr(now.Add(-time.Second))}, ReasonExpired},
		{"limit", &models.Coupon{Code: "A", DiscountPercentage: 10, IsActive: true, MaxUses: intPtr(5), UseCount: 5}, ReasonLimitReached},
		{"institution", &models.Coupon{Code: "A", DiscountPercentage: 10, IsActive: true, ForInstitutions: []uuid.UUID{uuid.New()}}, ReasonInstitution},
		{"min courses", &models.Coupon{Code: "A", DiscountPercentage: 10, IsActive: true, MinCourses: intPtr(3)}, "minimum 3 courses required"},
		// inactive wins over expired: first failing rule is reported
		{"order", &models.Coupon{Code: "A", DiscountPercentage: 10, ValidTill: timePtr(now.Add(-time.Hour))}, ReasonInactive},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, reasonOf(t, Check(tc.coupon, p, now)))
		})
	}
}

func TestCheckAcceptsBoundaries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	inst := uuid.New()
	c := &models.Coupon{
		Code:               "EDGE",
		DiscountPercentage: 15,
		IsActive:           true,
		ValidFrom:          timePtr(now),
		ValidTill:          timePtr(now),
		MaxUses:            intPtr(5),
		UseCount:           4,
		ForInstitutions:    []uuid.UUID{uuid.New(), inst},
		MinCourses:         intPtr(2),
	}
	assert.NoError(t, Check(c, Purchase{InstitutionID: inst, CourseCount: 2}, now))
}

func TestValidateUsageLimit(t *testing.T) {
	now := time.Now()
	repo := &fakeReader{coupons: map[string]*models.Coupon{
		"FULL": {Code: "FULL", DiscountPercentage: 20, IsActive: true, MaxUses: intPtr(3), UseCount: 3},
		"LAST": {Code: "LAST", DiscountPercentage: 20, IsActive: true, MaxUses: intPtr(3), UseCount: 2},
	}}
	v := NewValidator(repo)
	p := Purchase{UserID: uuid.New(), InstitutionID: uuid.New(), CourseCount: 1}

	_, err := v.Validate(context.Background(), "FULL", p, now)
	assert.Equal(t, ReasonLimitReached, reasonOf(t, err))

	pct, err := v.Validate(context.Background(), "LAST", p, now)
	require.NoError(t, err)
	assert.Equal(t, 20, pct)
}

func TestValidateAlreadyUsedIsPerUser(t *testing.T) {
	u1, u2 := uuid.New(), uuid.New()
	repo := &fakeReader{
		coupons: map[string]*models.Coupon{"DISCOUNT10": {Code: "DISCOUNT10", DiscountPercentage: 10, IsActive: true}},
		usages:  map[string]bool{u1.String() + "|DISCOUNT10": true},
	}
	v := NewValidator(repo)
	inst := uuid.New()

	_, err := v.Validate(context.Background(), "DISCOUNT10", Purchase{UserID: u1, InstitutionID: inst, CourseCount: 1}, time.Now())
	assert.Equal(t, ReasonAlreadyUsed, reasonOf(t, err))

	pct, err := v.Validate(context.Background(), "DISCOUNT10", Purchase{UserID: u2, InstitutionID: inst, CourseCount: 1}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 10, pct)
}

func TestValidateCodeIsCaseSensitive(t *testing.T) {
	repo := &fakeReader{coupons: map[string]*models.Coupon{"DISCOUNT10": {Code: "DISCOUNT10", DiscountPercentage: 10, IsActive: true}}}
	_, err := NewValidator(repo).Validate(context.Background(), "discount10", Purchase{}, time.Now())
	assert.Equal(t, ReasonNotFound, reasonOf(t, err))
}

func TestValidateStorageError(t *testing.T) {
	repo := &fakeReader{err: errors.New("connection reset")}
	_, err := NewValidator(repo).Validate(context.Background(), "X", Purchase{}, time.Now())
	require.Error(t, err)
	assert.False(t, IsInvalid(err))
}
