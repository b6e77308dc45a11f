package coupons

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/edulist/backend/internal/models"
	"github.com/edulist/backend/pkg/response"
)

// Store is the coupon storage used by the admin endpoints.
type Store interface {
	Create(ctx context.Context, c *models.Coupon) error
	List(ctx context.Context) ([]*models.Coupon, error)
	SetActive(ctx context.Context, code string, active bool) error
}

// Handler handles coupon administration endpoints.
type Handler struct {
	repo   Store
	logger *zap.Logger
}

// NewHandler creates a coupons handler.
func NewHandler(repo Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, logger: logger}
}

// CreateCouponRequest is the body for POST /admin/coupons.
type CreateCouponRequest struct {
	Code               string     `json:"code" binding:"required,max=64"`
	DiscountPercentage int        `json:"discount_percentage" binding:"required,min=1,max=100"`
	ValidFrom          *time.Time `json:"valid_from"`
	ValidTill          *time.Time `json:"valid_till"`
	MaxUses            *int       `json:"max_uses" binding:"omitempty,min=1"`
	IsActive           *bool      `json:"is_active"`
	ForInstitutions    []string   `json:"for_institutions" binding:"omitempty,dive,uuid"`
	MinCourses         *int       `json:"min_courses" binding:"omitempty,min=1"`
}

// SetActiveRequest is the body for PATCH /admin/coupons/:code.
type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// Create handles POST /admin/coupons.
func (h *Handler) Create(c *gin.Context) {
	var req CreateCouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		response.BadRequest(c, "code required")
		return
	}
	if req.ValidFrom != nil && req.ValidTill != nil && req.ValidTill.Before(*req.ValidFrom) {
		response.BadRequest(c, "valid_till must not be before valid_from")
		return
	}
	coupon := &models.Coupon{
		Code:               code,
		DiscountPercentage: req.DiscountPercentage,
		ValidFrom:          req.ValidFrom,
		ValidTill:          req.ValidTill,
		MaxUses:            req.MaxUses,
		IsActive:           req.IsActive == nil || *req.IsActive,
		MinCourses:         req.MinCourses,
	}
	for _, s := range req.ForInstitutions {
		coupon.ForInstitutions = append(coupon.ForInstitutions, uuid.MustParse(s))
	}
	if err := h.repo.Create(c.Request.Context(), coupon); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			response.Conflict(c, "a coupon with this code already exists")
			return
		}
		h.logger.Error("create coupon failed", zap.Error(err), zap.String("code", code))
		response.Internal(c, "failed to create coupon")
		return
	}
	response.Created(c, coupon)
}

// List handles GET /admin/coupons.
func (h *Handler) List(c *gin.Context) {
	list, err := h.repo.List(c.Request.Context())
	if err != nil {
		h.logger.Error("list coupons failed", zap.Error(err))
		response.Internal(c, "failed to list coupons")
		return
	}
	if list == nil {
		list = []*models.Coupon{}
	}
	response.OK(c, list)
}

// SetActive handles PATCH /admin/coupons/:code.
func (h *Handler) SetActive(c *gin.Context) {
	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "is_active required")
		return
	}
	code := c.Param("code")
	if err := h.repo.SetActive(c.Request.Context(), code, *req.IsActive); err != nil {
		if errors.Is(err, ErrNotFound) {
			response.NotFound(c, "coupon not found")
			return
		}
		h.logger.Error("update coupon failed", zap.Error(err), zap.String("code", code))
		response.Internal(c, "failed to update coupon")
		return
	}
	response.OK(c, gin.H{"code": code, "is_active": *req.IsActive})
}
