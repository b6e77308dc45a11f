package payments

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edulist/backend/internal/middleware"
	"github.com/edulist/backend/internal/models"
	"github.com/edulist/backend/pkg/response"
)

// SignatureHeader may carry the webhook signature when the body does not.
const SignatureHeader = "X-Webhook-Signature"

// Payments is the service surface the handler drives.
type Payments interface {
	Quote(ctx context.Context, req OrderRequest) (*Quote, error)
	CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error)
	Settle(ctx context.Context, req WebhookRequest) (*Settlement, error)
	Poll(ctx context.Context, userID uuid.UUID, orderID string) (*Status, error)
}

// Handler handles order, webhook and subscription status endpoints.
type Handler struct {
	svc    Payments
	logger *zap.Logger
}

// NewHandler creates a payments handler.
func NewHandler(svc Payments, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// CreateOrderRequest is the body for POST /orders and POST /orders/preview.
type CreateOrderRequest struct {
	PlanType   string   `json:"planType" binding:"required"`
	CourseIDs  []string `json:"courseIds" binding:"omitempty,dive,uuid"`
	CouponCode string   `json:"couponCode"`
}

// ValidateCouponRequest is the body for POST /coupons/validate.
type ValidateCouponRequest struct {
	PlanType   string   `json:"planType" binding:"required"`
	CourseIDs  []string `json:"courseIds" binding:"omitempty,dive,uuid"`
	CouponCode string   `json:"couponCode" binding:"required"`
}

// WebhookBody is the body for POST /payments/webhook.
type WebhookBody struct {
	OrderID   string `json:"orderId" binding:"required"`
	PaymentID string `json:"paymentId" binding:"required"`
	Signature string `json:"signature"`
}

// PreviewResponse is returned by the preview endpoints.
type PreviewResponse struct {
	PlanType           models.PlanType `json:"planType"`
	CourseIDs          []uuid.UUID     `json:"courseIds"`
	TotalCourses       int             `json:"totalCourses"`
	CouponCode         string          `json:"couponCode,omitempty"`
	DiscountPercentage int             `json:"discountPercentage"`
	OriginalAmount     string          `json:"originalAmount"`
	Discount           string          `json:"discount"`
	Amount             string          `json:"amount"`
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("payments request failed", zap.Error(err), zap.String("path", c.FullPath()))
	}
	response.Fail(c, status, Message(err))
}

func toOrderRequest(c *gin.Context, plan string, courseIDs []string, coupon string) OrderRequest {
	req := OrderRequest{
		UserID:     c.MustGet(middleware.ContextUserID).(uuid.UUID),
		PlanType:   models.PlanType(plan),
		CouponCode: coupon,
	}
	for _, s := range courseIDs {
		// binding already enforced the uuid format
		req.CourseIDs = append(req.CourseIDs, uuid.MustParse(s))
	}
	return req
}

// CreateOrder handles POST /orders.
func (h *Handler) CreateOrder(c *gin.Context) {
	var body CreateOrderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	res, err := h.svc.CreateOrder(c.Request.Context(), toOrderRequest(c, body.PlanType, body.CourseIDs, body.CouponCode))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, res)
}

// PreviewOrder handles POST /orders/preview. Nothing is created.
func (h *Handler) PreviewOrder(c *gin.Context) {
	var body CreateOrderRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	h.preview(c, toOrderRequest(c, body.PlanType, body.CourseIDs, body.CouponCode))
}

// ValidateCoupon handles POST /coupons/validate.
func (h *Handler) ValidateCoupon(c *gin.Context) {
	var body ValidateCouponRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	h.preview(c, toOrderRequest(c, body.PlanType, body.CourseIDs, body.CouponCode))
}

func (h *Handler) preview(c *gin.Context, req OrderRequest) {
	q, err := h.svc.Quote(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, PreviewResponse{
		PlanType:           q.PlanType,
		CourseIDs:          q.CourseIDs(),
		TotalCourses:       len(q.Courses),
		CouponCode:         q.CouponCode,
		DiscountPercentage: q.DiscountPercentage,
		OriginalAmount:     q.Price.Original.StringFixed(2),
		Discount:           q.Price.Discount.StringFixed(2),
		Amount:             q.Price.Final.StringFixed(2),
	})
}

// Webhook handles POST /payments/webhook. No JWT; the HMAC signature authenticates the caller.
func (h *Handler) Webhook(c *gin.Context) {
	var body WebhookBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if body.Signature == "" {
		body.Signature = c.GetHeader(SignatureHeader)
	}
	res, err := h.svc.Settle(c.Request.Context(), WebhookRequest{
		OrderID:   body.OrderID,
		PaymentID: body.PaymentID,
		Signature: body.Signature,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, res)
}

// SubscriptionStatus handles GET /subscriptions/status?orderId=.
func (h *Handler) SubscriptionStatus(c *gin.Context) {
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)
	st, err := h.svc.Poll(c.Request.Context(), userID, c.Query("orderId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, st)
}
