package receipts

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edulist/backend/internal/institutions"
	"github.com/edulist/backend/internal/middleware"
	"github.com/edulist/backend/internal/models"
	"github.com/edulist/backend/pkg/response"
	"github.com/edulist/backend/pkg/storage"
)

// Institutions resolves the caller's institution.
type Institutions interface {
	GetByOwner(ctx context.Context, userID uuid.UUID) (*models.Institution, error)
}

// Subscriptions looks up a subscription of an institution by provider order id.
type Subscriptions interface {
	FindForInstitution(ctx context.Context, institutionID uuid.UUID, orderID string) (*models.Subscription, error)
}

// Signer checks for and signs archived receipts.
type Signer interface {
	ReceiptExists(ctx context.Context, key string) (bool, error)
	PresignReceipt(ctx context.Context, key string) (string, time.Time, error)
}

// Link is returned by GET /subscriptions/receipt.
type Link struct {
	OrderID   string    `json:"orderId"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Handler serves download links for archived receipts.
type Handler struct {
	institutions Institutions
	subs         Subscriptions
	signer       Signer
	logger       *zap.Logger
}

// NewHandler creates a receipts handler.
func NewHandler(inst Institutions, subs Subscriptions, signer Signer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{institutions: inst, subs: subs, signer: signer, logger: logger}
}

// Get handles GET /subscriptions/receipt?orderId=. Only active subscriptions of the
// caller's institution have receipts.
func (h *Handler) Get(c *gin.Context) {
	orderID := c.Query("orderId")
	if orderID == "" {
		response.BadRequest(c, "orderId required")
		return
	}
	ctx := c.Request.Context()
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	inst, err := h.institutions.GetByOwner(ctx, userID)
	if errors.Is(err, institutions.ErrNotFound) {
		response.NotFound(c, "institution not found")
		return
	}
	if err != nil {
		h.logger.Error("load institution failed", zap.Error(err))
		response.Internal(c, "failed to load institution")
		return
	}
	sub, err := h.subs.FindForInstitution(ctx, inst.ID, orderID)
	if err != nil {
		h.logger.Error("load subscription failed", zap.Error(err), zap.String("order_id", orderID))
		response.Internal(c, "failed to load subscription")
		return
	}
	if sub == nil || sub.Status != models.SubscriptionStatusActive {
		response.NotFound(c, "subscription not found")
		return
	}

	key := storage.ReceiptKey(inst.ID.String(), orderID)
	ok, err := h.signer.ReceiptExists(ctx, key)
	if err != nil {
		h.logger.Error("receipt lookup failed", zap.Error(err), zap.String("s3_key", key))
		response.BadGateway(c, "receipt storage unavailable")
		return
	}
	if !ok {
		// archival runs asynchronously after settlement
		response.NotFound(c, "receipt not ready")
		return
	}
	url, expires, err := h.signer.PresignReceipt(ctx, key)
	if err != nil {
		h.logger.Error("presign receipt failed", zap.Error(err), zap.String("s3_key", key))
		response.BadGateway(c, "receipt storage unavailable")
		return
	}
	response.OK(c, Link{OrderID: orderID, URL: url, ExpiresAt: expires})
}
