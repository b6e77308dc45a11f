// Package payments builds provider orders for course activation and settles
// them when the provider confirms payment.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edulist/backend/internal/coupons"
	"github.com/edulist/backend/internal/institutions"
	"github.com/edulist/backend/internal/models"
	"github.com/edulist/backend/internal/pricing"
	"github.com/edulist/backend/internal/settlement"
	"github.com/edulist/backend/pkg/queue"
)

// Institutions resolves the caller's institution and its courses.
type Institutions interface {
	GetByOwner(ctx context.Context, userID uuid.UUID) (*models.Institution, error)
	ListInactiveCourses(ctx context.Context, institutionID uuid.UUID) ([]models.Course, error)
}

// CouponValidator checks a coupon code against a purchase without side effects.
type CouponValidator interface {
	Validate(ctx context.Context, code string, p coupons.Purchase, now time.Time) (int, error)
}

// Ledger is the durable side of settlement.
type Ledger interface {
	Settle(ctx context.Context, p SettleParams) (*SettleResult, error)
	ActiveByOrder(ctx context.Context, orderID string) (*models.Subscription, error)
	FindForInstitution(ctx context.Context, institutionID uuid.UUID, orderID string) (*models.Subscription, error)
}

// ReceiptQueue accepts receipt jobs for settled orders.
type ReceiptQueue interface {
	EnqueueReceipt(ctx context.Context, payload queue.ReceiptPayload) error
}

// Options configures a Service.
type Options struct {
	Currency      string
	WebhookSecret string
	ContextTTL    time.Duration
	ReceiptPrefix string
}

// Service implements order creation, settlement and status polling.
type Service struct {
	institutions Institutions
	coupons      CouponValidator
	provider     Provider
	contexts     settlement.Store
	ledger       Ledger
	receipts     ReceiptQueue
	opts         Options
	logger       *zap.Logger
	now          func() time.Time
}

// NewService wires a payments service. receipts may be nil.
func NewService(inst Institutions, cv CouponValidator, provider Provider, contexts settlement.Store,
	ledger Ledger, receipts ReceiptQueue, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Currency == "" {
		opts.Currency = "INR"
	}
	if opts.ContextTTL <= 0 {
		opts.ContextTTL = 30 * time.Minute
	}
	if opts.ReceiptPrefix == "" {
		opts.ReceiptPrefix = "rcpt"
	}
	return &Service{
		institutions: inst,
		coupons:      cv,
		provider:     provider,
		contexts:     contexts,
		ledger:       ledger,
		receipts:     receipts,
		opts:         opts,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// OrderRequest is a purchase request from an institution admin.
type OrderRequest struct {
	UserID     uuid.UUID
	PlanType   models.PlanType
	CourseIDs  []uuid.UUID // empty means every inactive course
	CouponCode string
}

// Quote is a priced purchase before any provider call.
type Quote struct {
	Institution        *models.Institution
	Courses            []models.Course
	PlanType           models.PlanType
	CouponCode         string
	DiscountPercentage int
	Price              pricing.Quote
}

// CourseIDs returns the ids of the quoted courses in order.
func (q *Quote) CourseIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(q.Courses))
	for _, c := range q.Courses {
		ids = append(ids, c.ID)
	}
	return ids
}

// OrderResult is returned to the client after the provider order exists.
type OrderResult struct {
	OrderID              string `json:"orderId"`
	Amount               string `json:"amount"`
	AmountMinor          int64  `json:"amountMinor"`
	Currency             string `json:"currency"`
	TotalInactiveCourses int    `json:"totalInactiveCourses"`
	Discount             string `json:"discount"`
	OriginalAmount       string `json:"originalAmount"`
}

// Quote resolves the institution, the candidate courses and the price for req.
// It performs reads only.
func (s *Service) Quote(ctx context.Context, req OrderRequest) (*Quote, error) {
	if !pricing.ValidPlan(req.PlanType) {
		return nil, newError(KindInvalidInput, "invalid plan type", nil)
	}
	inst, err := s.institutions.GetByOwner(ctx, req.UserID)
	if errors.Is(err, institutions.ErrNotFound) {
		return nil, newError(KindNotFound, "institution not found", nil)
	}
	if err != nil {
		return nil, newError(KindInternal, "load institution", err)
	}

	inactive, err := s.institutions.ListInactiveCourses(ctx, inst.ID)
	if err != nil {
		return nil, newError(KindInternal, "load courses", err)
	}
	courses := selectCourses(inactive, req.CourseIDs)
	if len(courses) == 0 {
		return nil, newError(KindInvalidInput, "no inactive courses to activate", nil)
	}

	q := &Quote{Institution: inst, Courses: courses, PlanType: req.PlanType}
	if code := strings.TrimSpace(req.CouponCode); code != "" {
		pct, err := s.coupons.Validate(ctx, code, coupons.Purchase{
			UserID:        req.UserID,
			InstitutionID: inst.ID,
			CourseCount:   len(courses),
		}, s.now())
		if err != nil {
			if coupons.IsInvalid(err) {
				return nil, newError(KindInvalidInput, "invalid coupon: "+err.Error(), err)
			}
			return nil, newError(KindInternal, "validate coupon", err)
		}
		q.CouponCode = code
		q.DiscountPercentage = pct
	}

	q.Price, err = pricing.Price(req.PlanType, len(courses), q.DiscountPercentage)
	if err != nil {
		return nil, newError(KindInvalidInput, err.Error(), err)
	}
	return q, nil
}

// selectCourses keeps the inactive courses, narrowed to wanted when given.
// Unknown ids in wanted are dropped.
func selectCourses(inactive []models.Course, wanted []uuid.UUID) []models.Course {
	if len(wanted) == 0 {
		return inactive
	}
	set := make(map[uuid.UUID]struct{}, len(wanted))
	for _, id := range wanted {
		set[id] = struct{}{}
	}
	out := make([]models.Course, 0, len(wanted))
	for _, c := range inactive {
		if _, ok := set[c.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// CreateOrder prices the purchase, creates the provider order and stores the
// settlement context. No subscription or coupon state changes here.
func (s *Service) CreateOrder(ctx context.Context, req OrderRequest) (*OrderResult, error) {
	q, err := s.Quote(ctx, req)
	if err != nil {
		return nil, err
	}

	amountMinor := pricing.MinorUnits(q.Price.Final)
	receipt := s.opts.ReceiptPrefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	order, err := s.provider.CreateOrder(ctx, amountMinor, s.opts.Currency, receipt)
	if err != nil {
		s.logger.Error("payment provider create order failed",
			zap.Error(err), zap.String("institution_id", q.Institution.ID.String()), zap.Int64("amount_minor", amountMinor))
		return nil, newError(KindProvider, "payment provider error", err)
	}

	sc := &settlement.Context{
		OrderID:       order.ID,
		UserID:        req.UserID,
		InstitutionID: q.Institution.ID,
		CourseIDs:     q.CourseIDs(),
		PlanType:      q.PlanType,
		Amount:        q.Price.Final,
		Discount:      q.Price.Discount,
		Currency:      s.opts.Currency,
		CouponCode:    q.CouponCode,
		CreatedAt:     s.now(),
	}
	if err := s.contexts.Save(ctx, sc, s.opts.ContextTTL); err != nil {
		// The provider order is orphaned; it can never settle and expires on the provider side.
		s.logger.Error("save settlement context failed", zap.Error(err), zap.String("order_id", order.ID))
		return nil, newError(KindInternal, "save payment context", err)
	}

	s.logger.Info("payment order created",
		zap.String("order_id", order.ID),
		zap.String("institution_id", q.Institution.ID.String()),
		zap.String("plan", string(q.PlanType)),
		zap.Int("courses", len(q.Courses)),
		zap.String("amount", q.Price.Final.StringFixed(2)),
		zap.String("coupon", q.CouponCode))

	return &OrderResult{
		OrderID:              order.ID,
		Amount:               q.Price.Final.StringFixed(2),
		AmountMinor:          amountMinor,
		Currency:             s.opts.Currency,
		TotalInactiveCourses: len(q.Courses),
		Discount:             q.Price.Discount.StringFixed(2),
		OriginalAmount:       q.Price.Original.StringFixed(2),
	}, nil
}

// SettleOutcome is the status of a settlement attempt.
type SettleOutcome string

const (
	OutcomeSettled          SettleOutcome = "success"
	OutcomeAlreadyProcessed SettleOutcome = "already_processed"
)

// WebhookRequest is a payment confirmation from the provider.
type WebhookRequest struct {
	OrderID   string
	PaymentID string
	Signature string
}

// Settlement is the result of Settle.
type Settlement struct {
	Status           SettleOutcome `json:"status"`
	SubscriptionID   *uuid.UUID    `json:"subscriptionId,omitempty"`
	ActivatedCourses *int          `json:"activatedCourses,omitempty"`
}

// Settle verifies a payment confirmation and applies it exactly once.
func (s *Service) Settle(ctx context.Context, req WebhookRequest) (*Settlement, error) {
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return nil, newError(KindInvalidInput, "orderId, paymentId and signature are required", nil)
	}
	if !VerifySignature(s.opts.WebhookSecret, req.OrderID, req.PaymentID, req.Signature) {
		s.logger.Warn("payment webhook signature mismatch",
			zap.String("order_id", req.OrderID), zap.String("payment_id", req.PaymentID))
		return nil, newError(KindSecurity, "invalid signature", nil)
	}

	sc, err := s.contexts.Get(ctx, req.OrderID)
	if errors.Is(err, settlement.ErrNotFound) {
		return s.settleWithoutContext(ctx, req)
	}
	if err != nil {
		return nil, newError(KindInternal, "load payment context", err)
	}

	start := s.now()
	end := sc.PlanType.EndDateFrom(start)
	res, err := s.ledger.Settle(ctx, SettleParams{
		OrderID:       sc.OrderID,
		PaymentID:     req.PaymentID,
		UserID:        sc.UserID,
		InstitutionID: sc.InstitutionID,
		PlanType:      sc.PlanType,
		CourseIDs:     sc.CourseIDs,
		CouponCode:    sc.CouponCode,
		StartDate:     start,
		EndDate:       end,
	})
	if errors.Is(err, ErrAlreadySettled) {
		s.logger.Info("duplicate payment webhook", zap.String("order_id", req.OrderID))
		s.dropContext(ctx, req.OrderID)
		return &Settlement{Status: OutcomeAlreadyProcessed}, nil
	}
	if err != nil {
		s.logger.Error("settlement failed", zap.Error(err), zap.String("order_id", req.OrderID))
		return nil, newError(KindInternal, "settle payment", err)
	}
	if sc.CouponCode != "" && !res.Coupon.Counted {
		s.logger.Warn("coupon usage limit reached at settlement; counter not incremented",
			zap.String("order_id", req.OrderID), zap.String("coupon", sc.CouponCode))
	}

	s.dropContext(ctx, req.OrderID)
	s.enqueueReceipt(ctx, sc, req.PaymentID, res.SubscriptionID, start, end)

	s.logger.Info("payment settled",
		zap.String("order_id", req.OrderID),
		zap.String("subscription_id", res.SubscriptionID.String()),
		zap.Int("activated_courses", res.ActivatedCourses))

	id, n := res.SubscriptionID, res.ActivatedCourses
	return &Settlement{Status: OutcomeSettled, SubscriptionID: &id, ActivatedCourses: &n}, nil
}

// settleWithoutContext handles a verified webhook whose context is gone: it
// was consumed by an earlier delivery, or it expired or never existed.
func (s *Service) settleWithoutContext(ctx context.Context, req WebhookRequest) (*Settlement, error) {
	sub, err := s.ledger.ActiveByOrder(ctx, req.OrderID)
	if err != nil {
		return nil, newError(KindInternal, "load subscription", err)
	}
	if sub != nil {
		s.logger.Info("payment webhook for consumed context", zap.String("order_id", req.OrderID))
		return &Settlement{Status: OutcomeAlreadyProcessed}, nil
	}
	s.logger.Warn("payment context not found", zap.String("order_id", req.OrderID))
	return nil, newError(KindContextNotFound, "payment context not found", settlement.ErrNotFound)
}

// dropContext deletes a consumed context. A failure leaves the key to expire;
// a redelivery in the meantime hits the subscription unique index.
func (s *Service) dropContext(ctx context.Context, orderID string) {
	if err := s.contexts.Delete(ctx, orderID); err != nil {
		s.logger.Warn("delete settlement context failed", zap.Error(err), zap.String("order_id", orderID))
	}
}

func (s *Service) enqueueReceipt(ctx context.Context, sc *settlement.Context, paymentID string, subID uuid.UUID, start, end time.Time) {
	if s.receipts == nil {
		return
	}
	err := s.receipts.EnqueueReceipt(ctx, queue.ReceiptPayload{
		OrderID:        sc.OrderID,
		PaymentID:      paymentID,
		SubscriptionID: subID,
		InstitutionID:  sc.InstitutionID,
		PlanType:       string(sc.PlanType),
		CourseIDs:      sc.CourseIDs,
		Amount:         sc.Amount.StringFixed(2),
		Discount:       sc.Discount.StringFixed(2),
		Currency:       sc.Currency,
		CouponCode:     sc.CouponCode,
		StartDate:      start,
		EndDate:        end,
	})
	if err != nil {
		s.logger.Warn("enqueue receipt failed", zap.Error(err), zap.String("order_id", sc.OrderID))
	}
}

// Status is the client-facing subscription state for polling.
type Status struct {
	Status   string           `json:"status"`
	PlanType *models.PlanType `json:"planType,omitempty"`
	EndDate  *time.Time       `json:"endDate,omitempty"`
}

// Poll returns the caller's subscription for orderID, or pending when none exists yet.
func (s *Service) Poll(ctx context.Context, userID uuid.UUID, orderID string) (*Status, error) {
	inst, err := s.institutions.GetByOwner(ctx, userID)
	if errors.Is(err, institutions.ErrNotFound) {
		return nil, newError(KindNotFound, "institution not found", nil)
	}
	if err != nil {
		return nil, newError(KindInternal, "load institution", err)
	}
	sub, err := s.ledger.FindForInstitution(ctx, inst.ID, orderID)
	if err != nil {
		return nil, newError(KindInternal, "load subscription", fmt.Errorf("institution %s: %w", inst.ID, err))
	}
	if sub == nil {
		return &Status{Status: models.SubscriptionStatusPending}, nil
	}
	plan, end := sub.PlanType, sub.EndDate
	return &Status{Status: sub.Status, PlanType: &plan, EndDate: &end}, nil
}
