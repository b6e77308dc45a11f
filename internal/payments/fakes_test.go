package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/edulist/backend/internal/coupons"
	"github.com/edulist/backend/internal/institutions"
	"github.com/edulist/backend/internal/models"
	"github.com/edulist/backend/internal/settlement"
	"github.com/edulist/backend/pkg/queue"
)

const testSecret = "whsec_test"

// world is an in-memory institution, coupon and subscription store shared by
// the fakes so tests can observe every write.
type world struct {
	mu            sync.Mutex
	institutions  map[uuid.UUID]*models.Institution // by owner
	courses       []*models.Course
	coupons       map[string]*models.Coupon
	usages        map[string]string // user|code -> order id
	subscriptions []*models.Subscription
}

func newWorld() *world {
	return &world{
		institutions: map[uuid.UUID]*models.Institution{},
		coupons:      map[string]*models.Coupon{},
		usages:       map[string]string{},
	}
}

func (w *world) addInstitution(owner uuid.UUID, inactiveCourses int) *models.Institution {
	w.mu.Lock()
	defer w.mu.Unlock()
	inst := &models.Institution{ID: uuid.New(), OwnerID: owner, Name: "Test Institute"}
	w.institutions[owner] = inst
	for i := 0; i < inactiveCourses; i++ {
		w.courses = append(w.courses, &models.Course{
			ID:            uuid.New(),
			InstitutionID: inst.ID,
			Name:          fmt.Sprintf("Course %d", i+1),
			PriceOfCourse: decimal.NewFromInt(500),
			Status:        models.CourseStatusInactive,
		})
	}
	return inst
}

func (w *world) coursesOf(instID uuid.UUID) []models.Course {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.Course
	for _, c := range w.courses {
		if c.InstitutionID == instID {
			out = append(out, *c)
		}
	}
	return out
}

func (w *world) activeSubscriptions() []models.Subscription {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.Subscription
	for _, s := range w.subscriptions {
		if s.Status == models.SubscriptionStatusActive {
			out = append(out, *s)
		}
	}
	return out
}

func (w *world) coupon(code string) models.Coupon {
	w.mu.Lock()
	defer w.mu.Unlock()
	return *w.coupons[code]
}

func (w *world) usageCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.usages)
}

// institutions.Institutions

func (w *world) GetByOwner(_ context.Context, userID uuid.UUID) (*models.Institution, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	inst, ok := w.institutions[userID]
	if !ok {
		return nil, institutions.ErrNotFound
	}
	return inst, nil
}

func (w *world) ListInactiveCourses(_ context.Context, instID uuid.UUID) ([]models.Course, error) {
	var out []models.Course
	for _, c := range w.coursesOf(instID) {
		if c.Status == models.CourseStatusInactive {
			out = append(out, c)
		}
	}
	return out, nil
}

// coupons.Reader

func (w *world) GetByCode(_ context.Context, code string) (*models.Coupon, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.coupons[code]
	if !ok {
		return nil, coupons.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (w *world) HasUsage(_ context.Context, userID uuid.UUID, code string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.usages[userID.String()+"|"+code]
	return ok, nil
}

// Ledger

func (w *world) Settle(_ context.Context, p SettleParams) (*SettleResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.subscriptions {
		if s.OrderID == p.OrderID && s.Status == models.SubscriptionStatusActive {
			return nil, ErrAlreadySettled
		}
	}
	res := &SettleResult{SubscriptionID: uuid.New()}
	w.subscriptions = append(w.subscriptions, &models.Subscription{
		ID:            res.SubscriptionID,
		InstitutionID: p.InstitutionID,
		PlanType:      p.PlanType,
		Status:        models.SubscriptionStatusActive,
		OrderID:       p.OrderID,
		PaymentID:     p.PaymentID,
		StartDate:     p.StartDate,
		EndDate:       p.EndDate,
		CreatedAt:     p.StartDate,
	})
	wanted := map[uuid.UUID]bool{}
	for _, id := range p.CourseIDs {
		wanted[id] = true
	}
	for _, c := range w.courses {
		if wanted[c.ID] && c.InstitutionID == p.InstitutionID {
			start, end := p.StartDate, p.EndDate
			c.Status = models.CourseStatusActive
			c.SubscriptionStartDate = &start
			c.SubscriptionEndDate = &end
			res.ActivatedCourses++
		}
	}
	if p.CouponCode != "" {
		if c, ok := w.coupons[p.CouponCode]; ok && (c.MaxUses == nil || c.UseCount < *c.MaxUses) {
			c.UseCount++
			res.Coupon.Counted = true
		}
		key := p.UserID.String() + "|" + p.CouponCode
		if _, ok := w.usages[key]; !ok {
			w.usages[key] = p.OrderID
			res.Coupon.Recorded = true
		}
	}
	return res, nil
}

func (w *world) ActiveByOrder(_ context.Context, orderID string) (*models.Subscription, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.subscriptions {
		if s.OrderID == orderID && s.Status == models.SubscriptionStatusActive {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (w *world) FindForInstitution(_ context.Context, instID uuid.UUID, orderID string) (*models.Subscription, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := len(w.subscriptions) - 1; i >= 0; i-- {
		s := w.subscriptions[i]
		if s.InstitutionID == instID && (orderID == "" || s.OrderID == orderID) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeProvider struct {
	mu     sync.Mutex
	n      int
	err    error
	amount []int64
}

func (p *fakeProvider) CreateOrder(_ context.Context, amountMinor int64, currency, receipt string) (*ProviderOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.n++
	p.amount = append(p.amount, amountMinor)
	return &ProviderOrder{ID: fmt.Sprintf("order_%04d", p.n), Status: "created", AmountMinor: amountMinor, Currency: currency}, nil
}

type fakeReceipts struct {
	mu   sync.Mutex
	jobs []queue.ReceiptPayload
	err  error
}

func (r *fakeReceipts) EnqueueReceipt(_ context.Context, p queue.ReceiptPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.jobs = append(r.jobs, p)
	return nil
}

type fixture struct {
	svc      *Service
	world    *world
	provider *fakeProvider
	receipts *fakeReceipts
	store    *settlement.RedisStore
	redis    *miniredis.Miniredis
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	w := newWorld()
	f := &fixture{
		world:    w,
		provider: &fakeProvider{},
		receipts: &fakeReceipts{},
		store:    settlement.NewRedisStore(client, nil),
		redis:    mr,
		now:      time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(w, coupons.NewValidator(w), f.provider, f.store, w, f.receipts, Options{
		Currency:      "INR",
		WebhookSecret: testSecret,
		ContextTTL:    30 * time.Minute,
	}, nil)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) webhook(orderID, paymentID string) WebhookRequest {
	return WebhookRequest{OrderID: orderID, PaymentID: paymentID, Signature: Sign(testSecret, orderID, paymentID)}
}

func kindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return -1
}
