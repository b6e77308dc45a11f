package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edulist/backend/pkg/queue"
	"github.com/edulist/backend/pkg/storage"
)

// Archive is where rendered receipts are stored.
type Archive interface {
	PutReceipt(ctx context.Context, key string, body []byte) error
	ReceiptExists(ctx context.Context, key string) (bool, error)
}

// Jobs is the queue the processor consumes.
type Jobs interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Receipt is the archived record of a settled order.
type Receipt struct {
	ReceiptNumber  string    `json:"receipt_number"`
	IssuedAt       time.Time `json:"issued_at"`
	OrderID        string    `json:"order_id"`
	PaymentID      string    `json:"payment_id"`
	SubscriptionID string    `json:"subscription_id"`
	InstitutionID  string    `json:"institution_id"`
	PlanType       string    `json:"plan_type"`
	CourseCount    int       `json:"course_count"`
	CourseIDs      []string  `json:"course_ids"`
	Currency       string    `json:"currency"`
	Discount       string    `json:"discount"`
	AmountPaid     string    `json:"amount_paid"`
	CouponCode     string    `json:"coupon_code,omitempty"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
}

// RenderReceipt builds the receipt document for p.
func RenderReceipt(p queue.ReceiptPayload, issuedAt time.Time) ([]byte, error) {
	r := Receipt{
		ReceiptNumber:  "RCPT-" + p.OrderID,
		IssuedAt:       issuedAt.UTC(),
		OrderID:        p.OrderID,
		PaymentID:      p.PaymentID,
		SubscriptionID: p.SubscriptionID.String(),
		InstitutionID:  p.InstitutionID.String(),
		PlanType:       p.PlanType,
		CourseCount:    len(p.CourseIDs),
		Currency:       p.Currency,
		Discount:       p.Discount,
		AmountPaid:     p.Amount,
		CouponCode:     p.CouponCode,
		PeriodStart:    p.StartDate.UTC(),
		PeriodEnd:      p.EndDate.UTC(),
	}
	for _, id := range p.CourseIDs {
		r.CourseIDs = append(r.CourseIDs, id.String())
	}
	return json.MarshalIndent(r, "", "  ")
}

// ReceiptProcessor archives receipts for settled orders.
type ReceiptProcessor struct {
	archive Archive
	jobs    Jobs
	logger  *zap.Logger
	backoff time.Duration
	now     func() time.Time
}

// NewReceiptProcessor creates a receipt archival processor.
func NewReceiptProcessor(archive Archive, jobs Jobs, logger *zap.Logger) *ReceiptProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReceiptProcessor{archive: archive, jobs: jobs, logger: logger, backoff: queue.RetryBackoff, now: time.Now}
}

// Process executes one receipt job. An already archived receipt is left untouched.
func (p *ReceiptProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeReceipt {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ReceiptPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if payload.OrderID == "" {
		return fmt.Errorf("receipt job %s has no order id", job.ID)
	}

	key := storage.ReceiptKey(payload.InstitutionID.String(), payload.OrderID)
	exists, err := p.archive.ReceiptExists(ctx, key)
	if err != nil {
		return fmt.Errorf("check receipt: %w", err)
	}
	if exists {
		p.logger.Info("receipt already archived", zap.String("order_id", payload.OrderID), zap.String("s3_key", key))
		return nil
	}

	body, err := RenderReceipt(payload, p.now())
	if err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}
	if err := p.archive.PutReceipt(ctx, key, body); err != nil {
		return fmt.Errorf("s3 upload: %w", err)
	}
	p.logger.Info("receipt archived", zap.String("order_id", payload.OrderID), zap.String("s3_key", key))
	return nil
}

// Run consumes jobs until ctx is cancelled. Failed jobs are retried, then dead-lettered by the queue.
func (p *ReceiptProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("receipt worker stopping")
			return
		default:
		}

		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.jobs.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *ReceiptProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
