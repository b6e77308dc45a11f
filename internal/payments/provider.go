package payments

import (
	"context"
	"fmt"

	razorpay "github.com/razorpay/razorpay-go"
)

// ProviderOrder is the provider's view of a created order.
type ProviderOrder struct {
	ID          string
	Status      string
	AmountMinor int64
	Currency    string
}

// Provider creates orders at the payment gateway.
type Provider interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*ProviderOrder, error)
}

// RazorpayProvider creates orders through the Razorpay Orders API.
type RazorpayProvider struct {
	client *razorpay.Client
}

// NewRazorpayProvider creates a provider using API key credentials.
func NewRazorpayProvider(keyID, keySecret string) *RazorpayProvider {
	return &RazorpayProvider{client: razorpay.NewClient(keyID, keySecret)}
}

// CreateOrder calls POST /v1/orders. The SDK has no context support, so ctx is
// only checked before the call.
func (p *RazorpayProvider) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string) (*ProviderOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := p.client.Order.Create(map[string]interface{}{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  receipt,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}
	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("razorpay create order: response without id")
	}
	status, _ := body["status"].(string)
	return &ProviderOrder{ID: id, Status: status, AmountMinor: amountMinor, Currency: currency}, nil
}
