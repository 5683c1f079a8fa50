package providers

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"
	"github.com/stripe/stripe-go/v80/webhook"
)

// ErrPaymentsNotConfigured is returned when no Stripe secret key is set.
var ErrPaymentsNotConfigured = errors.New("stripe secret key not configured")

// PaymentProvider is the slice of the Stripe API the storefront uses.
type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, id string, expandLineItems bool) (*stripe.CheckoutSession, error)
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
	WebhookConfigured() bool
}

// StripeProvider implements PaymentProvider with a per-instance client so
// tests can point it at a fake backend.
type StripeProvider struct {
	sessions      *session.Client
	secretKey     string
	webhookSecret string
}

// NewStripeProvider creates a StripeProvider. A nil backend uses the live API.
func NewStripeProvider(secretKey, webhookSecret string, backend stripe.Backend) *StripeProvider {
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &StripeProvider{
		sessions:      &session.Client{B: backend, Key: secretKey},
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
	}
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if p.secretKey == "" {
		return nil, ErrPaymentsNotConfigured
	}
	params.Context = ctx
	s, err := p.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}
	return s, nil
}

func (p *StripeProvider) GetCheckoutSession(ctx context.Context, id string, expandLineItems bool) (*stripe.CheckoutSession, error) {
	if p.secretKey == "" {
		return nil, ErrPaymentsNotConfigured
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	if expandLineItems {
		params.AddExpand("line_items")
		params.AddExpand("line_items.data.price.product")
	}
	s, err := p.sessions.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get checkout session %s: %w", id, err)
	}
	return s, nil
}

// ConstructEvent verifies the signature header against the raw payload.
// Events from endpoints pinned to another API version are still accepted.
func (p *StripeProvider) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}

func (p *StripeProvider) WebhookConfigured() bool { return p.webhookSecret != "" }
