package services

import (
	"context"
	"encoding/json"
	"sync"

	"storefront-service/models"
	"storefront-service/notifier"
	"storefront-service/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
)

// ---- testify mocks ----

type MockOrderRepository struct{ mock.Mock }

func (m *MockOrderRepository) SaveOrder(ctx context.Context, order *models.Order) (*repository.SaveResult, error) {
	args := m.Called(ctx, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.SaveResult), args.Error(1)
}

func (m *MockOrderRepository) CreateDigitalAccess(ctx context.Context, grant *models.DigitalAccess) error {
	args := m.Called(ctx, grant)
	return args.Error(0)
}

func (m *MockOrderRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockPaymentProvider struct{ mock.Mock }

func (m *MockPaymentProvider) CreateCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.CheckoutSession), args.Error(1)
}

func (m *MockPaymentProvider) GetCheckoutSession(ctx context.Context, id string, expand bool) (*stripe.CheckoutSession, error) {
	args := m.Called(ctx, id, expand)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stripe.CheckoutSession), args.Error(1)
}

func (m *MockPaymentProvider) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	args := m.Called(payload, signature)
	return args.Get(0).(stripe.Event), args.Error(1)
}

func (m *MockPaymentProvider) WebhookConfigured() bool {
	return m.Called().Bool(0)
}

// ---- hand-rolled fakes ----

// signingPayments verifies real signatures and serves sessions from a map.
type signingPayments struct {
	secret   string
	sessions map[string]*stripe.CheckoutSession
	getErr   error
	getCalls int
}

func (p *signingPayments) CreateCheckoutSession(context.Context, *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	panic("not used")
}

func (p *signingPayments) GetCheckoutSession(_ context.Context, id string, _ bool) (*stripe.CheckoutSession, error) {
	p.getCalls++
	if p.getErr != nil {
		return nil, p.getErr
	}
	if s, ok := p.sessions[id]; ok {
		return s, nil
	}
	return nil, &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Msg: "No such checkout.session: " + id}
}

func (p *signingPayments) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, signature, p.secret, webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
}

func (p *signingPayments) WebhookConfigured() bool { return p.secret != "" }

// memoryRepo enforces the unique session id the way the database does.
type memoryRepo struct {
	mu        sync.Mutex
	orders    []*models.Order
	grants    []*models.DigitalAccess
	saveErr   error
	grantErrs map[string]error
	calls     int
}

func (r *memoryRepo) SaveOrder(_ context.Context, order *models.Order) (*repository.SaveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.saveErr != nil {
		return nil, r.saveErr
	}
	for _, o := range r.orders {
		if o.SessionID == order.SessionID {
			return &repository.SaveResult{Order: o, Duplicate: true}, nil
		}
	}
	order.ID = uuid.New()
	r.orders = append(r.orders, order)
	return &repository.SaveResult{Order: order}, nil
}

func (r *memoryRepo) CreateDigitalAccess(_ context.Context, grant *models.DigitalAccess) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if err := r.grantErrs[grant.ProductID]; err != nil {
		return err
	}
	r.grants = append(r.grants, grant)
	return nil
}

func (r *memoryRepo) Ping(context.Context) error { return nil }

type recordingNotifier struct {
	sent []notifier.OrderNotification
}

func (n *recordingNotifier) NotifyMerchant(_ context.Context, order notifier.OrderNotification) notifier.Result {
	n.sent = append(n.sent, order)
	return notifier.Result{Sent: true, MessageID: "<m@test>"}
}

type recordingSNS struct {
	messages []map[string]any
}

func (s *recordingSNS) Publish(_ context.Context, _ string, message []byte) error {
	var m map[string]any
	_ = json.Unmarshal(message, &m)
	s.messages = append(s.messages, m)
	return nil
}
