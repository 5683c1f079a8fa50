package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"storefront-service/apperrors"
	"storefront-service/logger"
	"storefront-service/models"
	"storefront-service/notifier"
	aws_pkg "storefront-service/pkg/aws"
	"storefront-service/providers"
	"storefront-service/repository"

	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// DigitalAccessTTL is how long a download token stays valid.
const DigitalAccessTTL = 30 * 24 * time.Hour

var signatureTroubleshooting = []string{
	"1. Ensure STRIPE_WEBHOOK_SECRET matches the webhook endpoint secret in the Stripe Dashboard",
	"2. Make sure no proxy or middleware rewrites the request body",
	"3. Verify the webhook endpoint URL in the Stripe Dashboard points at /api/stripe-webhook",
	"4. Send a test webhook from the Stripe Dashboard",
}

// WebhookService verifies payment-provider callbacks and reconciles completed
// checkouts into orders.
type WebhookService interface {
	VerifyEvent(payload []byte, signature string) (*stripe.Event, *apperrors.Error)
	HandleEvent(ctx context.Context, event *stripe.Event)
}

// ReconcileReport summarizes what reconciling one session did.
type ReconcileReport struct {
	Items        []models.OrderItem
	Source       string
	Order        *models.Order
	Duplicate    bool
	Grants       int
	Notification *notifier.Result
}

type webhookServiceImpl struct {
	payments   providers.PaymentProvider
	repo       repository.OrderRepository
	notifier   notifier.Notifier
	runner     TaskRunner
	events     eventPublisher
	strategies []ItemRecoveryStrategy
	logger     *zap.Logger
	now        func() time.Time
}

// NewWebhookService creates a new WebhookService.
func NewWebhookService(
	payments providers.PaymentProvider,
	repo repository.OrderRepository,
	n notifier.Notifier,
	runner TaskRunner,
	snsClient aws_pkg.SNSPublisher,
	snsTopicArn string,
	logger *zap.Logger,
) WebhookService {
	return newWebhookService(payments, repo, n, runner, snsClient, snsTopicArn, logger)
}

func newWebhookService(
	payments providers.PaymentProvider,
	repo repository.OrderRepository,
	n notifier.Notifier,
	runner TaskRunner,
	snsClient aws_pkg.SNSPublisher,
	snsTopicArn string,
	logger *zap.Logger,
) *webhookServiceImpl {
	return &webhookServiceImpl{
		payments:   payments,
		repo:       repo,
		notifier:   n,
		runner:     runner,
		events:     eventPublisher{sns: snsClient, topicArn: snsTopicArn, logger: logger},
		strategies: DefaultRecoveryStrategies(payments),
		logger:     logger,
		now:        time.Now,
	}
}

func (s *webhookServiceImpl) VerifyEvent(payload []byte, signature string) (*stripe.Event, *apperrors.Error) {
	if !s.payments.WebhookConfigured() {
		return nil, apperrors.New(apperrors.KindConfig, http.StatusInternalServerError, "Webhook secret not configured", nil)
	}
	if signature == "" {
		return nil, apperrors.Auth(http.StatusBadRequest, "Missing Stripe signature", nil)
	}
	if len(payload) == 0 {
		return nil, signatureFailure(errors.New("raw body is empty or could not be read"))
	}

	event, err := s.payments.ConstructEvent(payload, signature)
	if err != nil {
		s.logger.Warn("Webhook signature verification failed",
			zap.Int("body_bytes", len(payload)),
			zap.Error(err))
		return nil, signatureFailure(err)
	}
	return &event, nil
}

func signatureFailure(err error) *apperrors.Error {
	return apperrors.Auth(http.StatusBadRequest, "Webhook signature verification failed: "+err.Error(), err).
		WithDetail("The request body may have been modified before signature verification").
		WithField("troubleshooting", signatureTroubleshooting)
}

// HandleEvent dispatches a verified event. Completed checkouts are reconciled
// on the task runner so the caller can acknowledge immediately.
func (s *webhookServiceImpl) HandleEvent(ctx context.Context, event *stripe.Event) {
	log := logger.For(ctx, s.logger).With(zap.String("event_id", event.ID), zap.String("event_type", string(event.Type)))

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			log.Error("Failed to decode checkout session", zap.Error(err))
			return
		}
		requestID := logger.RequestIDFrom(ctx)
		s.runner.Go("reconcile_checkout_session", func(taskCtx context.Context) {
			s.Reconcile(logger.WithContext(taskCtx, requestID), &sess)
		})

	case stripe.EventTypePaymentIntentSucceeded:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			log.Error("Failed to decode payment intent", zap.Error(err))
			return
		}
		log.Info("Payment succeeded",
			zap.String("payment_intent", pi.ID),
			zap.Int64("amount", pi.Amount),
			zap.String("currency", string(pi.Currency)))

	case stripe.EventTypeCheckoutSessionExpired:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			log.Error("Failed to decode checkout session", zap.Error(err))
			return
		}
		log.Info("Checkout session expired", zap.String("session_id", sess.ID))

	case stripe.EventTypePaymentIntentPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			log.Error("Failed to decode payment intent", zap.Error(err))
			return
		}
		fields := []zap.Field{zap.String("payment_intent", pi.ID)}
		if pi.LastPaymentError != nil {
			fields = append(fields,
				zap.String("reason", pi.LastPaymentError.Msg),
				zap.String("code", string(pi.LastPaymentError.Code)))
		}
		log.Warn("Payment failed", fields...)

	default:
		log.Info("Unhandled event type")
	}
}

// Reconcile records a completed checkout session: it recovers the items,
// saves the order, issues download grants and tells the merchant. Nothing
// here is reported back to the payment provider.
func (s *webhookServiceImpl) Reconcile(ctx context.Context, sess *stripe.CheckoutSession) *ReconcileReport {
	log := logger.For(ctx, s.logger).With(zap.String("session_id", sess.ID))
	report := &ReconcileReport{}

	report.Items, report.Source = RecoverItems(ctx, sess, s.strategies, log)
	log.Info("Recovered order items", zap.String("source", report.Source), zap.Int("items", len(report.Items)))

	var email string
	if sess.CustomerDetails != nil {
		email = sess.CustomerDetails.Email
	}
	itemsJSON, err := json.Marshal(report.Items)
	if err != nil {
		itemsJSON = []byte("[]")
	}

	saved, err := s.repo.SaveOrder(ctx, &models.Order{
		SessionID:     sess.ID,
		CustomerEmail: optionalString(email),
		AmountTotal:   float64(sess.AmountTotal) / 100,
		Currency:      string(sess.Currency),
		PaymentStatus: models.PaymentStatus(sess.PaymentStatus),
		Items:         datatypes.JSON(itemsJSON),
	})
	switch {
	case err != nil:
		log.Error("Failed to save order",
			zap.Float64("amount", float64(sess.AmountTotal)/100),
			zap.String("email", email),
			zap.Error(err))
	case saved.Duplicate:
		report.Order = saved.Order
		report.Duplicate = true
		log.Info("Order already recorded, skipping grants and notification", zap.String("order_id", saved.Order.ID.String()))
		return report
	default:
		report.Order = saved.Order
		log.Info("Order saved", zap.String("order_id", saved.Order.ID.String()))
		report.Grants = s.issueGrants(ctx, log, saved.Order, report.Items, email)
	}

	res := s.notifier.NotifyMerchant(ctx, notifier.OrderNotification{
		SessionID:     sess.ID,
		CustomerEmail: email,
		Currency:      string(sess.Currency),
		PaymentStatus: string(sess.PaymentStatus),
		Items:         report.Items,
	})
	report.Notification = &res
	if !res.Sent {
		log.Info("Merchant notification not sent", zap.String("reason", res.Reason), zap.String("error", res.Error))
	}

	if report.Order != nil {
		s.events.publish(ctx, models.OrderRecordedEvent{
			EventType:     EventOrderRecorded,
			OrderID:       report.Order.ID.String(),
			SessionID:     sess.ID,
			AmountTotal:   report.Order.AmountTotal,
			Currency:      report.Order.Currency,
			DigitalGrants: report.Grants,
			Timestamp:     s.now(),
		})
	}
	return report
}

// issueGrants creates one download grant per digital item. A failed grant is
// logged and the rest are still attempted.
func (s *webhookServiceImpl) issueGrants(ctx context.Context, log *zap.Logger, order *models.Order, items []models.OrderItem, email string) int {
	issued := 0
	for _, item := range items {
		productID, ok := DigitalProductID(item)
		if !ok {
			continue
		}
		token, err := newDownloadToken()
		if err != nil {
			log.Error("Failed to generate download token", zap.String("product_id", productID), zap.Error(err))
			continue
		}
		grant := &models.DigitalAccess{
			OrderID:       order.ID,
			SessionID:     order.SessionID,
			CustomerEmail: optionalString(email),
			ProductID:     productID,
			DownloadToken: token,
			ExpiresAt:     s.now().Add(DigitalAccessTTL),
		}
		if err := s.repo.CreateDigitalAccess(ctx, grant); err != nil {
			log.Error("Failed to create digital access", zap.String("product_id", productID), zap.Error(err))
			continue
		}
		issued++
	}
	if issued > 0 {
		log.Info("Digital access granted", zap.Int("grants", issued))
	}
	return issued
}

// DigitalProductID reports whether item is a downloadable sample pack and
// the product id its grant is recorded under.
func DigitalProductID(item models.OrderItem) (string, bool) {
	id := itemIdentifier(item.ID, item.Name)
	if strings.Contains(id, "sample-pack") || strings.Contains(strings.ToLower(item.Name), "sample pack") {
		return id, true
	}
	return "", false
}

func newDownloadToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
