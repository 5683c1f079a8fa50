package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"storefront-service/apperrors"
	"storefront-service/config"
	"storefront-service/logger"
	"storefront-service/models"
	aws_pkg "storefront-service/pkg/aws"
	"storefront-service/providers"
	"storefront-service/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	successPath = "/success.html"
	cancelPath  = "/checkout.html"

	// Stripe rejects metadata values longer than this.
	maxMetadataValue = 500

	// productItemIDKey tags each Stripe product with the cart item id so
	// line-item recovery keeps store ids when metadata items are absent.
	productItemIDKey = "item_id"
)

var allowedRedirectPaths = []string{successPath, cancelPath}

// CheckoutService turns a client cart into either a recorded free order or a
// hosted payment session.
type CheckoutService interface {
	CreateCheckoutSession(ctx context.Context, req *models.CheckoutRequest) (*models.CheckoutSessionResult, *apperrors.Error)
}

// CheckoutOptions carries the deployment-specific settings.
type CheckoutOptions struct {
	BaseURL  string
	Limits   config.CheckoutLimits
	Merchant config.MerchantInfo
}

type checkoutServiceImpl struct {
	payments providers.PaymentProvider
	repo     repository.OrderRepository
	events   eventPublisher
	opts     CheckoutOptions
	logger   *zap.Logger
	now      func() time.Time
}

// NewCheckoutService creates a new CheckoutService.
func NewCheckoutService(
	payments providers.PaymentProvider,
	repo repository.OrderRepository,
	snsClient aws_pkg.SNSPublisher,
	snsTopicArn string,
	opts CheckoutOptions,
	logger *zap.Logger,
) CheckoutService {
	return &checkoutServiceImpl{
		payments: payments,
		repo:     repo,
		events:   eventPublisher{sns: snsClient, topicArn: snsTopicArn, logger: logger},
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *checkoutServiceImpl) CreateCheckoutSession(ctx context.Context, req *models.CheckoutRequest) (*models.CheckoutSessionResult, *apperrors.Error) {
	log := logger.For(ctx, s.logger)
	successURL, cancelURL := ResolveRedirects(s.opts.BaseURL, req.SuccessURL, req.CancelURL)

	plan, err := PriceCart(req.Items, s.opts.Limits)
	if err != nil {
		var tooMany *TooManyItemsError
		switch {
		case errors.Is(err, ErrItemsRequired):
			return nil, apperrors.Validation("Items are required")
		case errors.As(err, &tooMany):
			return nil, apperrors.Validation(fmt.Sprintf("Maximum %d items allowed", tooMany.Max))
		}
		log.Warn("Rejected cart", zap.Error(err))
		return nil, apperrors.New(apperrors.KindInternal, http.StatusInternalServerError, "Failed to create checkout session", err)
	}

	switch p := plan.(type) {
	case FreeCheckout:
		return s.completeFreeOrder(ctx, p, successURL, req.Customer()), nil
	case PaidCheckout:
		return s.startPaidCheckout(ctx, p, req.Items, successURL, cancelURL, req.Customer())
	}
	return nil, apperrors.ErrInternalServer
}

// completeFreeOrder records a zero-total order without touching the payment
// provider. A storage failure still lets the customer through.
func (s *checkoutServiceImpl) completeFreeOrder(ctx context.Context, plan FreeCheckout, successURL, email string) *models.CheckoutSessionResult {
	log := logger.For(ctx, s.logger)

	sessionID, err := newFreeSessionID()
	if err != nil {
		log.Error("Failed to generate free session id", zap.Error(err))
		sessionID = fallbackFreeSessionID(s.now())
	}
	itemsJSON, err := json.Marshal(plan.Items)
	if err != nil {
		log.Error("Failed to marshal free order items", zap.Error(err))
		itemsJSON = []byte("[]")
	}

	res, err := s.repo.SaveOrder(ctx, &models.Order{
		SessionID:     sessionID,
		CustomerEmail: optionalString(email),
		AmountTotal:   0,
		Currency:      checkoutCurrency,
		PaymentStatus: models.PaymentStatusPaid,
		Items:         datatypes.JSON(itemsJSON),
	})
	if err == nil {
		log.Info("Free order saved",
			zap.String("session_id", sessionID),
			zap.String("order_id", res.Order.ID.String()),
			zap.Int("items", len(plan.Items)))
		s.events.publish(ctx, models.OrderRecordedEvent{
			EventType:   EventOrderRecorded,
			OrderID:     res.Order.ID.String(),
			SessionID:   sessionID,
			AmountTotal: 0,
			Currency:    checkoutCurrency,
			Free:        true,
			Timestamp:   s.now(),
		})
		return &models.CheckoutSessionResult{
			ID:      sessionID,
			URL:     freeSuccessURL(successURL, sessionID),
			Free:    true,
			OrderID: res.Order.ID.String(),
			Saved:   true,
			Message: "Free order saved to database successfully",
		}
	}

	fallbackID := fallbackFreeSessionID(s.now())
	result := &models.CheckoutSessionResult{
		ID:   fallbackID,
		URL:  freeSuccessURL(successURL, fallbackID),
		Free: true,
	}
	if errors.Is(err, repository.ErrStorageUnavailable) {
		log.Warn("Database not configured - free order proceeding without database save", zap.String("session_id", fallbackID))
		result.Warning = "Order processed but not saved to database"
		result.Error = "Database not configured"
		return result
	}

	log.Error("Failed to save free order", zap.String("session_id", fallbackID), zap.Error(err))
	result.Warning = "Order processed but database save failed - check logs"
	result.Error = err.Error()
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		result.ErrorCode = pgErr.Code
		result.ErrorDetails = pgErr.Detail
		if result.ErrorDetails == "" {
			result.ErrorDetails = pgErr.Hint
		}
	}
	return result
}

func (s *checkoutServiceImpl) startPaidCheckout(ctx context.Context, plan PaidCheckout, raw []models.CartItem, successURL, cancelURL, email string) (*models.CheckoutSessionResult, *apperrors.Error) {
	log := logger.For(ctx, s.logger)

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(successURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:          stripe.String(cancelURL),
	}
	for _, li := range plan.LineItems {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(li.Name),
		}
		if li.ItemID != "" {
			product.Metadata = map[string]string{productItemIDKey: li.ItemID}
		}
		if li.Description != "" {
			product.Description = stripe.String(li.Description)
		}
		if len(li.Images) > 0 {
			product.Images = stripe.StringSlice(li.Images)
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(li.Currency),
				UnitAmount:  stripe.Int64(li.UnitAmount),
				ProductData: product,
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}
	if email != "" {
		params.CustomerEmail = stripe.String(email)
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
			ReceiptEmail: stripe.String(email),
		}
	}
	for k, v := range s.sessionMetadata(plan.Items, raw) {
		params.AddMetadata(k, v)
	}

	session, err := s.payments.CreateCheckoutSession(ctx, params)
	if err != nil {
		log.Error("Stripe checkout error", zap.Error(err))
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeInvalidRequest {
			return nil, apperrors.Upstream("Invalid payment request", err)
		}
		return nil, apperrors.Upstream("Failed to create checkout session", err)
	}

	log.Info("Checkout session created",
		zap.String("session_id", session.ID),
		zap.Int64("amount_total", plan.TotalMinor))
	return &models.CheckoutSessionResult{ID: session.ID, URL: session.URL}, nil
}

// sessionMetadata carries the normalized cart so the webhook can rebuild the
// order. An item list too long for a metadata value is left out and the
// webhook falls back to the session's line items, whose products carry the
// item ids.
func (s *checkoutServiceImpl) sessionMetadata(items []models.OrderItem, raw []models.CartItem) map[string]string {
	md := map[string]string{
		"artist":  s.opts.Merchant.Artist,
		"website": s.opts.Merchant.Website,
	}
	if b, err := json.Marshal(items); err == nil && len(b) <= maxMetadataValue {
		md["items"] = string(b)
	}

	names := make([]string, 0, len(raw))
	for _, it := range raw {
		names = append(names, it.Name)
	}
	md["product_names"] = truncateRunes(strings.Join(names, ", "), maxMetadataValue)
	return md
}

// ResolveRedirects returns the requested redirect targets when they exactly
// match an allowed page on baseURL, and the default pages otherwise.
func ResolveRedirects(baseURL, success, cancel string) (string, string) {
	return allowedRedirect(baseURL, success, successPath), allowedRedirect(baseURL, cancel, cancelPath)
}

func allowedRedirect(baseURL, candidate, fallbackPath string) string {
	if candidate != "" {
		for _, p := range allowedRedirectPaths {
			if candidate == baseURL+p {
				return candidate
			}
		}
	}
	return baseURL + fallbackPath
}

func freeSuccessURL(successURL, sessionID string) string {
	return fmt.Sprintf("%s?session_id=%s&free=true", successURL, sessionID)
}

func newFreeSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "free_" + hex.EncodeToString(b), nil
}

// fallbackFreeSessionID is used when the order could not be recorded.
func fallbackFreeSessionID(now time.Time) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	suffix := make([]byte, 9)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			suffix[i] = alphabet[now.UnixNano()%int64(len(alphabet))]
			continue
		}
		suffix[i] = alphabet[n.Int64()]
	}
	return "free_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + string(suffix)
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
