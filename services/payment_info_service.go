package services

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"storefront-service/apperrors"
	"storefront-service/logger"
	"storefront-service/models"
	"storefront-service/providers"

	"go.uber.org/zap"
)

// StripeKeys are the configured API keys.
type StripeKeys struct {
	Secret          string
	Publishable     string
	PublishableTest string
}

// PaymentInfoService exposes the read-only payment views the storefront needs.
type PaymentInfoService interface {
	PublishableKey() (string, *apperrors.Error)
	SessionDetails(ctx context.Context, sessionID string) (*models.SessionDetails, *apperrors.Error)
}

type paymentInfoServiceImpl struct {
	payments providers.PaymentProvider
	keys     StripeKeys
	logger   *zap.Logger
}

func NewPaymentInfoService(payments providers.PaymentProvider, keys StripeKeys, logger *zap.Logger) PaymentInfoService {
	return &paymentInfoServiceImpl{payments: payments, keys: keys, logger: logger}
}

func (s *paymentInfoServiceImpl) PublishableKey() (string, *apperrors.Error) {
	key, err := ResolvePublishableKey(s.keys)
	if err != nil {
		s.logger.Error("Publishable key resolution failed", zap.String("error", err.Message), zap.String("detail", err.Detail))
		return "", err
	}
	return key, nil
}

func keyMode(key, testPrefix, livePrefix string) string {
	switch {
	case strings.HasPrefix(key, testPrefix):
		return "test"
	case strings.HasPrefix(key, livePrefix):
		return "live"
	}
	return "unknown"
}

// ResolvePublishableKey picks the publishable key whose mode matches the
// secret key. Sending a live key to a test-mode backend (or the reverse) is a
// configuration error, never a fallback.
func ResolvePublishableKey(keys StripeKeys) (string, *apperrors.Error) {
	secretMode := keyMode(keys.Secret, "sk_test_", "sk_live_")

	var key string
	switch secretMode {
	case "test":
		switch {
		case keys.PublishableTest != "":
			if !strings.HasPrefix(keys.PublishableTest, "pk_test_") {
				return "", apperrors.Config("Configuration error: Invalid test key",
					"STRIPE_PUBLISHABLE_KEY_TEST must start with pk_test_. Please check your environment variables.")
			}
			key = keys.PublishableTest
		case strings.HasPrefix(keys.Publishable, "pk_test_"):
			key = keys.Publishable
		default:
			return "", apperrors.Config("Configuration error: Key mode mismatch",
				"Your STRIPE_SECRET_KEY is in test mode, but no test publishable key is configured. Set STRIPE_PUBLISHABLE_KEY_TEST=pk_test_... in your environment variables.")
		}
	case "live":
		if !strings.HasPrefix(keys.Publishable, "pk_live_") {
			return "", apperrors.Config("Configuration error: Key mode mismatch",
				"Your STRIPE_SECRET_KEY is in live mode, but STRIPE_PUBLISHABLE_KEY is not a live key. Set STRIPE_PUBLISHABLE_KEY=pk_live_... in your environment variables.")
		}
		key = keys.Publishable
	default:
		key = keys.PublishableTest
		if key == "" {
			key = keys.Publishable
		}
	}

	if key == "" {
		return "", apperrors.Config("Server configuration error",
			"Stripe publishable key not configured. Set STRIPE_PUBLISHABLE_KEY or STRIPE_PUBLISHABLE_KEY_TEST in environment variables")
	}

	pkMode := keyMode(key, "pk_test_", "pk_live_")
	if secretMode != "unknown" && pkMode != "unknown" && secretMode != pkMode {
		return "", apperrors.Config("Configuration error: Key mode mismatch",
			fmt.Sprintf("Secret key is %s mode but publishable key is %s mode. They must match.", secretMode, pkMode))
	}
	return key, nil
}

func (s *paymentInfoServiceImpl) SessionDetails(ctx context.Context, sessionID string) (*models.SessionDetails, *apperrors.Error) {
	if sessionID == "" {
		return nil, apperrors.Validation("Session ID is required")
	}
	sess, err := s.payments.GetCheckoutSession(ctx, sessionID, false)
	if err != nil {
		logger.For(ctx, s.logger).Error("Error fetching session details", zap.String("session_id", sessionID), zap.Error(err))
		return nil, apperrors.New(apperrors.KindUpstream, http.StatusInternalServerError, "Failed to fetch session details", err)
	}

	details := &models.SessionDetails{
		AmountTotal:   float64(sess.AmountTotal) / 100,
		Currency:      string(sess.Currency),
		PaymentStatus: string(sess.PaymentStatus),
	}
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		email := sess.CustomerDetails.Email
		details.CustomerEmail = &email
	}
	return details, nil
}
