package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"storefront-service/models"
	"storefront-service/providers"

	"github.com/stripe/stripe-go/v80"
	"go.uber.org/zap"
)

// Item sources, in the order they are tried.
const (
	SourceMetadata    = "metadata"
	SourceLineItems   = "line_items"
	SourceSynthesized = "synthesized"
)

var errNoMetadataItems = errors.New("session metadata has no items")

// ItemRecoveryStrategy is one way of rebuilding a session's purchased items.
type ItemRecoveryStrategy struct {
	Name    string
	Recover func(ctx context.Context, sess *stripe.CheckoutSession) ([]models.OrderItem, error)
}

// DefaultRecoveryStrategies tries the cart stored in metadata, then the
// session's line items, then a single item built from the session totals.
func DefaultRecoveryStrategies(payments providers.PaymentProvider) []ItemRecoveryStrategy {
	return []ItemRecoveryStrategy{
		{Name: SourceMetadata, Recover: itemsFromMetadata},
		{Name: SourceLineItems, Recover: itemsFromLineItems(payments)},
		{Name: SourceSynthesized, Recover: synthesizedItem},
	}
}

// RecoverItems returns the result of the first strategy that succeeds and
// its name. Failures are logged and the next strategy is tried.
func RecoverItems(ctx context.Context, sess *stripe.CheckoutSession, strategies []ItemRecoveryStrategy, log *zap.Logger) ([]models.OrderItem, string) {
	for _, st := range strategies {
		items, err := st.Recover(ctx, sess)
		if err == nil {
			return items, st.Name
		}
		log.Warn("Item recovery strategy failed",
			zap.String("strategy", st.Name),
			zap.String("session_id", sess.ID),
			zap.Error(err))
	}
	return []models.OrderItem{}, ""
}

func itemsFromMetadata(_ context.Context, sess *stripe.CheckoutSession) ([]models.OrderItem, error) {
	raw, ok := sess.Metadata["items"]
	if !ok || raw == "" {
		return nil, errNoMetadataItems
	}
	var cart []models.CartItem
	if err := json.Unmarshal([]byte(raw), &cart); err != nil {
		return nil, fmt.Errorf("parse metadata items: %w", err)
	}
	if len(cart) == 0 {
		return nil, errNoMetadataItems
	}

	items := make([]models.OrderItem, 0, len(cart))
	for _, c := range cart {
		price, _ := c.Price.Float()
		name := c.Name
		if name == "" {
			name = defaultItemName
		}
		items = append(items, models.OrderItem{
			ID:       itemIdentifier(c.ID, c.Name),
			Name:     name,
			Price:    price,
			Quantity: itemQuantity(c.Quantity),
		})
	}
	return items, nil
}

func itemsFromLineItems(payments providers.PaymentProvider) func(context.Context, *stripe.CheckoutSession) ([]models.OrderItem, error) {
	return func(ctx context.Context, sess *stripe.CheckoutSession) ([]models.OrderItem, error) {
		full, err := payments.GetCheckoutSession(ctx, sess.ID, true)
		if err != nil {
			return nil, err
		}
		if full.LineItems == nil || len(full.LineItems.Data) == 0 {
			return nil, fmt.Errorf("session %s has no line items", sess.ID)
		}

		items := make([]models.OrderItem, 0, len(full.LineItems.Data))
		for _, li := range full.LineItems.Data {
			item := models.OrderItem{ID: "unknown", Name: li.Description, Quantity: li.Quantity}
			if li.Price != nil {
				item.Price = float64(li.Price.UnitAmount) / 100
				if p := li.Price.Product; p != nil {
					if id := p.Metadata[productItemIDKey]; id != "" {
						item.ID = id
					} else if p.ID != "" {
						item.ID = p.ID
					}
				}
			}
			if item.Name == "" {
				item.Name = defaultItemName
			}
			if item.Quantity == 0 {
				item.Quantity = 1
			}
			items = append(items, item)
		}
		return items, nil
	}
}

func synthesizedItem(_ context.Context, sess *stripe.CheckoutSession) ([]models.OrderItem, error) {
	name := sess.Metadata["product_names"]
	if name == "" {
		name = defaultItemName
	}
	return []models.OrderItem{{
		Name:     name,
		Price:    float64(sess.AmountTotal) / 100,
		Quantity: 1,
	}}, nil
}
