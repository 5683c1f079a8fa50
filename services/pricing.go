package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"storefront-service/config"
	"storefront-service/models"

	"github.com/go-playground/validator/v10"
)

const (
	checkoutCurrency = "usd"
	maxNameLength    = 200
	maxDescLength    = 500
	maxImagesPerItem = 8
	defaultItemName  = "Product"
)

var (
	validate = validator.New()

	ErrItemsRequired = errors.New("items are required")

	whitespaceRun = regexp.MustCompile(`\s+`)
)

// TooManyItemsError is returned when a cart exceeds the item ceiling.
type TooManyItemsError struct{ Max int }

func (e *TooManyItemsError) Error() string {
	return fmt.Sprintf("cart has more than %d items", e.Max)
}

// InvalidItemError reports a cart entry whose price or quantity is out of
// bounds. It is logged, never echoed to the client.
type InvalidItemError struct {
	Index int
	Field string
	Name  string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("invalid %s for item %d (%q)", e.Field, e.Index, e.Name)
}

// CheckoutPlan is either a FreeCheckout or a PaidCheckout.
type CheckoutPlan interface {
	isCheckoutPlan()
}

// FreeCheckout is a cart whose total is zero; it never reaches the payment provider.
type FreeCheckout struct {
	Items []models.OrderItem
}

// PaidCheckout is a cart that needs a hosted checkout session.
type PaidCheckout struct {
	LineItems  []models.PricedLineItem
	Items      []models.OrderItem
	TotalMinor int64
}

func (FreeCheckout) isCheckoutPlan() {}
func (PaidCheckout) isCheckoutPlan() {}

// PriceCart validates and sanitizes a client cart and decides whether it is
// free or paid. It performs no I/O.
func PriceCart(items []models.CartItem, limits config.CheckoutLimits) (CheckoutPlan, error) {
	if len(items) == 0 {
		return nil, ErrItemsRequired
	}
	if limits.MaxItems > 0 && len(items) > limits.MaxItems {
		return nil, &TooManyItemsError{Max: limits.MaxItems}
	}

	lineItems := make([]models.PricedLineItem, 0, len(items))
	normalized := make([]models.OrderItem, 0, len(items))
	var total int64

	for i, item := range items {
		price, ok := item.Price.Float()
		if !ok || math.IsNaN(price) || validate.Var(price, fmt.Sprintf("gte=0,lte=%v", limits.MaxPrice)) != nil {
			return nil, &InvalidItemError{Index: i, Field: "price", Name: item.Name}
		}

		quantity := itemQuantity(item.Quantity)
		if validate.Var(quantity, fmt.Sprintf("gte=1,lte=%d", limits.MaxQuantity)) != nil {
			return nil, &InvalidItemError{Index: i, Field: "quantity", Name: item.Name}
		}

		name := item.Name
		if name == "" {
			name = defaultItemName
		}
		unit := int64(math.Round(price * 100))
		total += unit * quantity
		id := itemIdentifier(item.ID, item.Name)

		lineItems = append(lineItems, models.PricedLineItem{
			ItemID:      id,
			Currency:    checkoutCurrency,
			UnitAmount:  unit,
			Name:        truncateRunes(name, maxNameLength),
			Description: truncateRunes(item.Description, maxDescLength),
			Images:      httpImages(item.Images),
			Quantity:    quantity,
		})
		normalized = append(normalized, models.OrderItem{
			ID:       id,
			Name:     name,
			Price:    price,
			Quantity: quantity,
		})
	}

	if total == 0 {
		return FreeCheckout{Items: normalized}, nil
	}
	return PaidCheckout{LineItems: lineItems, Items: normalized, TotalMinor: total}, nil
}

// itemQuantity reads a quantity the lenient way carts send it: missing, zero
// or unparseable means 1.
func itemQuantity(n models.FlexNumber) int64 {
	q, ok := n.Int()
	if !ok || q == 0 {
		return 1
	}
	return q
}

// Slug lowercases s and joins whitespace runs with a hyphen.
func Slug(s string) string {
	return whitespaceRun.ReplaceAllString(strings.ToLower(s), "-")
}

func itemIdentifier(id, name string) string {
	if id != "" {
		return id
	}
	return Slug(name)
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func httpImages(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	images := make([]string, 0, len(list))
	for _, v := range list {
		s, ok := v.(string)
		if !ok || !strings.HasPrefix(s, "http") {
			continue
		}
		images = append(images, s)
		if len(images) == maxImagesPerItem {
			break
		}
	}
	return images
}
