package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// FlexNumber accepts a JSON number or a numeric string, the way browsers
// tend to send cart prices.
type FlexNumber struct {
	raw string
	set bool
}

func (n *FlexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = FlexNumber{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = FlexNumber{raw: strings.TrimSpace(s), set: true}
		return nil
	}
	*n = FlexNumber{raw: string(b), set: true}
	return nil
}

func (n FlexNumber) MarshalJSON() ([]byte, error) {
	if !n.set {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseFloat(n.raw, 64); err == nil {
		return []byte(n.raw), nil
	}
	return json.Marshal(n.raw)
}

// Num builds a FlexNumber from a float.
func Num(f float64) FlexNumber {
	return FlexNumber{raw: strconv.FormatFloat(f, 'f', -1, 64), set: true}
}

// IsSet reports whether a value was present.
func (n FlexNumber) IsSet() bool { return n.set }

// Float parses the value as a decimal.
func (n FlexNumber) Float() (float64, bool) {
	if !n.set || n.raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(n.raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Int parses the leading integer part, so "2.7" reads as 2.
func (n FlexNumber) Int() (int64, bool) {
	f, ok := n.Float()
	if !ok {
		return 0, false
	}
	return int64(f), true
}

// CartItem is a client-supplied, untrusted cart entry.
type CartItem struct {
	ID          string          `json:"id,omitempty"`
	Name        string          `json:"name"`
	Price       FlexNumber      `json:"price"`
	Quantity    FlexNumber      `json:"quantity"`
	Description string          `json:"description,omitempty"`
	Images      json.RawMessage `json:"images,omitempty"`
}

// CheckoutRequest is the body of POST /api/create-checkout-session.
type CheckoutRequest struct {
	Items         []CartItem `json:"items"`
	SuccessURL    string     `json:"successUrl"`
	CancelURL     string     `json:"cancelUrl"`
	CustomerEmail string     `json:"customerEmail"`
	Email         string     `json:"email"`
}

// Customer returns the customer email from either accepted field.
func (r CheckoutRequest) Customer() string {
	if r.CustomerEmail != "" {
		return r.CustomerEmail
	}
	return r.Email
}

// PricedLineItem is a sanitized cart entry priced in minor units.
type PricedLineItem struct {
	ItemID      string
	Currency    string
	UnitAmount  int64
	Name        string
	Description string
	Images      []string
	Quantity    int64
}

// CheckoutSessionResult is what the checkout endpoint returns to the browser.
type CheckoutSessionResult struct {
	ID           string `json:"id"`
	URL          string `json:"url"`
	Free         bool   `json:"free,omitempty"`
	OrderID      string `json:"orderId,omitempty"`
	Saved        bool   `json:"saved,omitempty"`
	Message      string `json:"message,omitempty"`
	Warning      string `json:"warning,omitempty"`
	Error        string `json:"error,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorDetails string `json:"errorDetails,omitempty"`
}

// SessionDetails is the public view of a checkout session.
type SessionDetails struct {
	AmountTotal   float64 `json:"amount_total"`
	Currency      string  `json:"currency"`
	PaymentStatus string  `json:"payment_status"`
	CustomerEmail *string `json:"customer_email"`
}
