package models

import "encoding/json"

// MockupRequest is the body of POST /api/printful-mockup. Scalars are
// accepted where lists are expected.
type MockupRequest struct {
	VariantIDs json.RawMessage `json:"variant_ids"`
	Format     string          `json:"format"`
	Width      int             `json:"width"`
	Files      json.RawMessage `json:"files"`
}

// MockupTask is the payload sent to the mockup generator.
type MockupTask struct {
	VariantIDs []json.RawMessage `json:"variant_ids"`
	Format     string            `json:"format"`
	Width      int               `json:"width"`
	Files      []json.RawMessage `json:"files"`
}

// FulfillmentOrderRequest is the body of POST /api/printful-order.
type FulfillmentOrderRequest struct {
	Action       string          `json:"action"`
	OrderData    json.RawMessage `json:"order_data"`
	ShippingData json.RawMessage `json:"shipping_data"`
}

// DesignerNonceRequest is the body of POST /api/printful-designer-nonce.
type DesignerNonceRequest struct {
	ExternalProductID  string `json:"external_product_id" validate:"required"`
	ExternalCustomerID string `json:"external_customer_id,omitempty"`
}

// DesignerNonce is what the embedded designer needs to open.
type DesignerNonce struct {
	Nonce     string `json:"nonce"`
	ExpiresAt any    `json:"expires_at"`
}
