package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// PaymentStatus mirrors the checkout session payment_status values.
type PaymentStatus string

const (
	PaymentStatusPaid              PaymentStatus = "paid"
	PaymentStatusUnpaid            PaymentStatus = "unpaid"
	PaymentStatusNoPaymentRequired PaymentStatus = "no_payment_required"
)

// OrderItem is the normalized item shape persisted with an order.
type OrderItem struct {
	ID       string  `json:"id,omitempty"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// Order is one completed checkout, free or paid.
type Order struct {
	ID            uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	SessionID     string         `gorm:"column:stripe_session_id;type:text;not null;uniqueIndex" json:"stripe_session_id"`
	CustomerEmail *string        `gorm:"type:text" json:"customer_email"`
	AmountTotal   float64        `gorm:"type:numeric(12,2);not null" json:"amount_total"`
	Currency      string         `gorm:"type:varchar(10);not null;default:'usd'" json:"currency"`
	PaymentStatus PaymentStatus  `gorm:"type:varchar(32);not null" json:"payment_status"`
	Items         datatypes.JSON `gorm:"type:jsonb;not null" json:"items"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (Order) TableName() string { return "orders" }

// DigitalAccess is a time-limited download entitlement for one purchased item.
type DigitalAccess struct {
	ID            uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID       uuid.UUID `gorm:"type:uuid;not null;index" json:"order_id"`
	SessionID     string    `gorm:"column:stripe_session_id;type:text;not null;index" json:"stripe_session_id"`
	CustomerEmail *string   `gorm:"type:text" json:"customer_email"`
	ProductID     string    `gorm:"type:text;not null" json:"product_id"`
	DownloadToken string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"download_token"`
	ExpiresAt     time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt     time.Time `json:"created_at"`
}

func (DigitalAccess) TableName() string { return "digital_access" }

// OrderRecordedEvent is published after an order row is written.
type OrderRecordedEvent struct {
	EventType     string    `json:"event_type"`
	OrderID       string    `json:"order_id"`
	SessionID     string    `json:"stripe_session_id"`
	AmountTotal   float64   `json:"amount_total"`
	Currency      string    `json:"currency"`
	Free          bool      `json:"free"`
	DigitalGrants int       `json:"digital_grants"`
	Timestamp     time.Time `json:"timestamp"`
}
