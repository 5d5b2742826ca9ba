package domain

import (
	"database/sql"
	"time"
)

// PurchaseStatus is the lifecycle state of a purchase order.
// Allowed transitions:
//
//	pending -> completed | failed
//	failed  -> completed (late legitimate webhook)
//	completed -> refund_pending -> refunded
//
// completed never regresses to failed.
type PurchaseStatus string

const (
	StatusPending       PurchaseStatus = "pending"
	StatusCompleted     PurchaseStatus = "completed"
	StatusFailed        PurchaseStatus = "failed"
	StatusRefundPending PurchaseStatus = "refund_pending"
	StatusRefunded      PurchaseStatus = "refunded"
)

// PurchaseOrder is one attempt to buy one magazine. Rows are never deleted,
// only superseded by status.
type PurchaseOrder struct {
	ID               string         `db:"id"`
	GatewayOrderID   string         `db:"gateway_order_id"`
	BuyerID          sql.NullString `db:"buyer_id"`
	BuyerEmail       string         `db:"buyer_email"`
	ItemID           int64          `db:"item_id"`
	Amount           int64          `db:"amount"`
	Currency         string         `db:"currency"`
	Status           PurchaseStatus `db:"status"`
	GatewayPaymentID sql.NullString `db:"gateway_payment_id"`
	Signature        sql.NullString `db:"signature"`
	Guest            bool           `db:"guest"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

// AccessGrant is the durable proof that a buyer may read a paid magazine.
// At most one active grant exists per (buyer, item); refunds deactivate it.
type AccessGrant struct {
	ID         int64     `db:"id"`
	BuyerID    string    `db:"buyer_id"`
	ItemID     int64     `db:"item_id"`
	PurchaseID string    `db:"purchase_id"`
	Active     bool      `db:"active"`
	CreatedAt  time.Time `db:"created_at"`
}

// User is the minimal durable identity a guest purchase is attached to.
type User struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	Phone        string    `db:"phone"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

// MagazineItem is the catalog read model. The CMS owns these rows; this
// service only reads price/currency and bumps sales_count on a sale.
type MagazineItem struct {
	ID         int64  `db:"id"`
	Title      string `db:"title"`
	Price      int64  `db:"price"`
	Currency   string `db:"currency"`
	SalesCount int64  `db:"sales_count"`
}

// Free reports whether the item needs no purchase at all.
func (m MagazineItem) Free() bool { return m.Price <= 0 }

// GuestDetails is the checkout-time provisioning data for an unauthenticated
// buyer. It travels in the gateway order notes and is never persisted before
// payment succeeds.
type GuestDetails struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password,omitempty"`
}

// PurchaseEvent is published to Kafka when a purchase completes. The field
// layout matches what the downstream notification service consumes.
type PurchaseEvent struct {
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
	UserEmail     string `json:"user_email"`
	AmountMinor   int64  `json:"amount_minor"`
	Currency      string `json:"currency"`
	ProductID     string `json:"product_id"`
	Provider      string `json:"provider"`
}

// RefundEvent is published to Kafka when a refund is confirmed.
type RefundEvent struct {
	TransactionID  string `json:"transaction_id"`
	UserEmail      string `json:"user_email"`
	RefundID       string `json:"refund_id"`
	RefundedAmount int64  `json:"refunded_amount"`
	Reason         string `json:"reason"`
}
