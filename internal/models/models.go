package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Product represents a catalog item
type Product struct {
	ID                   string          `db:"id" json:"id"`
	Title                string          `db:"title" json:"title"`
	Price                int64           `db:"price" json:"price"`
	Category             string          `db:"category" json:"category"`
	OnOffer              bool            `db:"on_offer" json:"on_offer"`
	DiscountType         string          `db:"discount_type" json:"discount_type,omitempty"`
	DiscountValue        decimal.Decimal `db:"discount_value" json:"discount_value"`
	DiscountExpiry       *time.Time      `db:"discount_expiry" json:"discount_expiry,omitempty"`
	Contents             pq.StringArray  `db:"contents" json:"contents"`
	AssemblyInstructions string          `db:"assembly_instructions" json:"assembly_instructions,omitempty"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
}

// Discount types
const (
	DiscountFlat       = "flat"
	DiscountPercentage = "percentage"
)

var hundred = decimal.NewFromInt(100)

// EffectivePrice returns the unit price after any live discount, in whole rupees
func (p *Product) EffectivePrice(now time.Time) int64 {
	if !p.OnOffer {
		return p.Price
	}
	if p.DiscountExpiry != nil && p.DiscountExpiry.Before(now) {
		return p.Price
	}

	price := decimal.NewFromInt(p.Price)
	switch p.DiscountType {
	case DiscountFlat:
		discounted := price.Sub(p.DiscountValue).Round(0)
		if discounted.IsNegative() {
			return 0
		}
		return discounted.IntPart()
	case DiscountPercentage:
		pct := decimal.Max(decimal.Zero, decimal.Min(p.DiscountValue, hundred))
		factor := decimal.NewFromInt(1).Sub(pct.Div(hundred))
		return price.Mul(factor).Round(0).IntPart()
	default:
		return p.Price
	}
}

// IsKit reports whether the product ships as an assembled kit
func (p *Product) IsKit() bool {
	for _, c := range p.Contents {
		if strings.TrimSpace(c) != "" {
			return true
		}
	}
	return strings.TrimSpace(p.AssemblyInstructions) != ""
}

// ShippingDetails is the customer block captured at checkout
type ShippingDetails struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Pincode string `json:"pincode"`
}

// OrderLine is the per-product snapshot stored with an order
type OrderLine struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"line_total"`
	IsKit     bool   `json:"is_kit"`
}

// Order represents a customer order and its payment state
type Order struct {
	ID               string             `db:"id" json:"id"`
	CustomerName     string             `db:"customer_name" json:"customer_name"`
	CustomerEmail    string             `db:"customer_email" json:"customer_email"`
	CustomerPhone    string             `db:"customer_phone" json:"customer_phone"`
	ShippingAddress  string             `db:"shipping_address" json:"shipping_address"`
	Pincode          string             `db:"pincode" json:"pincode"`
	Notes            string             `db:"notes" json:"notes,omitempty"`
	CartItems        types.JSONText     `db:"cart_items" json:"cart_items"`
	Subtotal         int64              `db:"subtotal" json:"subtotal"`
	DeliveryCharge   int64              `db:"delivery_charge" json:"delivery_charge"`
	TotalAmount      int64              `db:"total_amount" json:"total_amount"`
	Status           string             `db:"status" json:"status"`
	PaymentStatus    string             `db:"payment_status" json:"payment_status"`
	GatewayOrderID   string             `db:"gateway_order_id" json:"gateway_order_id"`
	GatewayPaymentID *string            `db:"gateway_payment_id" json:"gateway_payment_id,omitempty"`
	PaymentAmount    *int64             `db:"payment_amount" json:"payment_amount,omitempty"`
	PaymentCurrency  *string            `db:"payment_currency" json:"payment_currency,omitempty"`
	PaymentMethod    *string            `db:"payment_method" json:"payment_method,omitempty"`
	PaidAt           *time.Time         `db:"paid_at" json:"paid_at,omitempty"`
	WebhookPayload   types.NullJSONText `db:"webhook_payload" json:"-"`
	CreatedAt        time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `db:"updated_at" json:"updated_at"`
}

// Lines decodes the cart snapshot
func (o *Order) Lines() ([]OrderLine, error) {
	var lines []OrderLine
	if len(o.CartItems) == 0 {
		return lines, nil
	}
	if err := json.Unmarshal(o.CartItems, &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// AmountMinor is the order total in paise
func (o *Order) AmountMinor() int64 {
	return o.TotalAmount * 100
}

// Order statuses
const (
	OrderStatusPaymentPending   = "payment_pending"
	OrderStatusPaymentCompleted = "payment_completed"
	OrderStatusPaymentFailed    = "payment_failed"
	OrderStatusPendingReview    = "pending_review"
	OrderStatusConfirmed        = "confirmed"
	OrderStatusDelivered        = "delivered"
	OrderStatusCancelled        = "cancelled"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

// PaymentCapture carries the gateway's authoritative capture record
type PaymentCapture struct {
	GatewayOrderID string
	PaymentID      string
	AmountMinor    int64
	Currency       string
	Method         string
	PaidAt         time.Time
	Payload        []byte
}

// PaymentFailure carries a failed payment notification
type PaymentFailure struct {
	GatewayOrderID string
	PaymentID      string
	Payload        []byte
}

// MinorToRupees converts paise to a rupee decimal
func MinorToRupees(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// Comment is an append-only note attached to a ledger log or task
type Comment struct {
	ID         string    `db:"id" json:"id"`
	ParentType string    `db:"parent_type" json:"parent_type"`
	ParentID   string    `db:"parent_id" json:"parent_id"`
	Author     string    `db:"author" json:"author"`
	Content    string    `db:"content" json:"content"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Comment parent types
const (
	CommentParentLog  = "log"
	CommentParentTask = "task"
)

// Partner mirrors an identity known to the ledger
type Partner struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
