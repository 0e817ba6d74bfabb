package models

import "time"

// Event types
const (
	EventTypeOrderCreated       = "ORDER_CREATED"
	EventTypeOrderPaid          = "ORDER_PAID"
	EventTypeOrderPaymentFailed = "ORDER_PAYMENT_FAILED"
	EventTypeOrderStatusChanged = "ORDER_STATUS_CHANGED"
	EventTypeLedgerLogCreated   = "LEDGER_LOG_CREATED"
	EventTypeLedgerLogDecided   = "LEDGER_LOG_DECIDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published once an order row exists in payment_pending
type OrderCreatedEvent struct {
	BaseEvent
	OrderID        string      `json:"order_id"`
	GatewayOrderID string      `json:"gateway_order_id"`
	CustomerEmail  string      `json:"customer_email"`
	Subtotal       int64       `json:"subtotal"`
	DeliveryCharge int64       `json:"delivery_charge"`
	TotalAmount    int64       `json:"total_amount"`
	Items          []OrderLine `json:"items"`
}

// OrderPaidEvent published when the gateway confirms a capture
type OrderPaidEvent struct {
	BaseEvent
	OrderID        string `json:"order_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	PaymentID      string `json:"payment_id"`
	AmountMinor    int64  `json:"amount_minor"`
	Currency       string `json:"currency"`
	Method         string `json:"method"`
	CustomerName   string `json:"customer_name"`
}

// OrderPaymentFailedEvent published when the gateway reports a failed payment
type OrderPaymentFailedEvent struct {
	BaseEvent
	OrderID        string `json:"order_id"`
	GatewayOrderID string `json:"gateway_order_id"`
	PaymentID      string `json:"payment_id,omitempty"`
}

// OrderStatusChangedEvent published on operator transitions
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Actor   string `json:"actor"`
}

// LedgerLogCreatedEvent published when a partner files a log
type LedgerLogCreatedEvent struct {
	BaseEvent
	LogID     string `json:"log_id"`
	LogType   string `json:"log_type"`
	CreatedBy string `json:"created_by"`
	Amount    string `json:"amount,omitempty"`
}

// LedgerLogDecidedEvent published when an approver decides a log
type LedgerLogDecidedEvent struct {
	BaseEvent
	LogID      string `json:"log_id"`
	LogType    string `json:"log_type"`
	Status     string `json:"status"`
	DecisionBy string `json:"decision_by"`
}
