package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Webhook event names acted on
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
)

// ErrMalformedEvent is returned when a webhook body cannot be decoded
var ErrMalformedEvent = errors.New("malformed webhook payload")

// PaymentEntity is the payment object embedded in payment.* events
type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Method           string `json:"method"`
	ErrorDescription string `json:"error_description,omitempty"`
	CreatedAt        int64  `json:"created_at"`
}

// WebhookEvent is the envelope posted by the gateway
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

// Payment returns the embedded payment entity
func (e *WebhookEvent) Payment() PaymentEntity {
	return e.Payload.Payment.Entity
}

// ParseWebhookEvent decodes a verified webhook body
func ParseWebhookEvent(body []byte) (*WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.Event == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrMalformedEvent)
	}
	return &ev, nil
}
