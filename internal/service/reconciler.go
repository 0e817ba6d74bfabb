package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commerce-service/internal/gateway"
	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedWebhook = gateway.ErrMalformedEvent
)

// Webhook actions reported back to the handler
const (
	WebhookApplied   = "applied"
	WebhookIgnored   = "ignored"
	WebhookDuplicate = "duplicate"
	WebhookNoop      = "noop"
)

const webhookKeyTTL = 24 * time.Hour

// WebhookResult describes what a delivery did
type WebhookResult struct {
	Event   string `json:"event"`
	Action  string `json:"action"`
	OrderID string `json:"order_id,omitempty"`
}

// Reconciler applies gateway webhooks to orders. It is the authoritative path
// for payment state.
type Reconciler struct {
	orders    OrderStore
	events    EventStore
	keys      IdempotencyKeys
	publisher EventPublisher
	secret    string
	logger    *zap.Logger
	now       func() time.Time
}

// NewReconciler creates a new reconciler. keys may be nil.
func NewReconciler(orders OrderStore, events EventStore, keys IdempotencyKeys, publisher EventPublisher, webhookSecret string) *Reconciler {
	return &Reconciler{
		orders:    orders,
		events:    events,
		keys:      keys,
		publisher: publisher,
		secret:    webhookSecret,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// HandleWebhook verifies and applies one delivery. eventID is the gateway's
// delivery id and may be empty.
func (r *Reconciler) HandleWebhook(ctx context.Context, body []byte, signature, eventID string) (*WebhookResult, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.HandleWebhook")
	defer span.End()

	if signature == "" {
		util.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		return nil, ErrMissingSignature
	}
	if !gateway.VerifyWebhookSignature(body, signature, r.secret) {
		util.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		r.logger.Warn("Webhook signature mismatch", zap.String("event_id", eventID))
		return nil, ErrInvalidSignature
	}

	ev, err := gateway.ParseWebhookEvent(body)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		return nil, err
	}

	if eventID != "" {
		seen, err := r.seen(ctx, eventID)
		if err != nil {
			return nil, fmt.Errorf("failed to check event processed: %w", err)
		}
		if seen {
			util.WebhookEventsTotal.WithLabelValues(ev.Event, WebhookDuplicate).Inc()
			r.logger.Info("Webhook already processed", zap.String("event_id", eventID), zap.String("event", ev.Event))
			return &WebhookResult{Event: ev.Event, Action: WebhookDuplicate}, nil
		}
	}

	var res *WebhookResult
	switch ev.Event {
	case gateway.EventPaymentCaptured:
		res, err = r.applyCaptured(ctx, ev, body)
	case gateway.EventPaymentFailed:
		res, err = r.applyFailed(ctx, ev, body)
	default:
		res = &WebhookResult{Event: ev.Event, Action: WebhookIgnored}
	}
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues(ev.Event, "error").Inc()
		util.RecordError(ctx, err)
		return nil, err
	}

	util.WebhookEventsTotal.WithLabelValues(ev.Event, res.Action).Inc()
	if eventID != "" {
		r.markProcessed(ctx, eventID, ev.Event)
	}
	return res, nil
}

func (r *Reconciler) seen(ctx context.Context, eventID string) (bool, error) {
	if r.keys != nil {
		hit, err := r.keys.CheckIdempotencyKey(ctx, "webhook:"+eventID)
		if err == nil && hit {
			return true, nil
		}
		if err != nil {
			r.logger.Warn("Idempotency cache unavailable", zap.Error(err))
		}
	}
	return r.events.IsEventProcessed(ctx, eventID)
}

func (r *Reconciler) markProcessed(ctx context.Context, eventID, eventType string) {
	if err := r.events.MarkEventProcessed(ctx, eventID, eventType); err != nil {
		r.logger.Error("Failed to mark event processed", zap.String("event_id", eventID), zap.Error(err))
	}
	if r.keys != nil {
		if err := r.keys.SetIdempotencyKey(ctx, "webhook:"+eventID, eventType, webhookKeyTTL); err != nil {
			r.logger.Warn("Failed to cache idempotency key", zap.String("event_id", eventID), zap.Error(err))
		}
	}
}

func (r *Reconciler) applyCaptured(ctx context.Context, ev *gateway.WebhookEvent, body []byte) (*WebhookResult, error) {
	p := ev.Payment()
	if p.OrderID == "" {
		return nil, fmt.Errorf("%w: payment has no order_id", ErrMalformedWebhook)
	}

	paidAt := r.now()
	if p.CreatedAt > 0 {
		paidAt = time.Unix(p.CreatedAt, 0).UTC()
	}

	moved, err := r.orders.ApplyPaymentCaptured(ctx, models.PaymentCapture{
		GatewayOrderID: p.OrderID,
		PaymentID:      p.ID,
		AmountMinor:    p.Amount,
		Currency:       p.Currency,
		Method:         p.Method,
		PaidAt:         paidAt,
		Payload:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply capture: %w", err)
	}

	order, err := r.orders.GetOrderByGatewayOrderID(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}

	if !moved {
		if order.PaymentStatus == models.PaymentStatusCompleted && order.Status != models.OrderStatusPaymentCompleted {
			r.logger.Info("Capture already applied", zap.String("order_id", order.ID), zap.String("status", order.Status))
			return &WebhookResult{Event: ev.Event, Action: WebhookNoop, OrderID: order.ID}, nil
		}
		return nil, fmt.Errorf("%w: capture for order %s in %s", ErrIllegalTransition, order.ID, order.Status)
	}

	if p.Amount != order.AmountMinor() {
		r.logger.Warn("Captured amount differs from order total",
			zap.String("order_id", order.ID),
			zap.Int64("captured", p.Amount),
			zap.Int64("expected", order.AmountMinor()))
	}
	r.logger.Info("Payment captured",
		zap.String("order_id", order.ID),
		zap.String("payment_id", p.ID),
		zap.Int64("amount", p.Amount))

	event := &models.OrderPaidEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPaid,
			Timestamp: r.now(),
		},
		OrderID:        order.ID,
		GatewayOrderID: p.OrderID,
		PaymentID:      p.ID,
		AmountMinor:    p.Amount,
		Currency:       p.Currency,
		Method:         p.Method,
		CustomerName:   order.CustomerName,
	}
	if err := r.publisher.PublishOrderPaid(ctx, event); err != nil {
		r.logger.Error("Failed to publish OrderPaid event", zap.String("order_id", order.ID), zap.Error(err))
	}

	return &WebhookResult{Event: ev.Event, Action: WebhookApplied, OrderID: order.ID}, nil
}

func (r *Reconciler) applyFailed(ctx context.Context, ev *gateway.WebhookEvent, body []byte) (*WebhookResult, error) {
	p := ev.Payment()
	if p.OrderID == "" {
		return nil, fmt.Errorf("%w: payment has no order_id", ErrMalformedWebhook)
	}

	moved, err := r.orders.ApplyPaymentFailed(ctx, models.PaymentFailure{
		GatewayOrderID: p.OrderID,
		PaymentID:      p.ID,
		Payload:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to apply payment failure: %w", err)
	}

	order, err := r.orders.GetOrderByGatewayOrderID(ctx, p.OrderID)
	if err != nil {
		return nil, err
	}

	if !moved {
		// A late failure after a captured payment, or after the operator
		// closed the order, leaves the order as it is.
		r.logger.Info("Payment failure not applied",
			zap.String("order_id", order.ID),
			zap.String("status", order.Status),
			zap.String("payment_status", order.PaymentStatus))
		return &WebhookResult{Event: ev.Event, Action: WebhookNoop, OrderID: order.ID}, nil
	}

	r.logger.Warn("Payment failed",
		zap.String("order_id", order.ID),
		zap.String("payment_id", p.ID),
		zap.String("reason", p.ErrorDescription))

	event := &models.OrderPaymentFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPaymentFailed,
			Timestamp: r.now(),
		},
		OrderID:        order.ID,
		GatewayOrderID: p.OrderID,
		PaymentID:      p.ID,
	}
	if err := r.publisher.PublishOrderPaymentFailed(ctx, event); err != nil {
		r.logger.Error("Failed to publish OrderPaymentFailed event", zap.String("order_id", order.ID), zap.Error(err))
	}

	return &WebhookResult{Event: ev.Event, Action: WebhookApplied, OrderID: order.ID}, nil
}
