package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events. Order events and ledger
// events go to separate topics.
type EventPublisher struct {
	orders *Producer
	ledger *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(orders, ledger *Producer) *EventPublisher {
	return &EventPublisher{orders: orders, ledger: ledger}
}

func orderKey(orderID string) string {
	return fmt.Sprintf("order-%s", orderID)
}

func logKey(logID string) string {
	return fmt.Sprintf("log-%s", logID)
}

// PublishOrderCreated publishes OrderCreated event
func (ep *EventPublisher) PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error {
	return ep.orders.PublishEvent(ctx, orderKey(event.OrderID), event.EventType, event)
}

// PublishOrderPaid publishes OrderPaid event
func (ep *EventPublisher) PublishOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	return ep.orders.PublishEvent(ctx, orderKey(event.OrderID), event.EventType, event)
}

// PublishOrderPaymentFailed publishes OrderPaymentFailed event
func (ep *EventPublisher) PublishOrderPaymentFailed(ctx context.Context, event *models.OrderPaymentFailedEvent) error {
	return ep.orders.PublishEvent(ctx, orderKey(event.OrderID), event.EventType, event)
}

// PublishOrderStatusChanged publishes OrderStatusChanged event
func (ep *EventPublisher) PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	return ep.orders.PublishEvent(ctx, orderKey(event.OrderID), event.EventType, event)
}

// PublishLedgerLogCreated publishes LedgerLogCreated event
func (ep *EventPublisher) PublishLedgerLogCreated(ctx context.Context, event *models.LedgerLogCreatedEvent) error {
	return ep.ledger.PublishEvent(ctx, logKey(event.LogID), event.EventType, event)
}

// PublishLedgerLogDecided publishes LedgerLogDecided event
func (ep *EventPublisher) PublishLedgerLogDecided(ctx context.Context, event *models.LedgerLogDecidedEvent) error {
	return ep.ledger.PublishEvent(ctx, logKey(event.LogID), event.EventType, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onOrderPaid func(context.Context, *models.OrderPaidEvent) error
	logger      *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderPaid registers a handler for OrderPaid events
func (eh *EventHandler) OnOrderPaid(handler func(context.Context, *models.OrderPaidEvent) error) {
	eh.onOrderPaid = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		eh.logger.Error("Dropping undecodable message",
			zap.String("topic", msg.Topic),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
		return nil
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderPaid:
		if eh.onOrderPaid != nil {
			var event models.OrderPaidEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				eh.logger.Error("Dropping undecodable OrderPaid event",
					zap.String("event_id", baseEvent.EventID),
					zap.Error(err))
				return nil
			}
			return eh.onOrderPaid(ctx, &event)
		}
	}

	return nil
}
