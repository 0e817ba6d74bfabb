package worker

import (
	"context"
	"errors"

	"commerce-service/internal/broker"
	"commerce-service/internal/ledger"
	"commerce-service/internal/models"
	"commerce-service/internal/util"

	"go.uber.org/zap"
)

// IncomeRecorder turns paid orders into ledger income
type IncomeRecorder interface {
	RecordOrderIncome(ctx context.Context, event *models.OrderPaidEvent) (*ledger.Entry, error)
}

// OrderWorker consumes order events and feeds the partner ledger
type OrderWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	income       IncomeRecorder
	logger       *zap.Logger
}

// NewOrderWorker creates a new order worker
func NewOrderWorker(consumer *broker.Consumer, income IncomeRecorder) *OrderWorker {
	w := &OrderWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		income:       income,
		logger:       util.GetLogger(),
	}
	w.eventHandler.OnOrderPaid(w.handleOrderPaid)
	return w
}

// Start consumes until ctx is cancelled
func (w *OrderWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting order worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop closes the consumer
func (w *OrderWorker) Stop() error {
	w.logger.Info("Stopping order worker")
	return w.consumer.Close()
}

func (w *OrderWorker) handleOrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	ctx, span := util.StartSpan(ctx, "OrderWorker.handleOrderPaid")
	defer span.End()

	entry, err := w.income.RecordOrderIncome(ctx, event)
	if errors.Is(err, ledger.ErrInvalid) {
		util.EventsConsumedTotal.WithLabelValues(event.EventType, "invalid").Inc()
		w.logger.Error("Dropping order income that can never be recorded",
			zap.String("order_id", event.OrderID),
			zap.String("event_id", event.EventID),
			zap.Error(err))
		return nil
	}
	if err != nil {
		util.EventsConsumedTotal.WithLabelValues(event.EventType, "error").Inc()
		util.RecordError(ctx, err)
		w.logger.Error("Failed to record order income",
			zap.String("order_id", event.OrderID),
			zap.String("event_id", event.EventID),
			zap.Error(err))
		return err
	}
	if entry == nil {
		util.EventsConsumedTotal.WithLabelValues(event.EventType, "duplicate").Inc()
		return nil
	}

	util.EventsConsumedTotal.WithLabelValues(event.EventType, "processed").Inc()
	w.logger.Info("Recorded order income",
		zap.String("order_id", event.OrderID),
		zap.String("log_id", entry.ID))
	return nil
}
