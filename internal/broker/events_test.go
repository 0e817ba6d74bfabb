package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"commerce-service/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleMessageRoutesOrderPaid(t *testing.T) {
	h := NewEventHandler()
	var got *models.OrderPaidEvent
	h.OnOrderPaid(func(_ context.Context, ev *models.OrderPaidEvent) error {
		got = ev
		return nil
	})

	value, err := json.Marshal(&models.OrderPaidEvent{
		BaseEvent: models.BaseEvent{EventID: "e1", EventType: models.EventTypeOrderPaid, Timestamp: time.Now()},
		OrderID:   "XLV_1_1",
		PaymentID: "pay_1",
	})
	require.NoError(t, err)

	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: value}))
	require.NotNil(t, got)
	assert.Equal(t, "XLV_1_1", got.OrderID)
	assert.Equal(t, "pay_1", got.PaymentID)
}

func TestHandleMessageIgnoresOtherEvents(t *testing.T) {
	h := NewEventHandler()
	called := false
	h.OnOrderPaid(func(context.Context, *models.OrderPaidEvent) error {
		called = true
		return nil
	})

	value, _ := json.Marshal(models.BaseEvent{EventID: "e2", EventType: models.EventTypeOrderCreated})
	assert.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: value}))
	assert.False(t, called)

	assert.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Value: []byte("nope")}))
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "order-XLV_1_2", orderKey("XLV_1_2"))
	assert.Equal(t, "log-abc", logKey("abc"))
}
