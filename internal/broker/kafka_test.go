package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestHandleWithRetryRunsFailedMessageAgain(t *testing.T) {
	var offsets []int64
	handler := func(_ context.Context, msg kafka.Message) error {
		offsets = append(offsets, msg.Offset)
		if len(offsets) == 1 {
			return errors.New("database unavailable")
		}
		return nil
	}

	err := handleWithRetry(context.Background(), zap.NewNop(), kafka.Message{Offset: 42}, handler, time.Millisecond, 5*time.Millisecond)

	assert.NoError(t, err)
	assert.Equal(t, []int64{42, 42}, offsets)
}

func TestHandleWithRetryStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	handler := func(context.Context, kafka.Message) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return errors.New("still failing")
	}

	err := handleWithRetry(ctx, zap.NewNop(), kafka.Message{}, handler, time.Millisecond, 2*time.Millisecond)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, calls)
}
