package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	segkafka "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingbai-i/mall-order-go/internal/order/domain"
)

type fakeWriter struct {
	topic    string
	messages []segkafka.Message
	err      error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...segkafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func testOrder() *domain.Order {
	return &domain.Order{
		ID:        42,
		OrderNo:   "ORD1700000000000ABCDEF",
		UserID:    7,
		Status:    domain.StatusPending,
		PayAmount: decimal.RequireFromString("199.98"),
	}
}

func TestPublishRoutesByEventType(t *testing.T) {
	writers := map[string]*fakeWriter{}
	pub := NewPublisherFunc("order-service", func(topic string) Writer {
		w, ok := writers[topic]
		if !ok {
			w = &fakeWriter{topic: topic}
			writers[topic] = w
		}
		return w
	})

	o := testOrder()
	pub.Publish(context.Background(), NewCreated(o))
	pub.Publish(context.Background(), NewStatusChange(o, TypeOrderPaid, "paid"))
	pub.Publish(context.Background(), NewTimeout(o))

	require.Len(t, writers["order.created"].messages, 1)
	require.Len(t, writers["order.paid"].messages, 1)
	require.Len(t, writers["order.timeout"].messages, 1)

	msg := writers["order.created"].messages[0]
	assert.Equal(t, o.OrderNo, string(msg.Key))

	var ev Event
	require.NoError(t, json.Unmarshal(msg.Value, &ev))
	assert.Equal(t, TypeOrderCreated, ev.Type)
	assert.Equal(t, int64(42), ev.OrderID)
	assert.Equal(t, int64(7), ev.UserID)
	assert.NotEmpty(t, ev.EventID)
	require.NotNil(t, ev.Amount)
	assert.True(t, ev.Amount.Equal(decimal.RequireFromString("199.98")))
}

func TestPublishDropsOnWriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	pub := NewPublisherFunc("order-service", func(string) Writer { return w })

	// must not panic or return anything; best effort only
	pub.Publish(context.Background(), NewCreated(testOrder()))
	assert.Empty(t, w.messages)
}

func TestPublishDisabledIsNoop(t *testing.T) {
	pub := NewPublisherFunc("order-service", nil)
	pub.Publish(context.Background(), NewCreated(testOrder()))
}

func TestNewStatusChangeFields(t *testing.T) {
	o := testOrder()
	ev := NewStatusChange(o, TypeOrderCancelled, "cancelled by user")
	assert.Equal(t, TypeOrderCancelled, ev.Type)
	assert.Equal(t, "cancelled by user", ev.Message)
	assert.Nil(t, ev.Amount)
	assert.False(t, ev.EventTime.IsZero())
}

func TestForStatus(t *testing.T) {
	cases := map[domain.OrderStatus]Type{
		domain.StatusPending:   TypeOrderCreated,
		domain.StatusPaid:      TypeOrderPaid,
		domain.StatusShipped:   TypeOrderShipped,
		domain.StatusCompleted: TypeOrderCompleted,
		domain.StatusCancelled: TypeOrderCancelled,
	}
	for status, want := range cases {
		typ, ok := ForStatus(status)
		require.True(t, ok, "status %s", status)
		assert.Equal(t, want, typ)
	}

	_, ok := ForStatus(domain.StatusRefundPending)
	assert.False(t, ok)
}
