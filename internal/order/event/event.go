package event

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lingbai-i/mall-order-go/internal/order/domain"
)

// Type doubles as the routing key the event is published under. Each
// downstream queue is bound 1:1 to one routing key.
type Type string

const (
	TypeOrderCreated   Type = "order.created"
	TypeOrderPaid      Type = "order.paid"
	TypeOrderShipped   Type = "order.shipped"
	TypeOrderCompleted Type = "order.completed"
	TypeOrderCancelled Type = "order.cancelled"
	TypeOrderTimeout   Type = "order.timeout"
)

// Types lists every routing key, in publish-taxonomy order.
var Types = []Type{
	TypeOrderCreated,
	TypeOrderPaid,
	TypeOrderShipped,
	TypeOrderCompleted,
	TypeOrderCancelled,
	TypeOrderTimeout,
}

// Event is the immutable payload of one committed lifecycle transition.
// It is handed to the publisher and then discarded; nothing is persisted
// beyond the broker.
type Event struct {
	EventID   string           `json:"event_id"`
	Type      Type             `json:"type"`
	OrderID   int64            `json:"order_id"`
	OrderNo   string           `json:"order_no"`
	UserID    int64            `json:"user_id"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Message   string           `json:"message,omitempty"`
	EventTime time.Time        `json:"event_time"`
}

func NewCreated(o *domain.Order) Event {
	amount := o.PayAmount
	return Event{
		EventID:   uuid.NewString(),
		Type:      TypeOrderCreated,
		OrderID:   o.ID,
		OrderNo:   o.OrderNo,
		UserID:    o.UserID,
		Amount:    &amount,
		Message:   "order created",
		EventTime: time.Now().UTC(),
	}
}

func NewStatusChange(o *domain.Order, typ Type, message string) Event {
	return Event{
		EventID:   uuid.NewString(),
		Type:      typ,
		OrderID:   o.ID,
		OrderNo:   o.OrderNo,
		UserID:    o.UserID,
		Message:   message,
		EventTime: time.Now().UTC(),
	}
}

func NewTimeout(o *domain.Order) Event {
	return Event{
		EventID:   uuid.NewString(),
		Type:      TypeOrderTimeout,
		OrderID:   o.ID,
		OrderNo:   o.OrderNo,
		UserID:    o.UserID,
		Message:   "payment window expired",
		EventTime: time.Now().UTC(),
	}
}

// ForStatus maps a target status to its routing key. Statuses without a
// lifecycle event (refund states) return false.
func ForStatus(status domain.OrderStatus) (Type, bool) {
	switch status {
	case domain.StatusPending:
		return TypeOrderCreated, true
	case domain.StatusPaid:
		return TypeOrderPaid, true
	case domain.StatusShipped:
		return TypeOrderShipped, true
	case domain.StatusCompleted:
		return TypeOrderCompleted, true
	case domain.StatusCancelled:
		return TypeOrderCancelled, true
	default:
		return "", false
	}
}
