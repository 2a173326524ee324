package domain

import "fmt"

// OrderStatus is the wire code of an order lifecycle state.
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusShipped   OrderStatus = "shipped"
	StatusCompleted OrderStatus = "completed"
	StatusCancelled OrderStatus = "cancelled"
	StatusRefunding OrderStatus = "refunding"
	// StatusRefundPending is the state right after a refund request is
	// accepted, before the payment side has picked it up.
	StatusRefundPending OrderStatus = "refund_pending"
	StatusRefunded      OrderStatus = "refunded"

	// StatusPendingPayment is a legacy alias for StatusPending carried
	// over from older callers; same wire code, do not add new uses.
	StatusPendingPayment OrderStatus = "pending"
)

var statusNames = map[OrderStatus]string{
	StatusPending:       "awaiting payment",
	StatusPaid:          "paid",
	StatusShipped:       "shipped",
	StatusCompleted:     "completed",
	StatusCancelled:     "cancelled",
	StatusRefunding:     "refund in progress",
	StatusRefundPending: "refund pending",
	StatusRefunded:      "refunded",
}

func ParseStatus(code string) (OrderStatus, error) {
	s := OrderStatus(code)
	if _, ok := statusNames[s]; !ok {
		return "", fmt.Errorf("unknown order status %q", code)
	}
	return s, nil
}

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) Description() string { return statusNames[s] }

// CanCancel reports whether a user-driven cancellation is legal.
func (s OrderStatus) CanCancel() bool {
	return s == StatusPending || s == StatusPaid
}

// CanRefund reports whether a refund request is legal.
func (s OrderStatus) CanRefund() bool {
	return s == StatusPaid || s == StatusShipped || s == StatusCompleted
}

// CanConfirm reports whether delivery confirmation is legal.
func (s OrderStatus) CanConfirm() bool {
	return s == StatusShipped
}

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRefunded
}

// transitions is the closed set of legal (from, to) pairs. Every status
// write, including payment callbacks and sweep transitions, is checked
// against it; there is no side door.
var transitions = map[OrderStatus]map[OrderStatus]bool{
	StatusPending: {
		StatusPaid:      true,
		StatusCancelled: true,
	},
	StatusPaid: {
		StatusShipped:       true,
		StatusCancelled:     true,
		StatusRefundPending: true,
	},
	StatusShipped: {
		StatusCompleted:     true,
		StatusRefundPending: true,
	},
	StatusCompleted: {
		StatusRefundPending: true,
	},
	StatusRefundPending: {
		StatusRefunding: true,
		StatusRefunded:  true,
		// payment side rejected the request; order returns to the state
		// it was refunded from
		StatusPaid:      true,
		StatusShipped:   true,
		StatusCompleted: true,
	},
	StatusRefunding: {
		StatusRefunded: true,
	},
}

// CanTransition reports whether from→to is a legal lifecycle move.
func CanTransition(from, to OrderStatus) bool {
	return transitions[from][to]
}
