package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID         int64           `json:"id"`
	OrderNo    string          `json:"orderNo"` // globally unique, client-facing
	UserID     int64           `json:"userId"`
	MerchantID int64           `json:"merchantId"`
	Status     OrderStatus     `json:"status"`
	PayAmount  decimal.Decimal `json:"payAmount"`
	Version    int64           `json:"version"` // optimistic lock, bumped on every status write

	PaymentID    string `json:"paymentId,omitempty"`
	CancelReason string `json:"cancelReason,omitempty"`
	RefundReason string `json:"refundReason,omitempty"`

	ReceiverName    string `json:"receiverName"`
	ReceiverPhone   string `json:"receiverPhone"`
	ReceiverAddress string `json:"receiverAddress"`
	Remark          string `json:"remark,omitempty"`

	LogisticsCompany string `json:"logisticsCompany,omitempty"`
	TrackingNo       string `json:"trackingNo,omitempty"`

	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	PayTime         *time.Time `json:"payTime,omitempty"`
	ShipTime        *time.Time `json:"shipTime,omitempty"`
	ConfirmTime     *time.Time `json:"confirmTime,omitempty"`
	CancelTime      *time.Time `json:"cancelTime,omitempty"`
	RefundApplyTime *time.Time `json:"refundApplyTime,omitempty"`
	RefundTime      *time.Time `json:"refundTime,omitempty"`

	Items []OrderItem `json:"items,omitempty"`
}

// OrderItem is a line item with the unit price snapshotted at purchase
// time. Items are created atomically with the parent order and never
// individually mutated.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"orderId"`
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int32           `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// ItemsTotal sums line subtotals; equals PayAmount at creation time.
func ItemsTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal)
	}
	return total
}
