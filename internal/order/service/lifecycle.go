package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/lingbai-i/mall-order-go/internal/order/clients"
	"github.com/lingbai-i/mall-order-go/internal/order/domain"
	"github.com/lingbai-i/mall-order-go/internal/order/event"
	"github.com/lingbai-i/mall-order-go/internal/order/storage"
	"github.com/lingbai-i/mall-order-go/pkg/logging"
)

// Cancel moves a pending or paid order to cancelled, restores reserved
// stock and, for paid orders, asks the payment service for a refund.
// Stock and refund calls are best-effort; the committed cancellation is
// never rolled back for them.
func (s *Service) Cancel(ctx context.Context, orderID, userID int64, reason string) error {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return fmt.Errorf("%w: order %d does not belong to user %d", domain.ErrForbidden, orderID, userID)
	}
	if !order.Status.CanCancel() {
		return fmt.Errorf("%w: cannot cancel order in status %s", domain.ErrInvalidStateTransition, order.Status)
	}

	wasPaid := order.Status == domain.StatusPaid
	if err := s.repo.Transition(ctx, order, domain.StatusCancelled, storage.Stamp{CancelReason: reason}); err != nil {
		return err
	}

	s.restoreOrderStock(ctx, order)

	if wasPaid {
		if err := s.payments.Refund(ctx, order.OrderNo, order.PayAmount, "order cancelled"); err != nil {
			logging.Log(logging.Fields{
				Service: serviceName, OrderID: orderID, OrderNo: order.OrderNo,
				Step: "cancel_refund", Status: "error", Error: err.Error(),
			})
		}
	}

	s.pub.Publish(ctx, event.NewStatusChange(order, event.TypeOrderCancelled, reason))
	s.metrics.Cancelled.Inc()
	logging.Log(logging.Fields{
		Service: serviceName, OrderID: orderID, OrderNo: order.OrderNo,
		UserID: userID, Step: "cancel", Status: "cancelled", Message: reason,
	})
	return nil
}

// Confirm records delivery confirmation for a shipped order.
func (s *Service) Confirm(ctx context.Context, orderID, userID int64) error {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return fmt.Errorf("%w: order %d does not belong to user %d", domain.ErrForbidden, orderID, userID)
	}
	if !order.Status.CanConfirm() {
		return fmt.Errorf("%w: cannot confirm order in status %s", domain.ErrInvalidStateTransition, order.Status)
	}

	if err := s.repo.Transition(ctx, order, domain.StatusCompleted, storage.Stamp{}); err != nil {
		return err
	}

	s.pub.Publish(ctx, event.NewStatusChange(order, event.TypeOrderCompleted, "delivery confirmed"))
	s.metrics.Completed.Inc()
	logging.Log(logging.Fields{
		Service: serviceName, OrderID: orderID, OrderNo: order.OrderNo,
		UserID: userID, Step: "confirm", Status: "completed",
	})
	return nil
}

// ApplyRefund parks the order in refund_pending and delegates execution
// to the payment service. A payment-side failure rolls the status back
// to where it was and surfaces the error.
func (s *Service) ApplyRefund(ctx context.Context, orderID, userID int64, reason string) error {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return fmt.Errorf("%w: order %d does not belong to user %d", domain.ErrForbidden, orderID, userID)
	}
	if !order.Status.CanRefund() {
		return fmt.Errorf("%w: cannot refund order in status %s", domain.ErrInvalidStateTransition, order.Status)
	}

	prior := order.Status
	if err := s.repo.Transition(ctx, order, domain.StatusRefundPending, storage.Stamp{RefundReason: reason}); err != nil {
		return err
	}

	if err := s.payments.Refund(ctx, order.OrderNo, order.PayAmount, reason); err != nil {
		if rbErr := s.repo.Transition(ctx, order, prior, storage.Stamp{}); rbErr != nil {
			logging.Log(logging.Fields{
				Service: serviceName, OrderID: orderID, OrderNo: order.OrderNo,
				Step: "refund_rollback", Status: "error", Error: rbErr.Error(),
			})
		}
		return err
	}

	logging.Log(logging.Fields{
		Service: serviceName, OrderID: orderID, OrderNo: order.OrderNo,
		UserID: userID, Step: "apply_refund", Status: string(domain.StatusRefundPending), Message: reason,
	})
	return nil
}

// Pay asks the payment service to open a payment for a pending order.
// The status flip to paid happens later through HandlePaymentSuccess.
func (s *Service) Pay(ctx context.Context, orderID, userID int64, method string) (*clients.PaymentOrder, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: order %d does not belong to user %d", domain.ErrForbidden, orderID, userID)
	}
	if order.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: cannot pay order in status %s", domain.ErrInvalidStateTransition, order.Status)
	}

	return s.payments.CreatePayment(ctx, clients.CreatePaymentRequest{
		OrderNo:     order.OrderNo,
		UserID:      userID,
		Amount:      order.PayAmount,
		Method:      method,
		Description: "mall order payment",
	})
}

// HandlePaymentSuccess is the trusted payment-callback handler. It is
// idempotent: only a pending order transitions to paid, a duplicate
// callback is a success no-op with no second event.
func (s *Service) HandlePaymentSuccess(ctx context.Context, orderNo, paymentID string) error {
	order, err := s.repo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return err
	}
	if order.Status != domain.StatusPending {
		logging.Log(logging.Fields{
			Service: serviceName, OrderID: order.ID, OrderNo: orderNo,
			Step: "payment_callback", Status: "replay", Message: "order already " + string(order.Status),
		})
		return nil
	}

	if err := s.repo.Transition(ctx, order, domain.StatusPaid, storage.Stamp{PaymentID: paymentID}); err != nil {
		if isLostRace(err) {
			// a concurrent callback or sweep moved it first; re-read to
			// tell a duplicate from a genuine conflict
			current, rerr := s.repo.GetByOrderNo(ctx, orderNo)
			if rerr == nil && current.Status == domain.StatusPaid {
				return nil
			}
		}
		return err
	}

	s.pub.Publish(ctx, event.NewStatusChange(order, event.TypeOrderPaid, "payment confirmed"))
	s.metrics.Paid.Inc()
	logging.Log(logging.Fields{
		Service: serviceName, OrderID: order.ID, OrderNo: orderNo,
		Step: "payment_callback", Status: "paid",
	})
	return nil
}

// Ship marks a paid order shipped on behalf of its merchant.
func (s *Service) Ship(ctx context.Context, orderID, merchantID int64, company, trackingNo string) error {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.MerchantID != merchantID {
		return fmt.Errorf("%w: order %d does not belong to merchant %d", domain.ErrForbidden, orderID, merchantID)
	}
	if order.Status != domain.StatusPaid {
		return fmt.Errorf("%w: cannot ship order in status %s", domain.ErrInvalidStateTransition, order.Status)
	}

	if err := s.repo.Transition(ctx, order, domain.StatusShipped, storage.Stamp{
		LogisticsCompany: company, TrackingNo: trackingNo,
	}); err != nil {
		return err
	}

	s.pub.Publish(ctx, event.NewStatusChange(order, event.TypeOrderShipped, "order shipped"))
	logging.Log(logging.Fields{
		Service: serviceName, OrderID: orderID, OrderNo: order.OrderNo,
		Step: "ship", Status: "shipped",
	})
	return nil
}

func (s *Service) restoreOrderStock(ctx context.Context, order *domain.Order) {
	items := order.Items
	if len(items) == 0 {
		var err error
		items, err = s.repo.ItemsByOrder(ctx, order.ID)
		if err != nil {
			logging.Log(logging.Fields{
				Service: serviceName, OrderID: order.ID, OrderNo: order.OrderNo,
				Step: "restore_stock", Status: "error", Error: err.Error(),
			})
			return
		}
	}
	for _, it := range items {
		if err := s.products.RestoreStock(ctx, it.ProductID, it.Quantity, order.OrderNo); err != nil {
			logging.Log(logging.Fields{
				Service: serviceName, OrderID: order.ID, OrderNo: order.OrderNo,
				Step: "restore_stock", Status: "error", Error: err.Error(),
			})
		}
	}
}

func isLostRace(err error) bool {
	return errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrInvalidStateTransition)
}
