package service

import (
	"context"

	"github.com/lingbai-i/mall-order-go/internal/order/domain"
	"github.com/lingbai-i/mall-order-go/internal/order/event"
	"github.com/lingbai-i/mall-order-go/internal/order/storage"
	"github.com/lingbai-i/mall-order-go/pkg/logging"
)

// HandleTimeoutOrders cancels pending orders whose payment window has
// expired and returns how many it processed. Each order is handled in
// isolation: one failure is logged and the sweep moves on. A re-run is
// a no-op because the query filters on current status.
func (s *Service) HandleTimeoutOrders(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.TimeoutWindow)
	stale, err := s.repo.FindPendingCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, order := range stale {
		if err := s.repo.Transition(ctx, order, domain.StatusCancelled,
			storage.Stamp{CancelReason: "payment timeout"}); err != nil {
			logging.Log(logging.Fields{
				Service: serviceName, OrderID: order.ID, OrderNo: order.OrderNo,
				Step: "timeout_sweep", Status: "error", Error: err.Error(),
			})
			continue
		}

		s.restoreOrderStock(ctx, order)
		s.pub.Publish(ctx, event.NewTimeout(order))
		s.metrics.TimeoutCancelled.Inc()
		processed++
		logging.Log(logging.Fields{
			Service: serviceName, OrderID: order.ID, OrderNo: order.OrderNo,
			Step: "timeout_sweep", Status: "cancelled",
		})
	}
	return processed, nil
}

// AutoConfirmOrders completes shipped orders past the confirmation grace
// window. Same isolation and idempotence rules as the timeout sweep.
func (s *Service) AutoConfirmOrders(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.AutoConfirmWindow)
	due, err := s.repo.FindShippedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, order := range due {
		if err := s.repo.Transition(ctx, order, domain.StatusCompleted, storage.Stamp{}); err != nil {
			logging.Log(logging.Fields{
				Service: serviceName, OrderID: order.ID, OrderNo: order.OrderNo,
				Step: "auto_confirm_sweep", Status: "error", Error: err.Error(),
			})
			continue
		}

		s.pub.Publish(ctx, event.NewStatusChange(order, event.TypeOrderCompleted, "auto-confirmed"))
		s.metrics.Completed.Inc()
		processed++
		logging.Log(logging.Fields{
			Service: serviceName, OrderID: order.ID, OrderNo: order.OrderNo,
			Step: "auto_confirm_sweep", Status: "completed",
		})
	}
	return processed, nil
}
