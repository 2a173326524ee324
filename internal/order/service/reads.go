package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lingbai-i/mall-order-go/internal/order/domain"
	"github.com/lingbai-i/mall-order-go/internal/order/storage"
)

func (s *Service) Get(ctx context.Context, orderID, userID int64) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: order %d does not belong to user %d", domain.ErrForbidden, orderID, userID)
	}
	return order, nil
}

func (s *Service) GetByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	return s.repo.GetByOrderNo(ctx, orderNo)
}

func (s *Service) List(ctx context.Context, f storage.ListFilter) ([]*domain.Order, int64, error) {
	return s.repo.List(ctx, f)
}

// Stats is the per-scope order breakdown the storefront and the admin
// console render.
type Stats struct {
	ByStatus    map[domain.OrderStatus]int64 `json:"byStatus"`
	TotalOrders int64                        `json:"totalOrders"`
	TotalAmount decimal.Decimal              `json:"totalAmount"`
}

func (s *Service) UserStats(ctx context.Context, userID int64) (*Stats, error) {
	return s.stats(ctx, userID, 0)
}

func (s *Service) MerchantStats(ctx context.Context, merchantID int64) (*Stats, error) {
	counts, err := s.repo.StatusCounts(ctx, 0, merchantID)
	if err != nil {
		return nil, err
	}
	sum, err := s.repo.SumValidTransactionAmount(ctx, merchantID)
	if err != nil {
		return nil, err
	}
	return buildStats(counts, sum), nil
}

func (s *Service) AdminStats(ctx context.Context) (*Stats, error) {
	return s.stats(ctx, 0, 0)
}

func (s *Service) stats(ctx context.Context, userID, merchantID int64) (*Stats, error) {
	counts, err := s.repo.StatusCounts(ctx, userID, merchantID)
	if err != nil {
		return nil, err
	}
	sum, err := s.repo.SumCompletedAmount(ctx, userID)
	if err != nil {
		return nil, err
	}
	return buildStats(counts, sum), nil
}

func buildStats(counts map[domain.OrderStatus]int64, sum decimal.Decimal) *Stats {
	var total int64
	for _, n := range counts {
		total += n
	}
	return &Stats{ByStatus: counts, TotalOrders: total, TotalAmount: sum}
}
