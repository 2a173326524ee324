// Package service orchestrates the order lifecycle. It is the only
// writer of order status outside the scheduled sweeps, which call back
// into it.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lingbai-i/mall-order-go/internal/order/clients"
	"github.com/lingbai-i/mall-order-go/internal/order/domain"
	"github.com/lingbai-i/mall-order-go/internal/order/event"
	"github.com/lingbai-i/mall-order-go/internal/order/metrics"
	"github.com/lingbai-i/mall-order-go/internal/order/storage"
	"github.com/lingbai-i/mall-order-go/pkg/logging"
)

const serviceName = "order-service"

type Repository interface {
	CreateOrder(ctx context.Context, o *domain.Order, idemKey string) error
	OrderIDByIdempotencyKey(ctx context.Context, key string) (int64, error)
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	GetByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error)
	ItemsByOrder(ctx context.Context, orderID int64) ([]domain.OrderItem, error)
	Transition(ctx context.Context, o *domain.Order, to domain.OrderStatus, stamp storage.Stamp) error
	List(ctx context.Context, f storage.ListFilter) ([]*domain.Order, int64, error)
	StatusCounts(ctx context.Context, userID, merchantID int64) (map[domain.OrderStatus]int64, error)
	SumCompletedAmount(ctx context.Context, userID int64) (decimal.Decimal, error)
	SumValidTransactionAmount(ctx context.Context, merchantID int64) (decimal.Decimal, error)
	FindPendingCreatedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Order, error)
	FindShippedBefore(ctx context.Context, cutoff time.Time) ([]*domain.Order, error)
}

type ProductGateway interface {
	GetProductsBatch(ctx context.Context, ids []int64) ([]clients.Product, error)
	CheckStock(ctx context.Context, productID int64, quantity int32) (bool, error)
	DeductStock(ctx context.Context, productID int64, quantity int32, orderNo string) error
	RestoreStock(ctx context.Context, productID int64, quantity int32, orderNo string) error
}

type CartGateway interface {
	ClearSelected(ctx context.Context, userID int64) error
}

type PaymentGateway interface {
	CreatePayment(ctx context.Context, req clients.CreatePaymentRequest) (*clients.PaymentOrder, error)
	Refund(ctx context.Context, orderNo string, amount decimal.Decimal, reason string) error
}

type Publisher interface {
	Publish(ctx context.Context, ev event.Event)
}

type Config struct {
	OrderNumberPrefix string
	TimeoutWindow     time.Duration // pending orders older than this get cancelled
	AutoConfirmWindow time.Duration // shipped orders older than this get completed
}

func (c Config) withDefaults() Config {
	if c.OrderNumberPrefix == "" {
		c.OrderNumberPrefix = "ORD"
	}
	if c.TimeoutWindow <= 0 {
		c.TimeoutWindow = 30 * time.Minute
	}
	if c.AutoConfirmWindow <= 0 {
		c.AutoConfirmWindow = 7 * 24 * time.Hour
	}
	return c
}

type Service struct {
	cfg      Config
	repo     Repository
	products ProductGateway
	carts    CartGateway
	payments PaymentGateway
	pub      Publisher
	metrics  *metrics.OrderMetrics
	now      func() time.Time
}

func New(cfg Config, repo Repository, products ProductGateway, carts CartGateway,
	payments PaymentGateway, pub Publisher, m *metrics.OrderMetrics) *Service {
	return &Service{
		cfg:      cfg.withDefaults(),
		repo:     repo,
		products: products,
		carts:    carts,
		payments: payments,
		pub:      pub,
		metrics:  m,
		now:      time.Now,
	}
}

type CreateItem struct {
	ProductID int64 `json:"productId"`
	Quantity  int32 `json:"quantity"`
}

type CreateRequest struct {
	UserID          int64        `json:"userId"`
	Items           []CreateItem `json:"items"`
	ReceiverName    string       `json:"receiverName"`
	ReceiverPhone   string       `json:"receiverPhone"`
	ReceiverAddress string       `json:"receiverAddress"`
	Remark          string       `json:"remark"`

	// IdempotencyKey comes from the Idempotency-Key header; empty
	// disables replay detection for this request.
	IdempotencyKey string `json:"-"`
}

// Create validates stock with the product service, reserves it, then
// persists the order and its items atomically in pending state. Nothing
// is persisted when a dependency fails; reserved stock is released on a
// persist failure. Returns (order, replayed, error); replayed means the
// idempotency key matched an earlier creation and that order is
// returned as-is.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Order, bool, error) {
	start := s.now()

	if req.UserID == 0 {
		return nil, false, fmt.Errorf("%w: userId is required", domain.ErrValidation)
	}
	if len(req.Items) == 0 {
		return nil, false, fmt.Errorf("%w: items is required", domain.ErrValidation)
	}
	for _, it := range req.Items {
		if it.ProductID == 0 || it.Quantity <= 0 {
			return nil, false, fmt.Errorf("%w: each item needs productId and quantity > 0", domain.ErrValidation)
		}
	}

	if req.IdempotencyKey != "" {
		if existing, err := s.replayByKey(ctx, req.IdempotencyKey); err == nil {
			return existing, true, nil
		}
	}

	productIDs := make([]int64, 0, len(req.Items))
	for _, it := range req.Items {
		productIDs = append(productIDs, it.ProductID)
	}
	products, err := s.products.GetProductsBatch(ctx, productIDs)
	if err != nil {
		s.metrics.CreateFailed.Inc()
		return nil, false, err
	}
	byID := make(map[int64]clients.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	order := &domain.Order{
		OrderNo:         s.generateOrderNo(),
		UserID:          req.UserID,
		Status:          domain.StatusPending,
		ReceiverName:    req.ReceiverName,
		ReceiverPhone:   req.ReceiverPhone,
		ReceiverAddress: req.ReceiverAddress,
		Remark:          req.Remark,
	}

	total := decimal.Zero
	for _, it := range req.Items {
		p, ok := byID[it.ProductID]
		if !ok {
			s.metrics.CreateFailed.Inc()
			return nil, false, fmt.Errorf("%w: unknown product %d", domain.ErrValidation, it.ProductID)
		}
		if order.MerchantID == 0 {
			order.MerchantID = p.MerchantID
		} else if order.MerchantID != p.MerchantID {
			s.metrics.CreateFailed.Inc()
			return nil, false, fmt.Errorf("%w: items span multiple merchants", domain.ErrValidation)
		}

		sufficient, err := s.products.CheckStock(ctx, it.ProductID, it.Quantity)
		if err != nil {
			s.metrics.CreateFailed.Inc()
			return nil, false, err
		}
		if !sufficient {
			s.metrics.CreateFailed.Inc()
			return nil, false, fmt.Errorf("%w: insufficient stock for product %d", domain.ErrValidation, it.ProductID)
		}

		subtotal := p.Price.Mul(decimal.NewFromInt32(it.Quantity))
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:   it.ProductID,
			ProductName: p.Name,
			UnitPrice:   p.Price,
			Quantity:    it.Quantity,
			Subtotal:    subtotal,
		})
		total = total.Add(subtotal)
	}
	order.PayAmount = total

	// Reserve stock before persisting so a dependency failure leaves no
	// partial order behind.
	deducted := make([]CreateItem, 0, len(req.Items))
	for _, it := range req.Items {
		if err := s.products.DeductStock(ctx, it.ProductID, it.Quantity, order.OrderNo); err != nil {
			s.releaseStock(ctx, deducted, order.OrderNo)
			s.metrics.CreateFailed.Inc()
			return nil, false, err
		}
		deducted = append(deducted, it)
	}

	if err := s.repo.CreateOrder(ctx, order, req.IdempotencyKey); err != nil {
		s.releaseStock(ctx, deducted, order.OrderNo)
		if errors.Is(err, storage.ErrDuplicateKey) && req.IdempotencyKey != "" {
			if existing, rerr := s.replayByKey(ctx, req.IdempotencyKey); rerr == nil {
				return existing, true, nil
			}
		}
		s.metrics.CreateFailed.Inc()
		return nil, false, err
	}

	s.pub.Publish(ctx, event.NewCreated(order))

	if err := s.carts.ClearSelected(ctx, req.UserID); err != nil {
		logging.Log(logging.Fields{
			Service: serviceName, OrderNo: order.OrderNo, UserID: req.UserID,
			Step: "clear_cart", Status: "error", Error: err.Error(),
		})
	}

	s.metrics.Created.Inc()
	s.metrics.CreateDurationMS.Observe(float64(s.now().Sub(start).Milliseconds()))
	logging.Log(logging.Fields{
		Service: serviceName, OrderID: order.ID, OrderNo: order.OrderNo,
		UserID: req.UserID, Step: "create", Status: "created",
		DurationMS: s.now().Sub(start).Milliseconds(),
	})
	return order, false, nil
}

func (s *Service) replayByKey(ctx context.Context, key string) (*domain.Order, error) {
	id, err := s.repo.OrderIDByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *Service) releaseStock(ctx context.Context, items []CreateItem, orderNo string) {
	for _, it := range items {
		if err := s.products.RestoreStock(ctx, it.ProductID, it.Quantity, orderNo); err != nil {
			logging.Log(logging.Fields{
				Service: serviceName, OrderNo: orderNo,
				Step: "restore_stock", Status: "error", Error: err.Error(),
			})
		}
	}
}

func (s *Service) generateOrderNo() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return s.cfg.OrderNumberPrefix + strconv.FormatInt(s.now().UnixMilli(), 10) + suffix
}

// Reorder rebuilds a create request from a past order's line items and
// runs the normal creation path against current prices and stock.
func (s *Service) Reorder(ctx context.Context, orderID, userID int64) (*domain.Order, error) {
	original, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if original.UserID != userID {
		return nil, fmt.Errorf("%w: order %d does not belong to user %d", domain.ErrForbidden, orderID, userID)
	}
	if len(original.Items) == 0 {
		return nil, fmt.Errorf("%w: original order has no items", domain.ErrValidation)
	}

	req := CreateRequest{
		UserID:          userID,
		ReceiverName:    original.ReceiverName,
		ReceiverPhone:   original.ReceiverPhone,
		ReceiverAddress: original.ReceiverAddress,
	}
	for _, it := range original.Items {
		req.Items = append(req.Items, CreateItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	order, _, err := s.Create(ctx, req)
	return order, err
}
