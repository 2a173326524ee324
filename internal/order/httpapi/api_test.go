package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lingbai-i/mall-order-go/internal/order/clients"
	"github.com/lingbai-i/mall-order-go/internal/order/domain"
	"github.com/lingbai-i/mall-order-go/internal/order/event"
	ordermetrics "github.com/lingbai-i/mall-order-go/internal/order/metrics"
	"github.com/lingbai-i/mall-order-go/internal/order/service"
	"github.com/lingbai-i/mall-order-go/internal/order/storage"
	"github.com/lingbai-i/mall-order-go/pkg/metrics"
)

// memRepo is the minimal in-memory repository the handler tests need.
type memRepo struct {
	nextID int64
	orders map[int64]*domain.Order
	idem   map[string]int64
}

func newMemRepo() *memRepo {
	return &memRepo{orders: map[int64]*domain.Order{}, idem: map[string]int64{}}
}

func (r *memRepo) seed(o *domain.Order) *domain.Order {
	r.nextID++
	o.ID = r.nextID
	r.orders[o.ID] = o
	return o
}

func (r *memRepo) CreateOrder(_ context.Context, o *domain.Order, idemKey string) error {
	if idemKey != "" {
		if _, ok := r.idem[idemKey]; ok {
			return storage.ErrDuplicateKey
		}
	}
	r.seed(o)
	if idemKey != "" {
		r.idem[idemKey] = o.ID
	}
	o.CreatedAt = time.Now()
	return nil
}

func (r *memRepo) OrderIDByIdempotencyKey(_ context.Context, key string) (int64, error) {
	id, ok := r.idem[key]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return id, nil
}

func (r *memRepo) GetByID(_ context.Context, id int64) (*domain.Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %d", domain.ErrNotFound, id)
	}
	cp := *o
	return &cp, nil
}

func (r *memRepo) GetByOrderNo(_ context.Context, orderNo string) (*domain.Order, error) {
	for _, o := range r.orders {
		if o.OrderNo == orderNo {
			cp := *o
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: order %s", domain.ErrNotFound, orderNo)
}

func (r *memRepo) ItemsByOrder(_ context.Context, orderID int64) ([]domain.OrderItem, error) {
	o, ok := r.orders[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return o.Items, nil
}

func (r *memRepo) Transition(_ context.Context, o *domain.Order, to domain.OrderStatus, stamp storage.Stamp) error {
	if !domain.CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStateTransition, o.Status, to)
	}
	stored, ok := r.orders[o.ID]
	if !ok || stored.Version != o.Version {
		return domain.ErrConflict
	}
	stored.Status = to
	stored.Version++
	if stamp.PaymentID != "" {
		stored.PaymentID = stamp.PaymentID
	}
	if stamp.CancelReason != "" {
		stored.CancelReason = stamp.CancelReason
	}
	o.Status = to
	o.Version = stored.Version
	return nil
}

func (r *memRepo) List(_ context.Context, f storage.ListFilter) ([]*domain.Order, int64, error) {
	var out []*domain.Order
	for _, o := range r.orders {
		if f.UserID != 0 && o.UserID != f.UserID {
			continue
		}
		if f.MerchantID != 0 && o.MerchantID != f.MerchantID {
			continue
		}
		if f.Status != nil && o.Status != *f.Status {
			continue
		}
		out = append(out, o)
	}
	return out, int64(len(out)), nil
}

func (r *memRepo) StatusCounts(_ context.Context, userID, merchantID int64) (map[domain.OrderStatus]int64, error) {
	counts := map[domain.OrderStatus]int64{}
	for _, o := range r.orders {
		if userID != 0 && o.UserID != userID {
			continue
		}
		if merchantID != 0 && o.MerchantID != merchantID {
			continue
		}
		counts[o.Status]++
	}
	return counts, nil
}

func (r *memRepo) SumCompletedAmount(context.Context, int64) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (r *memRepo) SumValidTransactionAmount(context.Context, int64) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (r *memRepo) FindPendingCreatedBefore(context.Context, time.Time) ([]*domain.Order, error) {
	return nil, nil
}

func (r *memRepo) FindShippedBefore(context.Context, time.Time) ([]*domain.Order, error) {
	return nil, nil
}

type stubProducts struct{}

func (stubProducts) GetProductsBatch(_ context.Context, ids []int64) ([]clients.Product, error) {
	out := make([]clients.Product, 0, len(ids))
	for _, id := range ids {
		out = append(out, clients.Product{ID: id, MerchantID: 3, Name: "widget", Price: decimal.RequireFromString("99.99")})
	}
	return out, nil
}
func (stubProducts) CheckStock(context.Context, int64, int32) (bool, error)   { return true, nil }
func (stubProducts) DeductStock(context.Context, int64, int32, string) error  { return nil }
func (stubProducts) RestoreStock(context.Context, int64, int32, string) error { return nil }

type stubCarts struct{}

func (stubCarts) ClearSelected(context.Context, int64) error { return nil }

type stubPayments struct{}

func (stubPayments) CreatePayment(_ context.Context, req clients.CreatePaymentRequest) (*clients.PaymentOrder, error) {
	return &clients.PaymentOrder{PaymentNo: "PAY-1", OrderNo: req.OrderNo, Amount: req.Amount}, nil
}
func (stubPayments) Refund(context.Context, string, decimal.Decimal, string) error { return nil }

type nopPub struct{}

func (nopPub) Publish(context.Context, event.Event) {}

func newTestServer(t *testing.T) (*httptest.Server, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	svc := service.New(service.Config{}, repo, stubProducts{}, stubCarts{}, stubPayments{}, nopPub{}, ordermetrics.NewNop())
	srv := httptest.NewServer(NewHandler(svc).Routes(metrics.NewNop()))
	t.Cleanup(srv.Close)
	return srv, repo
}

func decode(t *testing.T, resp *http.Response) R {
	t.Helper()
	defer resp.Body.Close()
	var env R
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return env
}

func seedPending(repo *memRepo) *domain.Order {
	return repo.seed(&domain.Order{
		OrderNo:    "ORD1700000000000SEEDAA",
		UserID:     7,
		MerchantID: 3,
		Status:     domain.StatusPending,
		PayAmount:  decimal.RequireFromString("199.98"),
		Version:    1,
		Items: []domain.OrderItem{
			{ProductID: 1, ProductName: "widget", UnitPrice: decimal.RequireFromString("99.99"), Quantity: 2, Subtotal: decimal.RequireFromString("199.98")},
		},
	})
}

func TestCreateOrderEndpoint(t *testing.T) {
	srv, repo := newTestServer(t)

	body := `{"userId":7,"items":[{"productId":1,"quantity":2}],"receiverName":"Alex","receiverPhone":"13800000000","receiverAddress":"1 High Street"}`
	resp, err := http.Post(srv.URL+"/orders", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env := decode(t, resp)
	assert.Equal(t, 200, env.Code)
	require.Len(t, repo.orders, 1)

	data, _ := json.Marshal(env.Data)
	var cr struct {
		Order struct {
			OrderNo   string `json:"orderNo"`
			Status    string `json:"status"`
			PayAmount string `json:"payAmount"`
		} `json:"order"`
		Replayed bool `json:"replayed"`
	}
	require.NoError(t, json.Unmarshal(data, &cr))
	assert.True(t, strings.HasPrefix(cr.Order.OrderNo, "ORD"))
	assert.Equal(t, "pending", cr.Order.Status)
	assert.False(t, cr.Replayed)
}

func TestCreateOrderReplaysByIdempotencyKey(t *testing.T) {
	srv, repo := newTestServer(t)
	body := `{"userId":7,"items":[{"productId":1,"quantity":2}]}`

	for i := 0; i < 2; i++ {
		req, _ := http.NewRequest(http.MethodPost, srv.URL+"/orders", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "key-1")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		env := decode(t, resp)
		assert.Equal(t, 200, env.Code)
	}
	assert.Len(t, repo.orders, 1)
}

func TestCreateOrderMalformedBodyIsHTTP400(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/orders", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	env := decode(t, resp)
	assert.Equal(t, 400, env.Code)
}

func TestBusinessErrorRidesInsideEnvelope(t *testing.T) {
	srv, repo := newTestServer(t)
	o := seedPending(repo)
	repo.orders[o.ID].Status = domain.StatusShipped

	req, _ := http.NewRequest(http.MethodPut,
		fmt.Sprintf("%s/orders/%d/cancel?userId=7&reason=late", srv.URL, o.ID), nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	// transport says 200, the envelope carries the conflict
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	env := decode(t, resp)
	assert.Equal(t, http.StatusConflict, env.Code)
}

func TestGetOrder(t *testing.T) {
	srv, repo := newTestServer(t)
	o := seedPending(repo)

	resp, err := http.Get(fmt.Sprintf("%s/orders/%d?userId=7", srv.URL, o.ID))
	require.NoError(t, err)
	env := decode(t, resp)
	assert.Equal(t, 200, env.Code)

	resp, err = http.Get(fmt.Sprintf("%s/orders/%d?userId=999", srv.URL, o.ID))
	require.NoError(t, err)
	env = decode(t, resp)
	assert.Equal(t, http.StatusForbidden, env.Code)

	resp, err = http.Get(srv.URL + "/orders/424242?userId=7")
	require.NoError(t, err)
	env = decode(t, resp)
	assert.Equal(t, http.StatusNotFound, env.Code)
}

func TestListOrdersRequiresUserID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/orders")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListOrdersRejectsUnknownStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/orders?userId=7&status=levitating")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelEndpoint(t *testing.T) {
	srv, repo := newTestServer(t)
	o := seedPending(repo)

	req, _ := http.NewRequest(http.MethodPut,
		fmt.Sprintf("%s/orders/%d/cancel?userId=7&reason=changed+my+mind", srv.URL, o.ID), nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	env := decode(t, resp)
	assert.Equal(t, 200, env.Code)
	assert.Equal(t, domain.StatusCancelled, repo.orders[o.ID].Status)
}

func TestPaymentCallbackEndpoint(t *testing.T) {
	srv, repo := newTestServer(t)
	o := seedPending(repo)

	url := fmt.Sprintf("%s/orders/payment-callback?orderNo=%s&paymentId=PAY-9", srv.URL, o.OrderNo)
	for i := 0; i < 2; i++ {
		resp, err := http.Post(url, "application/json", nil)
		require.NoError(t, err)
		env := decode(t, resp)
		assert.Equal(t, 200, env.Code, "callback %d must succeed", i+1)
	}
	assert.Equal(t, domain.StatusPaid, repo.orders[o.ID].Status)
	assert.Equal(t, "PAY-9", repo.orders[o.ID].PaymentID)

	resp, err := http.Post(srv.URL+"/orders/payment-callback?orderNo=", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUserStatsEndpoint(t *testing.T) {
	srv, repo := newTestServer(t)
	seedPending(repo)

	resp, err := http.Get(srv.URL + "/orders/stats?userId=7")
	require.NoError(t, err)
	env := decode(t, resp)
	assert.Equal(t, 200, env.Code)

	data, _ := json.Marshal(env.Data)
	var stats struct {
		ByStatus    map[string]int64 `json:"byStatus"`
		TotalOrders int64            `json:"totalOrders"`
	}
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, int64(1), stats.TotalOrders)
	assert.Equal(t, int64(1), stats.ByStatus["pending"])
}
