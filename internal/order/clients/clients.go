// Package clients holds the typed HTTP clients for the services the
// order service calls synchronously: product stock, cart contents and
// payment execution. All three speak the platform R envelope.
package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/lingbai-i/mall-order-go/internal/order/domain"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(ctx context.Context, hc *http.Client, method, url string, body any, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", domain.ErrExternalService, method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s %s: status %d", domain.ErrExternalService, method, url, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: %s %s: decode: %v", domain.ErrExternalService, method, url, err)
	}
	if env.Code != http.StatusOK {
		return fmt.Errorf("%w: %s %s: code %d: %s", domain.ErrExternalService, method, url, env.Code, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: %s %s: data: %v", domain.ErrExternalService, method, url, err)
		}
	}
	return nil
}

// Product is the slice of the product record the order service needs for
// price snapshots and merchant attribution.
type Product struct {
	ID         int64           `json:"id"`
	MerchantID int64           `json:"merchantId"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
}

type ProductClient struct {
	base string
	hc   *http.Client
}

func NewProductClient(baseURL string, hc *http.Client) *ProductClient {
	return &ProductClient{base: baseURL, hc: hc}
}

func (c *ProductClient) GetProductsBatch(ctx context.Context, ids []int64) ([]Product, error) {
	var products []Product
	err := doJSON(ctx, c.hc, http.MethodPost, c.base+"/merchant/products/batch", ids, &products)
	return products, err
}

func (c *ProductClient) CheckStock(ctx context.Context, productID int64, quantity int32) (bool, error) {
	var sufficient bool
	url := fmt.Sprintf("%s/merchant/products/%d/stock/check?quantity=%d", c.base, productID, quantity)
	err := doJSON(ctx, c.hc, http.MethodGet, url, nil, &sufficient)
	return sufficient, err
}

type stockRequest struct {
	ProductID int64  `json:"productId"`
	Quantity  int32  `json:"quantity"`
	OrderNo   string `json:"orderNo"`
}

func (c *ProductClient) DeductStock(ctx context.Context, productID int64, quantity int32, orderNo string) error {
	var ok bool
	err := doJSON(ctx, c.hc, http.MethodPost, c.base+"/merchant/products/stock/deduct",
		stockRequest{ProductID: productID, Quantity: quantity, OrderNo: orderNo}, &ok)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: stock deduct rejected for product %d", domain.ErrValidation, productID)
	}
	return nil
}

func (c *ProductClient) RestoreStock(ctx context.Context, productID int64, quantity int32, orderNo string) error {
	var ok bool
	return doJSON(ctx, c.hc, http.MethodPost, c.base+"/merchant/products/stock/restore",
		stockRequest{ProductID: productID, Quantity: quantity, OrderNo: orderNo}, &ok)
}

type CartClient struct {
	base string
	hc   *http.Client
}

func NewCartClient(baseURL string, hc *http.Client) *CartClient {
	return &CartClient{base: baseURL, hc: hc}
}

// ClearSelected removes the checked-out items from the user's cart.
func (c *CartClient) ClearSelected(ctx context.Context, userID int64) error {
	url := fmt.Sprintf("%s/cart/selected/clear?userId=%d", c.base, userID)
	return doJSON(ctx, c.hc, http.MethodDelete, url, nil, nil)
}

type PaymentClient struct {
	base string
	hc   *http.Client
}

func NewPaymentClient(baseURL string, hc *http.Client) *PaymentClient {
	return &PaymentClient{base: baseURL, hc: hc}
}

type CreatePaymentRequest struct {
	OrderNo     string          `json:"orderNo"`
	UserID      int64           `json:"userId"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"paymentMethod"`
	Description string          `json:"description"`
}

// PaymentOrder is the payment service's view of a created payment.
type PaymentOrder struct {
	PaymentNo string          `json:"paymentNo"`
	OrderNo   string          `json:"orderNo"`
	Amount    decimal.Decimal `json:"amount"`
	PayURL    string          `json:"payUrl"`
}

func (c *PaymentClient) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentOrder, error) {
	var po PaymentOrder
	if err := doJSON(ctx, c.hc, http.MethodPost, c.base+"/payments", req, &po); err != nil {
		return nil, err
	}
	return &po, nil
}

type refundRequest struct {
	OrderNo string          `json:"orderNo"`
	Amount  decimal.Decimal `json:"amount"`
	Reason  string          `json:"reason"`
}

func (c *PaymentClient) Refund(ctx context.Context, orderNo string, amount decimal.Decimal, reason string) error {
	return doJSON(ctx, c.hc, http.MethodPost, c.base+"/payments/refund",
		refundRequest{OrderNo: orderNo, Amount: amount, Reason: reason}, nil)
}
