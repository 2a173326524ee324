// Package httpapi exposes the order service REST surface. Every
// response is the platform R envelope; business failures ride inside it
// with an embedded code while the HTTP status stays 200, matching the
// rest of the mall services.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lingbai-i/mall-order-go/internal/order/domain"
	"github.com/lingbai-i/mall-order-go/internal/order/service"
	"github.com/lingbai-i/mall-order-go/internal/order/storage"
	"github.com/lingbai-i/mall-order-go/pkg/idempotency"
	"github.com/lingbai-i/mall-order-go/pkg/metrics"
)

// R is the uniform result envelope. Code 200 means success.
type R struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func ok(data any) R { return R{Code: http.StatusOK, Message: "success", Data: data} }

func fail(code int, msg string) R { return R{Code: code, Message: msg} }

func codeFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidStateTransition), errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the order API on a fresh chi router. Sweep triggers are
// registered by the caller alongside these.
func (h *Handler) Routes(m *metrics.ServerMetrics) chi.Router {
	r := chi.NewRouter()

	route := func(method, pattern, label string, fn http.HandlerFunc) {
		r.Method(method, pattern, m.Middleware(label, fn))
	}

	route(http.MethodGet, "/orders", "list_orders", h.listOrders)
	route(http.MethodGet, "/orders/stats", "user_stats", h.userStats)
	route(http.MethodGet, "/orders/merchant", "merchant_orders", h.merchantOrders)
	route(http.MethodGet, "/orders/merchant/stats", "merchant_stats", h.merchantStats)
	route(http.MethodGet, "/orders/admin", "admin_orders", h.adminOrders)
	route(http.MethodGet, "/orders/admin/stats", "admin_stats", h.adminStats)
	route(http.MethodGet, "/orders/{id}", "get_order", h.getOrder)
	route(http.MethodPost, "/orders", "create_order", h.createOrder)
	route(http.MethodPut, "/orders/{id}/cancel", "cancel_order", h.cancelOrder)
	route(http.MethodPut, "/orders/{id}/confirm", "confirm_order", h.confirmOrder)
	route(http.MethodPost, "/orders/{id}/refund", "apply_refund", h.applyRefund)
	route(http.MethodPost, "/orders/{id}/pay", "pay_order", h.payOrder)
	route(http.MethodPost, "/orders/{id}/reorder", "reorder", h.reorder)
	route(http.MethodPut, "/orders/{id}/ship", "ship_order", h.shipOrder)
	route(http.MethodPost, "/orders/payment-callback", "payment_callback", h.paymentCallback)

	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func respond(w http.ResponseWriter, data any, err error) {
	if err != nil {
		writeJSON(w, http.StatusOK, fail(codeFor(err), err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ok(data))
}

func queryInt64(r *http.Request, name string) int64 {
	v, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return v
}

func queryInt(r *http.Request, name string) int {
	v, _ := strconv.Atoi(r.URL.Query().Get(name))
	return v
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid order id")
	}
	return id, nil
}

func statusFilter(r *http.Request) (*domain.OrderStatus, error) {
	raw := r.URL.Query().Get("status")
	if raw == "" {
		return nil, nil
	}
	s, err := domain.ParseStatus(raw)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

type pagedOrders struct {
	Orders []*domain.Order `json:"orders"`
	Total  int64           `json:"total"`
	Page   int             `json:"page"`
	Size   int             `json:"size"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, f storage.ListFilter) {
	status, err := statusFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, fail(http.StatusBadRequest, err.Error()))
		return
	}
	f.Status = status
	f.Page = queryInt(r, "page")
	f.Size = queryInt(r, "size")

	orders, total, err := h.svc.List(r.Context(), f)
	if err != nil {
		respond(w, nil, err)
		return
	}
	respond(w, pagedOrders{Orders: orders, Total: total, Page: f.Page, Size: f.Size}, nil)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	userID := queryInt64(r, "userId")
	if userID == 0 {
		writeJSON(w, http.StatusBadRequest, fail(http.StatusBadRequest, "userId is required"))
		return
	}
	h.list(w, r, storage.ListFilter{UserID: userID})
}

func (h *Handler) merchantOrders(w http.ResponseWriter, r *http.Request) {
	merchantID := queryInt64(r, "merchantId")
	if merchantID == 0 {
		writeJSON(w, http.StatusBadRequest, fail(http.StatusBadRequest, "merchantId is required"))
		return
	}
	h.list(w, r, storage.ListFilter{MerchantID: merchantID})
}

func (h *Handler) adminOrders(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, storage.ListFilter{})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, fail(http.StatusBadRequest, err.Error()))
		return
	}
	order, err := h.svc.Get(r.Context(), id, queryInt64(r, "userId"))
	respond(w, order, err)
}

type createResponse struct {
	Order    *domain.Order `json:"order"`
	Replayed bool          `json:"replayed,omitempty"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req service.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(http.StatusBadRequest, "invalid json"))
		return
	}
	req.IdempotencyKey = idempotency.Key(r)

	order, replayed, err := h.svc.Create(r.Context(), req)
	if err != nil {
		respond(w, nil, err)
		return
	}
	respond(w, createResponse{Order: order, Replayed: replayed}, nil)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, fail(http.StatusBadRequest, err.Error()))
		return
	}
	err = h.svc.Cancel(r.Context(), id, queryInt64(r, "userId"), r.URL.Query().Get("reason"))
	respond(w, err == nil, err)
}

func (h *Handler) confirmOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, fail(http.StatusBadRequest, err.Error()))
		return
	}
	err = h.svc.Confirm(r.Context(), id, queryInt64(r, "userId"))
	respond(w, err == nil, err)
}

func (h *Handler) applyRefund(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, fail(http.StatusBadRequest, err.Error()))
		return
	}
	err = h.svc.ApplyRefund(r.Context(), id, queryInt64(r, "userId"), r.URL.Query().Get("reason"))
	respond(w, err == nil, err)
}

func (h *Handler) payOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, fail(http.StatusBadRequest, err.Error()))
		return
	}
	payment, err := h.svc.Pay(r.Context(), id, queryInt64(r, "userId"), r.URL.Query().Get("method"))
	respond(w, payment, err)
}

func (h *Handler) reorder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, fail(http.StatusBadRequest, err.Error()))
		return
	}
	order, err := h.svc.Reorder(r.Context(), id, queryInt64(r, "userId"))
	respond(w, order, err)
}

func (h *Handler) shipOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, fail(http.StatusBadRequest, err.Error()))
		return
	}
	q := r.URL.Query()
	err = h.svc.Ship(r.Context(), id, queryInt64(r, "merchantId"), q.Get("company"), q.Get("trackingNo"))
	respond(w, err == nil, err)
}

// paymentCallback is the internal endpoint the payment service calls
// after a successful capture. The caller is trusted; duplicates are
// absorbed by the service.
func (h *Handler) paymentCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orderNo, paymentID := q.Get("orderNo"), q.Get("paymentId")
	if orderNo == "" || paymentID == "" {
		writeJSON(w, http.StatusBadRequest, fail(http.StatusBadRequest, "orderNo and paymentId are required"))
		return
	}
	err := h.svc.HandlePaymentSuccess(r.Context(), orderNo, paymentID)
	respond(w, err == nil, err)
}

func (h *Handler) userStats(w http.ResponseWriter, r *http.Request) {
	userID := queryInt64(r, "userId")
	if userID == 0 {
		writeJSON(w, http.StatusBadRequest, fail(http.StatusBadRequest, "userId is required"))
		return
	}
	stats, err := h.svc.UserStats(r.Context(), userID)
	respond(w, stats, err)
}

func (h *Handler) merchantStats(w http.ResponseWriter, r *http.Request) {
	merchantID := queryInt64(r, "merchantId")
	if merchantID == 0 {
		writeJSON(w, http.StatusBadRequest, fail(http.StatusBadRequest, "merchantId is required"))
		return
	}
	stats, err := h.svc.MerchantStats(r.Context(), merchantID)
	respond(w, stats, err)
}

func (h *Handler) adminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.AdminStats(r.Context())
	respond(w, stats, err)
}
