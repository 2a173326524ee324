package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Local-dev stand-in for the product, cart and payment services. Every
// endpoint answers in the platform R envelope and always succeeds, so
// the order service can run end to end on one machine.
func main() {
	port := getenv("PORT", "9090")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("POST /merchant/products/batch", func(w http.ResponseWriter, r *http.Request) {
		var ids []int64
		if err := json.NewDecoder(r.Body).Decode(&ids); err != nil {
			writeR(w, 400, "invalid json", nil)
			return
		}
		type product struct {
			ID         int64           `json:"id"`
			MerchantID int64           `json:"merchantId"`
			Name       string          `json:"name"`
			Price      decimal.Decimal `json:"price"`
		}
		products := make([]product, 0, len(ids))
		for _, id := range ids {
			products = append(products, product{
				ID:         id,
				MerchantID: 1,
				Name:       "stub-product-" + strconv.FormatInt(id, 10),
				Price:      decimal.NewFromFloat(99.99),
			})
		}
		writeR(w, 200, "success", products)
	})
	mux.HandleFunc("GET /merchant/products/{id}/stock/check", func(w http.ResponseWriter, r *http.Request) {
		writeR(w, 200, "success", true)
	})
	mux.HandleFunc("POST /merchant/products/stock/deduct", func(w http.ResponseWriter, r *http.Request) {
		writeR(w, 200, "success", true)
	})
	mux.HandleFunc("POST /merchant/products/stock/restore", func(w http.ResponseWriter, r *http.Request) {
		writeR(w, 200, "success", true)
	})

	mux.HandleFunc("DELETE /cart/selected/clear", func(w http.ResponseWriter, r *http.Request) {
		writeR(w, 200, "success", nil)
	})

	mux.HandleFunc("POST /payments", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OrderNo string          `json:"orderNo"`
			Amount  decimal.Decimal `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeR(w, 400, "invalid json", nil)
			return
		}
		writeR(w, 200, "success", map[string]any{
			"paymentNo": "PAY" + uuid.NewString()[:8],
			"orderNo":   req.OrderNo,
			"amount":    req.Amount,
			"payUrl":    "http://localhost:" + port + "/pay/" + req.OrderNo,
		})
	})
	mux.HandleFunc("POST /payments/refund", func(w http.ResponseWriter, r *http.Request) {
		writeR(w, 200, "success", nil)
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	log.Printf("dev stub listening on :%s", port)
	log.Fatal(srv.ListenAndServe())
}

func writeR(w http.ResponseWriter, code int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": message, "data": data})
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
