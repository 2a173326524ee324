package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lingbai-i/mall-order-go/internal/order/clients"
	"github.com/lingbai-i/mall-order-go/internal/order/event"
	"github.com/lingbai-i/mall-order-go/internal/order/httpapi"
	ordermetrics "github.com/lingbai-i/mall-order-go/internal/order/metrics"
	"github.com/lingbai-i/mall-order-go/internal/order/service"
	"github.com/lingbai-i/mall-order-go/internal/order/storage"
	"github.com/lingbai-i/mall-order-go/internal/order/task"
	"github.com/lingbai-i/mall-order-go/pkg/joblock"
	"github.com/lingbai-i/mall-order-go/pkg/kafka"
	"github.com/lingbai-i/mall-order-go/pkg/metrics"
)

type cfg struct {
	Port              string
	DatabaseURL       string
	KafkaBrokers      string
	ProductBaseURL    string
	CartBaseURL       string
	PaymentBaseURL    string
	ClientTimeout     time.Duration
	OrderNumberPrefix string
	TimeoutWindow     time.Duration
	AutoConfirmWindow time.Duration
	SweepInterval     time.Duration
	ConfirmAtHour     int
}

func readCfg() (cfg, error) {
	db := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if db == "" {
		return cfg{}, errors.New("DATABASE_URL is required")
	}
	clientMS, _ := strconv.Atoi(getenv("HTTP_CLIENT_TIMEOUT_MS", "5000"))
	timeoutMin, _ := strconv.Atoi(getenv("ORDER_TIMEOUT_MINUTES", "30"))
	confirmDays, _ := strconv.Atoi(getenv("AUTO_CONFIRM_DAYS", "7"))
	sweepMS, _ := strconv.Atoi(getenv("TIMEOUT_SWEEP_INTERVAL_MS", "300000"))
	confirmHour, _ := strconv.Atoi(getenv("AUTO_CONFIRM_HOUR", "2"))

	return cfg{
		Port:              getenv("PORT", "8080"),
		DatabaseURL:       db,
		KafkaBrokers:      getenv("KAFKA_BROKERS", ""),
		ProductBaseURL:    strings.TrimRight(getenv("PRODUCT_BASE_URL", ""), "/"),
		CartBaseURL:       strings.TrimRight(getenv("CART_BASE_URL", ""), "/"),
		PaymentBaseURL:    strings.TrimRight(getenv("PAYMENT_BASE_URL", ""), "/"),
		ClientTimeout:     time.Duration(clientMS) * time.Millisecond,
		OrderNumberPrefix: getenv("ORDER_NUMBER_PREFIX", "ORD"),
		TimeoutWindow:     time.Duration(timeoutMin) * time.Minute,
		AutoConfirmWindow: time.Duration(confirmDays) * 24 * time.Hour,
		SweepInterval:     time.Duration(sweepMS) * time.Millisecond,
		ConfirmAtHour:     confirmHour,
	}, nil
}

func main() {
	cfg, err := readCfg()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	pool, err := connectDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer pool.Close()

	kafkaClient := kafka.NewClient(cfg.KafkaBrokers)
	defer func() { _ = kafkaClient.Close() }()

	httpClient := &http.Client{Timeout: cfg.ClientTimeout}

	repo := storage.NewRepository(pool)
	pub := event.NewPublisher("order-service", kafkaClient)
	orderMetrics := ordermetrics.NewOrderMetrics()
	srvMetrics := metrics.NewServerMetrics("order_service")

	svc := service.New(
		service.Config{
			OrderNumberPrefix: cfg.OrderNumberPrefix,
			TimeoutWindow:     cfg.TimeoutWindow,
			AutoConfirmWindow: cfg.AutoConfirmWindow,
		},
		repo,
		clients.NewProductClient(cfg.ProductBaseURL, httpClient),
		clients.NewCartClient(cfg.CartBaseURL, httpClient),
		clients.NewPaymentClient(cfg.PaymentBaseURL, httpClient),
		pub,
		orderMetrics,
	)

	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	defer sweepCancel()
	sweeper := task.NewSweeper("order-service", svc, joblock.New(pool))
	sweeper.TimeoutInterval = cfg.SweepInterval
	sweeper.ConfirmAtHour = cfg.ConfirmAtHour
	sweeper.Start(sweepCtx)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := pool.Ping(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"db_error"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	// ручной запуск фоновых задач для операторов
	r.Post("/admin/tasks/timeout-sweep", func(w http.ResponseWriter, req *http.Request) {
		n := sweeper.RunTimeoutSweep(req.Context())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"processed":` + strconv.Itoa(n) + `}`))
	})
	r.Post("/admin/tasks/auto-confirm-sweep", func(w http.ResponseWriter, req *http.Request) {
		n := sweeper.RunAutoConfirmSweep(req.Context())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"processed":` + strconv.Itoa(n) + `}`))
	})

	r.Mount("/", httpapi.NewHandler(svc).Routes(srvMetrics))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("order-service listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	sweepCancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

func connectDB(url string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
