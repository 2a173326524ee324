package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics wraps the lifecycle counters and the create timer. One
// instance per process; registration panics on duplicate, as elsewhere.
type OrderMetrics struct {
	Created          prometheus.Counter
	CreateFailed     prometheus.Counter
	CreateDurationMS prometheus.Histogram
	Paid             prometheus.Counter
	Completed        prometheus.Counter
	Cancelled        prometheus.Counter
	TimeoutCancelled prometheus.Counter
}

func NewOrderMetrics() *OrderMetrics {
	m := &OrderMetrics{
		Created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mall", Subsystem: "order",
			Name: "created_total", Help: "Orders created.",
		}),
		CreateFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mall", Subsystem: "order",
			Name: "create_failed_total", Help: "Order creations that failed.",
		}),
		CreateDurationMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mall", Subsystem: "order",
			Name: "create_duration_ms", Help: "Order creation latency in milliseconds.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		Paid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mall", Subsystem: "order",
			Name: "paid_total", Help: "Orders transitioned to paid.",
		}),
		Completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mall", Subsystem: "order",
			Name: "completed_total", Help: "Orders completed.",
		}),
		Cancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mall", Subsystem: "order",
			Name: "cancelled_total", Help: "Orders cancelled by users.",
		}),
		TimeoutCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mall", Subsystem: "order",
			Name: "timeout_cancelled_total", Help: "Orders cancelled by the timeout sweep.",
		}),
	}
	prometheus.MustRegister(
		m.Created, m.CreateFailed, m.CreateDurationMS,
		m.Paid, m.Completed, m.Cancelled, m.TimeoutCancelled,
	)
	return m
}

// NewNop returns unregistered metrics for tests.
func NewNop() *OrderMetrics {
	return &OrderMetrics{
		Created:          prometheus.NewCounter(prometheus.CounterOpts{Name: "t_created"}),
		CreateFailed:     prometheus.NewCounter(prometheus.CounterOpts{Name: "t_create_failed"}),
		CreateDurationMS: prometheus.NewHistogram(prometheus.HistogramOpts{Name: "t_create_ms"}),
		Paid:             prometheus.NewCounter(prometheus.CounterOpts{Name: "t_paid"}),
		Completed:        prometheus.NewCounter(prometheus.CounterOpts{Name: "t_completed"}),
		Cancelled:        prometheus.NewCounter(prometheus.CounterOpts{Name: "t_cancelled"}),
		TimeoutCancelled: prometheus.NewCounter(prometheus.CounterOpts{Name: "t_timeout"}),
	}
}
