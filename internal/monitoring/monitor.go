package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects HTTP and ordering metrics on a private registry
type Metrics struct {
	registry  *prometheus.Registry
	startTime time.Time

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	ordersPlaced    prometheus.Counter
	transitions     *prometheus.CounterVec
	stockRejections *prometheus.CounterVec
	sweeperRuns     *prometheus.CounterVec
	sweeperExpired  prometheus.Counter
}

// NewMetrics creates and registers every collector
func NewMetrics() *Metrics {
	m := &Metrics{
		registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_placed_total",
			Help: "Orders placed successfully",
		}),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_transitions_total",
				Help: "Order status changes by target status",
			},
			[]string{"status"},
		),
		stockRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stock_rejections_total",
				Help: "Reservations refused by reason",
			},
			[]string{"reason"},
		),
		sweeperRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweeper_runs_total",
				Help: "Expiry sweeper runs by result",
			},
			[]string{"result"},
		),
		sweeperExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sweeper_expired_orders_total",
			Help: "Orders expired by the sweeper",
		}),
	}

	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.ordersPlaced,
		m.transitions,
		m.stockRejections,
		m.sweeperRuns,
		m.sweeperExpired,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "uptime_seconds",
			Help: "Seconds since the service started",
		}, func() float64 { return time.Since(m.startTime).Seconds() }),
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished HTTP request
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) OrderPlaced() {
	m.ordersPlaced.Inc()
}

func (m *Metrics) OrderTransition(status string) {
	m.transitions.WithLabelValues(status).Inc()
}

func (m *Metrics) StockRejected(reason string) {
	m.stockRejections.WithLabelValues(reason).Inc()
}

// SweepFinished records a sweeper run: ok, error or skipped
func (m *Metrics) SweepFinished(result string, expired int) {
	m.sweeperRuns.WithLabelValues(result).Inc()
	if expired > 0 {
		m.sweeperExpired.Add(float64(expired))
	}
}
