package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "premium_collections"

// Metrics holds the service collectors on a private registry. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	paymentsInitiated *prometheus.CounterVec
	channelDispatches *prometheus.CounterVec
	channelLatency    *prometheus.HistogramVec
	deliveries        *prometheus.CounterVec
	notifications     *prometheus.CounterVec
	tokenRefreshes    *prometheus.CounterVec
	ledgerPurged      prometheus.Counter
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		paymentsInitiated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "payments_initiated_total",
				Help:      "Total number of accepted payment initiations",
			},
			[]string{"channel"},
		),
		channelDispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "channel_dispatches_total",
				Help:      "Total number of channel initiation calls",
			},
			[]string{"channel", "result"},
		),
		channelLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "channel_dispatch_duration_seconds",
				Help:      "Duration of channel initiation calls",
				Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2, 5, 10, 30},
			},
			[]string{"channel"},
		),
		deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_deliveries_total",
				Help:      "Total number of webhook deliveries by result",
			},
			[]string{"result"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "settlement_notifications_total",
				Help:      "Total number of settlement notifications",
			},
			[]string{"outcome", "result"},
		),
		tokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_refreshes_total",
				Help:      "Total number of upstream re-authentications",
			},
			[]string{"result"},
		),
		ledgerPurged: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idempotency_keys_purged_total",
				Help:      "Total number of expired idempotency keys removed by sweeps",
			},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 5},
			},
			[]string{"route", "method"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) PaymentInitiated(channel string) {
	if m == nil {
		return
	}
	m.paymentsInitiated.WithLabelValues(channel).Inc()
}

func (m *Metrics) ChannelDispatched(channel, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.channelDispatches.WithLabelValues(channel, result).Inc()
	m.channelLatency.WithLabelValues(channel).Observe(elapsed.Seconds())
}

func (m *Metrics) DeliveryHandled(result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
}

func (m *Metrics) NotificationSent(outcome, result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(outcome, result).Inc()
}

func (m *Metrics) TokenRefreshed(result string) {
	if m == nil {
		return
	}
	m.tokenRefreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) LedgerSwept(purged int) {
	if m == nil {
		return
	}
	m.ledgerPurged.Add(float64(purged))
}

func (m *Metrics) HTTPRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}
