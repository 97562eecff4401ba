package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	Charges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "charges_total",
			Help:      "Destination charges by resulting payin status",
		},
		[]string{"status"},
	)

	FeeReversals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "fee_reversals_total",
			Help:      "Fee reversals by outcome",
		},
		[]string{"outcome"},
	)

	Callbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "callbacks_total",
			Help:      "Gateway notifications by event type and result",
		},
		[]string{"event", "result"},
	)

	GatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "settlement",
			Name:      "gateway_request_duration_seconds",
			Help:      "Latency of outbound gateway calls",
			Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.2, 2, 3, 5, 10},
		},
		[]string{"gateway", "operation"},
	)

	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "settlement",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "settlement",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(Charges, FeeReversals, Callbacks, GatewayDuration, HTTPRequests, HTTPDuration)
}

func IncCharge(status string) {
	Charges.WithLabelValues(status).Inc()
}

func IncFeeReversal(outcome string) {
	FeeReversals.WithLabelValues(outcome).Inc()
}

func IncCallback(event, result string) {
	Callbacks.WithLabelValues(event, result).Inc()
}

func ObserveGateway(gateway, op string, seconds float64) {
	GatewayDuration.WithLabelValues(gateway, op).Observe(seconds)
}

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, status int, seconds float64) {
	HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(seconds)
}
