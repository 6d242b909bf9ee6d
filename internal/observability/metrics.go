package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "isoctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests on the service port.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "isoctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	serviceRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "isoctl",
			Subsystem: "service",
			Name:      "requests_total",
			Help:      "Service requests dispatched, by scope and outcome.",
		},
		[]string{"scope", "method", "outcome"},
	)
	serviceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "isoctl",
			Subsystem: "service",
			Name:      "request_duration_seconds",
			Help:      "Handler invocation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"scope", "method", "outcome"},
	)
	serviceEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "isoctl",
			Subsystem: "service",
			Name:      "events_total",
			Help:      "Events published or suppressed, by kind.",
		},
		[]string{"kind", "delivered"},
	)
	ringLive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "isoctl",
			Subsystem: "ring",
			Name:      "live_slots",
			Help:      "Occupied id-ring slots per isolate.",
		},
		[]string{"isolate"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, serviceRequests, serviceDuration, serviceEvents, ringLive)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func RecordServiceRequest(scope, method, outcome string, duration time.Duration) {
	RegisterMetrics()
	serviceRequests.WithLabelValues(scope, method, outcome).Inc()
	serviceDuration.WithLabelValues(scope, method, outcome).Observe(duration.Seconds())
}

func RecordServiceEvent(kind string, delivered bool) {
	RegisterMetrics()
	serviceEvents.WithLabelValues(kind, strconv.FormatBool(delivered)).Inc()
}

func SetRingLive(isolateID string, live int) {
	RegisterMetrics()
	ringLive.WithLabelValues(isolateID).Set(float64(live))
}
