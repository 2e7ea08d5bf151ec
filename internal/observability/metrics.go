package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the sync core.
type Metrics struct {
	ConnectionUp    prometheus.Gauge
	Reconnects      prometheus.Counter
	Events          *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	CommandFailures *prometheus.CounterVec
	ReviewDecisions *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ConnectionUp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_stream_up",
			Help:      "Whether the event stream connection is currently established.",
		}),
		Reconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_stream_connects_total",
			Help:      "Connection attempts for the event stream, initial and retries.",
		}),
		Events: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Stream events processed by canonical kind.",
		}, []string{"kind"}),
		EventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Stream events dropped by reason (malformed, unknown).",
		}, []string{"reason"}),
		CommandFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_failures_total",
			Help:      "Outbound command failures by command name.",
		}, []string{"command"}),
		ReviewDecisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_decisions_total",
			Help:      "Review decisions by action (approve, reject, bulk-approve, bulk-reject, confirm, cancel).",
		}, []string{"action"}),
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
