package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatmesh"

// Registry holds all application metrics.
type Registry struct {
	reg *prometheus.Registry

	// Session metrics
	SessionsCreated    prometheus.Counter
	SessionsReplaced   prometheus.Counter
	SessionsExpired    prometheus.Counter
	SessionsRemoved    prometheus.Counter
	SessionLockBusy    prometheus.Counter
	SessionValidations *prometheus.CounterVec // result

	// Rate limit metrics
	RateLimitChecks *prometheus.CounterVec // scope, result

	// Event metrics
	EventsPublished     *prometheus.CounterVec // topic
	EventsPublishFailed *prometheus.CounterVec // topic
	EventsReceived      *prometheus.CounterVec // topic
	EventsDropped       *prometheus.CounterVec // reason
	DeliveriesDropped   prometheus.Counter

	// Request metrics
	RequestsTotal   *prometheus.CounterVec   // method, route, status
	RequestDuration *prometheus.HistogramVec // method, route
}

// NewRegistry creates a registry with the Go runtime and process collectors
// plus every ChatMesh metric.
func NewRegistry() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.SessionsCreated = r.counter("session", "created_total", "Sessions created.")
	r.SessionsReplaced = r.counter("session", "replaced_total", "Sessions invalidated by a newer login.")
	r.SessionsExpired = r.counter("session", "expired_total", "Sessions removed for inactivity during validation.")
	r.SessionsRemoved = r.counter("session", "removed_total", "Sessions removed by logout.")
	r.SessionLockBusy = r.counter("session", "lock_busy_total", "Session creations that could not take the per-user lock.")
	r.SessionValidations = r.counterVec("session", "validations_total", "Session validations by result.", "result")

	r.RateLimitChecks = r.counterVec("ratelimit", "checks_total", "Rate limit checks by scope and result.", "scope", "result")

	r.EventsPublished = r.counterVec("events", "published_total", "Events handed to the broker.", "topic")
	r.EventsPublishFailed = r.counterVec("events", "publish_failed_total", "Events the broker rejected.", "topic")
	r.EventsReceived = r.counterVec("events", "received_total", "Events received from the broker.", "topic")
	r.EventsDropped = r.counterVec("events", "dropped_total", "Received events that were not delivered.", "reason")
	r.DeliveriesDropped = r.counter("delivery", "dropped_total", "Deliveries skipped because a subscriber queue was full.")

	r.RequestsTotal = r.counterVec("http", "requests_total", "HTTP requests by route and status.", "method", "route", "status")
	r.RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"method", "route"})
	r.reg.MustRegister(r.RequestDuration)

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Registry) counter(subsystem, name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
	r.reg.MustRegister(c)
	return c
}

func (r *Registry) counterVec(subsystem, name, help string, labels ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
	r.reg.MustRegister(c)
	return c
}

// Registerer exposes the underlying registry for components that bring
// their own collectors, such as the storage engine.
func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}

// Gatherer exposes the underlying registry for scraping in tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}
