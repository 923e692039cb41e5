package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
// Each instance owns its registry so tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	GateDecisions       *prometheus.CounterVec
	RoleLookupDuration  *prometheus.HistogramVec
	PostsCreated        prometheus.Counter
	NewsletterDelivered *prometheus.CounterVec
	UploadsStored       prometheus.Counter
	RolesGranted        *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		GateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chapel_gate_decisions_total",
			Help: "Authorization gate outcomes by policy and error code",
		}, []string{"policy", "outcome", "code"}),
		RoleLookupDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chapel_role_lookup_duration_seconds",
			Help:    "Latency of role record lookups",
			Buckets: prometheus.DefBuckets,
		}, []string{"table"}),
		PostsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "chapel_posts_created_total",
			Help: "Total number of posts created",
		}),
		NewsletterDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chapel_newsletter_deliveries_total",
			Help: "Newsletter delivery attempts by result",
		}, []string{"result"}),
		UploadsStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "chapel_uploads_stored_total",
			Help: "Total number of files accepted by the upload endpoint",
		}),
		RolesGranted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chapel_roles_granted_total",
			Help: "Role grants performed by the promote endpoint",
		}, []string{"role"}),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveGateDecision records one gate outcome. outcome is "allow" or "deny".
func (m *Metrics) ObserveGateDecision(policy, outcome, code string) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(policy, outcome, code).Inc()
}

// ObserveRoleLookup records how long a lookup against table took.
func (m *Metrics) ObserveRoleLookup(table string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RoleLookupDuration.WithLabelValues(table).Observe(elapsed.Seconds())
}

func (m *Metrics) IncrementPostsCreated() {
	if m == nil {
		return
	}
	m.PostsCreated.Inc()
}

// ObserveNewsletterDelivery counts one delivery; result is "sent" or "failed".
func (m *Metrics) ObserveNewsletterDelivery(result string) {
	if m == nil {
		return
	}
	m.NewsletterDelivered.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementUploadsStored() {
	if m == nil {
		return
	}
	m.UploadsStored.Inc()
}

func (m *Metrics) IncrementRolesGranted(role string) {
	if m == nil {
		return
	}
	m.RolesGranted.WithLabelValues(role).Inc()
}
