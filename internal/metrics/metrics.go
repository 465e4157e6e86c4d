// Package metrics exposes matchmaking, notification and API counters in the
// Prometheus text format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/agentmesh/internal/matching"
	"github.com/kalambet/agentmesh/internal/storage"
)

const namespace = "agentmesh"

// Metrics owns a private registry so tests and multiple servers in one
// process do not collide on the global one.
type Metrics struct {
	reg *prometheus.Registry

	passes       prometheus.Counter
	passDuration prometheus.Histogram
	pairs        *prometheus.CounterVec
	embedded     prometheus.Counter
	emails       *prometheus.CounterVec
	responses    *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		passes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_passes_total",
			Help:      "Matchmaking passes that reached the ranking step.",
		}),
		passDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "match_pass_duration_seconds",
			Help:      "Wall time of a matchmaking pass.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		pairs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_pairs_total",
			Help:      "Candidate pairs by evaluation outcome.",
		}, []string{"outcome"}),
		embedded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profiles_embedded_total",
			Help:      "Profiles embedded during matchmaking passes.",
		}),
		emails: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Notification emails by event and outcome.",
		}, []string{"event", "outcome"}),
		responses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opportunity_responses_total",
			Help:      "Opportunity responses by decision and resulting status.",
		}, []string{"decision", "status"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route pattern and status code class.",
		}, []string{"route", "code"}),
	}
}

// ObservePass records one matchmaking pass.
func (m *Metrics) ObservePass(r matching.PassReport, elapsed time.Duration) {
	m.passes.Inc()
	m.passDuration.Observe(elapsed.Seconds())
	m.embedded.Add(float64(r.Embedded))
	m.pairs.WithLabelValues("proposed").Add(float64(r.Proposed))
	m.pairs.WithLabelValues("discarded").Add(float64(r.Discarded))
	m.pairs.WithLabelValues("skipped").Add(float64(r.Skipped))
	if absent := r.Evaluated - r.Proposed - r.Discarded; absent > 0 {
		m.pairs.WithLabelValues("absent").Add(float64(absent))
	}
}

// ObserveEmail records one delivery attempt.
func (m *Metrics) ObserveEmail(event storage.NotifyEvent, outcome string) {
	m.emails.WithLabelValues(string(event), outcome).Inc()
}

// ObserveResponse records one accepted opportunity response.
func (m *Metrics) ObserveResponse(decision, status string) {
	m.responses.WithLabelValues(decision, status).Inc()
}

// ObserveRequest records one API request under its route pattern.
func (m *Metrics) ObserveRequest(route string, code int) {
	m.httpRequests.WithLabelValues(route, codeClass(code)).Inc()
}

// GaugeFunc registers a gauge sampled from fn at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() int) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(fn()) })
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func codeClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
