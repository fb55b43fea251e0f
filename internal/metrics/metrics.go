// Package metrics holds the Prometheus instruments of the console core.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

type Metrics struct {
	reg *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	probes          *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	encodes         *prometheus.CounterVec
}

// New registers every instrument on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staffconsole_identity_requests_total",
				Help: "Requests sent to the identity service.",
			},
			[]string{"op", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "staffconsole_identity_request_duration_seconds",
				Help:    "Identity service request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staffconsole_session_probes_total",
				Help: "Session probes by outcome (authenticated, anonymous, skipped).",
			},
			[]string{"outcome"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staffconsole_submissions_total",
				Help: "Form submissions by form kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		encodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staffconsole_attachment_encodes_total",
				Help: "Attachment encodes by outcome (ok, stale, error).",
			},
			[]string{"outcome"},
		),
	}
	reg.MustRegister(
		m.requests,
		m.requestDuration,
		m.probes,
		m.submissions,
		m.encodes,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// ObserveRequest records one transport call. status is 0 for transport failures.
func (m *Metrics) ObserveRequest(op string, status int, d time.Duration) {
	if m == nil {
		return
	}
	s := "error"
	if status > 0 {
		s = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(op, s).Inc()
	m.requestDuration.WithLabelValues(op).Observe(d.Seconds())
}

// Probe counts a session bootstrap outcome.
func (m *Metrics) Probe(outcome string) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(outcome).Inc()
}

// Submission counts a submission outcome (invalid, succeeded, failed, ignored).
func (m *Metrics) Submission(kind, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind, outcome).Inc()
}

// Encode counts an attachment encode outcome.
func (m *Metrics) Encode(outcome string) {
	if m == nil {
		return
	}
	m.encodes.WithLabelValues(outcome).Inc()
}

// SubmissionCount returns the current counter value, for tests and the console footer.
func (m *Metrics) SubmissionCount(kind, outcome string) float64 {
	if m == nil {
		return 0
	}
	return counterValue(m.submissions.WithLabelValues(kind, outcome))
}

// ProbeCount returns the current probe counter value.
func (m *Metrics) ProbeCount(outcome string) float64 {
	if m == nil {
		return 0
	}
	return counterValue(m.probes.WithLabelValues(outcome))
}

// EncodeCount returns the current encode counter value.
func (m *Metrics) EncodeCount(outcome string) float64 {
	if m == nil {
		return 0
	}
	return counterValue(m.encodes.WithLabelValues(outcome))
}

func counterValue(c prometheus.Counter) float64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	return pb.GetCounter().GetValue()
}
