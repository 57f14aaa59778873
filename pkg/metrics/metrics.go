// Package metrics exposes Prometheus counters for guard decisions.
package metrics

import (
	"io"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

const namespace = "ddlguard"

// Result label values.
const (
	ResultForwarded = "forwarded"
	ResultRejected  = "rejected"
	ResultFailed    = "failed"

	ProbeEmpty   = "empty"
	ProbeHasRows = "has_rows"
	ProbeFailure = "failure"
)

// Metrics holds all Prometheus metrics for the guard.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Decisions  *prometheus.CounterVec
	Rejections *prometheus.CounterVec
	Probes     *prometheus.CounterVec
}

// New creates and registers all metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Decisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Statements evaluated, by statement kind and result",
			},
			[]string{"kind", "result"}, // result=forwarded/rejected/failed
		),
		Rejections: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejections_total",
				Help:      "Rejected statements by rule",
			},
			[]string{"rule"},
		),
		Probes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "probes_total",
				Help:      "Table probes by result",
			},
			[]string{"result"}, // result=empty/has_rows/failure
		),
	}
}

// Decision records the outcome for one statement.
func (m *Metrics) Decision(kind, result string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(kind, result).Inc()
}

// Rejection records a rejection by rule.
func (m *Metrics) Rejection(rule string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(rule).Inc()
}

// Probe records one probe result.
func (m *Metrics) Probe(result string) {
	if m == nil {
		return
	}
	m.Probes.WithLabelValues(result).Inc()
}

// WriteText gathers every metric from g and writes it to w in the
// Prometheus text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return errors.Wrap(err, "failed to gather metrics")
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return errors.Wrapf(err, "failed to write metric %s", family.GetName())
		}
	}
	return nil
}
