package metrics

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	require.NotNil(t, m.Decisions)
	require.NotNil(t, m.Rejections)
	require.NotNil(t, m.Probes)

	// Registering twice on the same registry panics.
	assert.Panics(t, func() { New(reg) })
}

func TestRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Decision("create_view", ResultRejected)
	m.Decision("create_view", ResultRejected)
	m.Decision("other", ResultForwarded)
	m.Rejection("statement.disallow.create_view")
	m.Probe(ProbeHasRows)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Decisions.WithLabelValues("create_view", ResultRejected)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("other", ResultForwarded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues("statement.disallow.create_view")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Probes.WithLabelValues(ProbeHasRows)))

	gathered, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(gathered))
	for _, mf := range gathered {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "ddlguard_decisions_total")
	assert.Contains(t, names, "ddlguard_probes_total")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Decision("other", ResultForwarded)
		m.Rejection("rule")
		m.Probe(ProbeFailure)
	})
}

func TestWriteText(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Decision("create_view", ResultRejected)
	m.Rejection("statement.disallow.create_view")

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))
	out := buf.String()
	assert.Contains(t, out, "# TYPE ddlguard_decisions_total counter")
	assert.Contains(t, out, `ddlguard_decisions_total{kind="create_view",result="rejected"} 1`)
	assert.Contains(t, out, `ddlguard_rejections_total{rule="statement.disallow.create_view"} 1`)
}
