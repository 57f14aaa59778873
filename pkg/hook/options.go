package hook

import (
	"log/slog"

	"github.com/nsxbet/ddlguard/pkg/logger"
	"github.com/nsxbet/ddlguard/pkg/metrics"
	"github.com/nsxbet/ddlguard/pkg/probe"
)

// Option is a functional option for customizing a Dispatcher.
type Option func(*options)

type options struct {
	prober         probe.Prober
	onProbeFailure probe.FailurePolicy
	logger         logger.Interface
	metrics        *metrics.Metrics
}

func newOptions(opts []Option) options {
	o := options{
		prober:         probe.Empty,
		onProbeFailure: probe.FailOpen,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// WithProber sets how CREATE INDEX finds out whether its table holds rows.
// Without it every table is considered empty.
func WithProber(p probe.Prober) Option {
	return func(o *options) {
		if p != nil {
			o.prober = p
		}
	}
}

// WithProbeFailure sets what an unanswerable probe means.
func WithProbeFailure(policy probe.FailurePolicy) Option {
	return func(o *options) {
		o.onProbeFailure = policy
	}
}

// WithLogger sets the logger for decisions.
func WithLogger(l logger.Interface) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics records decisions and probes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
