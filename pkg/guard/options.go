package guard

import (
	"github.com/nsxbet/ddlguard/pkg/hook"
	"github.com/nsxbet/ddlguard/pkg/logger"
	"github.com/nsxbet/ddlguard/pkg/metrics"
	"github.com/nsxbet/ddlguard/pkg/probe"
)

// DefaultCacheSize is the number of parsed scripts kept by default.
const DefaultCacheSize = 256

// Option is a functional option for customizing a Guard.
type Option func(*options)

type options struct {
	hook        []hook.Option
	logger      logger.Interface
	cacheSize   int
	stopOnError bool
}

// WithProber sets the table probe used by CREATE INDEX.
//
// Example:
//
//	db, _ := sql.Open("postgres", dsn)
//	g := guard.New(executor.New(db), guard.WithProber(probe.NewSQL(db)))
func WithProber(p probe.Prober) Option {
	return func(o *options) {
		o.hook = append(o.hook, hook.WithProber(p))
	}
}

// WithProbeFailure sets what an unanswerable probe means.
func WithProbeFailure(policy probe.FailurePolicy) Option {
	return func(o *options) {
		o.hook = append(o.hook, hook.WithProbeFailure(policy))
	}
}

// WithLogger sets the logger for the guard and its dispatcher.
func WithLogger(l logger.Interface) Option {
	return func(o *options) {
		o.logger = l
		o.hook = append(o.hook, hook.WithLogger(l))
	}
}

// WithMetrics records decisions and probes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.hook = append(o.hook, hook.WithMetrics(m))
	}
}

// WithCacheSize sets how many parsed scripts are cached. Zero disables the
// cache.
func WithCacheSize(size int) Option {
	return func(o *options) {
		if size >= 0 {
			o.cacheSize = size
		}
	}
}

// WithStopOnError stops a run at the first rejected or failed statement.
// Statements after it are not evaluated.
func WithStopOnError(stop bool) Option {
	return func(o *options) {
		o.stopOnError = stop
	}
}
