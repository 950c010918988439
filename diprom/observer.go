// Package diprom exports request scope metrics to Prometheus.
package diprom

import (
	"context"

	"github.com/kod-kristoff/reqscope"
	"github.com/kod-kristoff/reqscope/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Observer is a [di.ScopeObserver] that records request scope metrics.
//
// Use it with [di.WithObserver]:
//
//	obs, err := diprom.NewObserver(prometheus.DefaultRegisterer)
//	rs := di.NewRequestScope(di.WithObserver(obs))
type Observer struct {
	active        prometheus.Gauge
	scopes        prometheus.Counter
	instances     *prometheus.CounterVec
	releaseErrors prometheus.Counter
	duration      prometheus.Histogram
}

var _ di.ScopeObserver = (*Observer)(nil)

// NewObserver creates a new [Observer] and registers its metrics with reg.
//
// Available options:
//   - [WithNamespace] sets the metric namespace. The default is "reqscope".
//   - [WithBuckets] sets the buckets of the scope duration histogram.
func NewObserver(reg prometheus.Registerer, opts ...Option) (*Observer, error) {
	if reg == nil {
		return nil, errors.New("diprom.NewObserver: registerer is nil")
	}

	cfg := config{
		namespace: "reqscope",
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	o := &Observer{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.namespace,
			Name:      "active_scopes",
			Help:      "Number of request scopes that have been entered and not exited yet.",
		}),
		scopes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "scopes_total",
			Help:      "Total number of request scopes entered.",
		}),
		instances: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "instances_created_total",
			Help:      "Total number of request scoped instances created.",
		}, []string{"key"}),
		releaseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.namespace,
			Name:      "release_errors_total",
			Help:      "Total number of request scoped instances that failed to release.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.namespace,
			Name:      "scope_duration_seconds",
			Help:      "Time between entering and exiting a request scope.",
			Buckets:   cfg.buckets,
		}),
	}

	var errs errors.MultiError
	for _, c := range []prometheus.Collector{o.active, o.scopes, o.instances, o.releaseErrors, o.duration} {
		errs = errs.Append(reg.Register(c))
	}
	if err := errs.Wrap("diprom.NewObserver"); err != nil {
		return nil, err
	}

	return o, nil
}

func (o *Observer) ScopeEntered(context.Context) {
	o.active.Inc()
	o.scopes.Inc()
}

func (o *Observer) InstanceCreated(_ context.Context, key di.ServiceKey) {
	o.instances.WithLabelValues(key.String()).Inc()
}

func (o *Observer) ScopeExited(_ context.Context, stats di.ExitStats) {
	o.active.Dec()
	o.releaseErrors.Add(float64(stats.Failed))
	o.duration.Observe(stats.Duration.Seconds())
}

type config struct {
	namespace string
	buckets   []float64
}

// Option configures an [Observer] when calling [NewObserver].
type Option func(*config)

// WithNamespace sets the namespace used for all metric names.
func WithNamespace(ns string) Option {
	return func(c *config) {
		c.namespace = ns
	}
}

// WithBuckets sets the buckets of the scope duration histogram.
func WithBuckets(buckets ...float64) Option {
	return func(c *config) {
		c.buckets = buckets
	}
}
