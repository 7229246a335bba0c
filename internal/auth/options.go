package auth

import (
	"time"

	"github.com/schoolresults/server/internal/metrics"
	"go.uber.org/zap"
)

type options struct {
	now     func() time.Time
	log     *zap.Logger
	metrics *metrics.Metrics
}

// Option configures the services of this package
type Option func(*options)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger sets the logger
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
